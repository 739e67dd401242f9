package handler

import (
	"context"

	payorderapp "github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/application/payorder"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrganizationAPI is the application surface the organization handler drives
type OrganizationAPI interface {
	Get(ctx context.Context, id uuid.UUID) (*payorderapp.OrganizationResponse, error)
	ReplaceSettlementCurrencies(ctx context.Context, id uuid.UUID, req payorderapp.UpdateSettlementCurrenciesRequest) (*payorderapp.OrganizationResponse, error)
	RotateCredentials(ctx context.Context, id uuid.UUID) (*payorderapp.CredentialsResponse, error)
}

// OrganizationHandler serves the authenticated organization's own record
type OrganizationHandler struct {
	BaseHandler
	service OrganizationAPI
}

// NewOrganizationHandler creates a new OrganizationHandler
func NewOrganizationHandler(service OrganizationAPI) *OrganizationHandler {
	return &OrganizationHandler{service: service}
}

// GetMe godoc
// @Summary      Get the calling organization
// @Tags         organizations
// @Produce      json
// @Success      200 {object} Envelope[payorderapp.OrganizationResponse]
// @Failure      401 {object} ErrorEnvelope
// @Security     ApiKeyAuth
// @Router       /organizations/me [get]
func (h *OrganizationHandler) GetMe(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	org, err := h.service.Get(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, org)
}

// ReplaceSettlementCurrencies godoc
// @Summary      Replace settlement currencies
// @Description  Replace the currencies and addresses the organization settles into
// @Tags         organizations
// @Accept       json
// @Produce      json
// @Param        request body payorderapp.UpdateSettlementCurrenciesRequest true "Settlement currencies"
// @Success      200 {object} Envelope[payorderapp.OrganizationResponse]
// @Failure      400 {object} ErrorEnvelope
// @Failure      409 {object} ErrorEnvelope
// @Security     ApiKeyAuth
// @Router       /organizations/me/settlement-currencies [put]
func (h *OrganizationHandler) ReplaceSettlementCurrencies(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req payorderapp.UpdateSettlementCurrenciesRequest
	if !h.BindJSON(c, &req) {
		return
	}

	org, err := h.service.ReplaceSettlementCurrencies(c.Request.Context(), orgID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, org)
}

// RotateKey godoc
// @Summary      Rotate API credentials
// @Description  Issue a new API key and secret. The old key stops working immediately.
// @Tags         organizations
// @Produce      json
// @Success      200 {object} Envelope[payorderapp.CredentialsResponse]
// @Failure      409 {object} ErrorEnvelope
// @Security     ApiKeyAuth
// @Router       /organizations/me/rotate-key [post]
func (h *OrganizationHandler) RotateKey(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	creds, err := h.service.RotateCredentials(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, creds)
}
