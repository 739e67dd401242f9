package handler

import (
	"context"

	payorderapp "github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/application/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PayOrderAPI is the application surface the pay order handler drives
type PayOrderAPI interface {
	Create(ctx context.Context, organizationID uuid.UUID, req payorderapp.CreatePayOrderRequest) (*payorderapp.PayOrderResponse, error)
	Get(ctx context.Context, organizationID, orderID uuid.UUID) (*payorderapp.PayOrderResponse, error)
	List(ctx context.Context, organizationID uuid.UUID, filter payorderapp.ListPayOrdersFilter) (shared.Paginated[payorderapp.PayOrderListResponse], error)
	Quote(ctx context.Context, organizationID, orderID uuid.UUID, req payorderapp.QuoteRequest) (*payorderapp.QuoteResponse, error)
	PaymentDetails(ctx context.Context, organizationID, orderID uuid.UUID, req payorderapp.PaymentDetailsRequest) (*payorderapp.PayOrderResponse, error)
	Process(ctx context.Context, organizationID, orderID uuid.UUID, txHash string) (*payorderapp.ProcessResponse, error)
}

// PayOrderHandler handles pay order API endpoints
type PayOrderHandler struct {
	BaseHandler
	service PayOrderAPI
}

// NewPayOrderHandler creates a new PayOrderHandler
func NewPayOrderHandler(service PayOrderAPI) *PayOrderHandler {
	return &PayOrderHandler{service: service}
}

// ProcessQuery is the query string of the process endpoint
type ProcessQuery struct {
	TxHash string `form:"tx_hash" binding:"max=128"`
}

// Create godoc
// @Summary      Create a pay order
// @Description  Create a SALE or DEPOSIT pay order in PENDING
// @Tags         pay-orders
// @Accept       json
// @Produce      json
// @Param        request body payorderapp.CreatePayOrderRequest true "Pay order creation request"
// @Success      201 {object} Envelope[payorderapp.PayOrderResponse]
// @Failure      400 {object} ErrorEnvelope
// @Failure      401 {object} ErrorEnvelope
// @Failure      422 {object} ErrorEnvelope
// @Security     ApiKeyAuth
// @Router       /pay-orders [post]
func (h *PayOrderHandler) Create(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req payorderapp.CreatePayOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	order, err := h.service.Create(c.Request.Context(), orgID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, order)
}

// Get godoc
// @Summary      Get a pay order
// @Description  Retrieve a pay order with its transition history
// @Tags         pay-orders
// @Produce      json
// @Param        id path string true "Pay order ID" format(uuid)
// @Success      200 {object} Envelope[payorderapp.PayOrderResponse]
// @Failure      404 {object} ErrorEnvelope
// @Security     ApiKeyAuth
// @Router       /pay-orders/{id} [get]
func (h *PayOrderHandler) Get(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	orderID, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.service.Get(c.Request.Context(), orgID, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, order)
}

// List godoc
// @Summary      List pay orders
// @Description  Page through the organization's pay orders, newest first
// @Tags         pay-orders
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        status query string false "Status filter"
// @Success      200 {object} Envelope[[]payorderapp.PayOrderListResponse]
// @Failure      400 {object} ErrorEnvelope
// @Security     ApiKeyAuth
// @Router       /pay-orders [get]
func (h *PayOrderHandler) List(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var filter payorderapp.ListPayOrdersFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	page, err := h.service.List(c.Request.Context(), orgID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Quote godoc
// @Summary      Quote a pay order
// @Description  Price the candidate source currencies against the order's destination
// @Tags         pay-orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Pay order ID" format(uuid)
// @Param        request body payorderapp.QuoteRequest true "Candidate currencies"
// @Success      200 {object} Envelope[payorderapp.QuoteResponse]
// @Failure      410 {object} ErrorEnvelope
// @Failure      422 {object} ErrorEnvelope
// @Failure      503 {object} ErrorEnvelope
// @Security     ApiKeyAuth
// @Router       /pay-orders/{id}/quote [post]
func (h *PayOrderHandler) Quote(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	orderID, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req payorderapp.QuoteRequest
	if !h.BindJSON(c, &req) {
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), orgID, orderID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, quote)
}

// PaymentDetails godoc
// @Summary      Provision payment details
// @Description  Choose a quoted source currency and receive the deposit address
// @Tags         pay-orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Pay order ID" format(uuid)
// @Param        request body payorderapp.PaymentDetailsRequest true "Chosen source currency"
// @Success      200 {object} Envelope[payorderapp.PayOrderResponse]
// @Failure      409 {object} ErrorEnvelope
// @Failure      422 {object} ErrorEnvelope
// @Security     ApiKeyAuth
// @Router       /pay-orders/{id}/payment-details [post]
func (h *PayOrderHandler) PaymentDetails(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	orderID, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req payorderapp.PaymentDetailsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	order, err := h.service.PaymentDetails(c.Request.Context(), orgID, orderID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, order)
}

// Process godoc
// @Summary      Submit or poll a payment
// @Description  Verify tx_hash against the payment details. Without tx_hash the bound transaction is re-checked.
// @Tags         pay-orders
// @Produce      json
// @Param        id path string true "Pay order ID" format(uuid)
// @Param        tx_hash query string false "Payment transaction hash"
// @Success      200 {object} Envelope[payorderapp.ProcessResponse]
// @Failure      409 {object} ErrorEnvelope
// @Failure      410 {object} ErrorEnvelope
// @Failure      422 {object} ErrorEnvelope
// @Failure      503 {object} ErrorEnvelope
// @Security     ApiKeyAuth
// @Router       /pay-orders/{id}/process [get]
func (h *PayOrderHandler) Process(c *gin.Context) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	orderID, ok := h.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var q ProcessQuery
	if !h.BindQuery(c, &q) {
		return
	}

	result, err := h.service.Process(c.Request.Context(), orgID, orderID, q.TxHash)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
