package handler

import (
	payorderapp "github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/application/payorder"
	"github.com/gin-gonic/gin"
)

// CurrencyAPI is the application surface the currency handler drives
type CurrencyAPI interface {
	List(filter payorderapp.ListCurrenciesFilter) ([]payorderapp.CurrencyResponse, error)
}

// CurrencyHandler lists the currencies orders can be paid or settled in
type CurrencyHandler struct {
	BaseHandler
	service CurrencyAPI
}

// NewCurrencyHandler creates a new CurrencyHandler
func NewCurrencyHandler(service CurrencyAPI) *CurrencyHandler {
	return &CurrencyHandler{service: service}
}

// List godoc
// @Summary      List supported currencies
// @Description  Currencies usable as quote candidates, payment sources and settlement targets
// @Tags         currencies
// @Produce      json
// @Param        chain  query string false "Chain ID, e.g. ethereum"
// @Param        family query string false "Chain family" Enums(EVM, SOLANA, SUI)
// @Success      200 {object} Envelope[[]payorderapp.CurrencyResponse]
// @Failure      400 {object} ErrorEnvelope
// @Failure      401 {object} ErrorEnvelope
// @Security     ApiKeyAuth
// @Router       /currencies [get]
func (h *CurrencyHandler) List(c *gin.Context) {
	var filter payorderapp.ListCurrenciesFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	currencies, err := h.service.List(filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, currencies)
}
