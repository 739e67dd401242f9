package routing

import "encoding/json"

// createExchangeRequest is the body of POST /exchange
type createExchangeRequest struct {
	FromCurrency  string `json:"fromCurrency"`
	ToCurrency    string `json:"toCurrency"`
	FromNetwork   string `json:"fromNetwork"`
	ToNetwork     string `json:"toNetwork"`
	FromAmount    string `json:"fromAmount"`
	Address       string `json:"address"`
	RefundAddress string `json:"refundAddress,omitempty"`
	Flow          string `json:"flow"`
	Type          string `json:"type"`
	Payload       string `json:"payload,omitempty"`
}

// exchangeResponse is the body returned by POST /exchange
type exchangeResponse struct {
	ID               string      `json:"id"`
	FromAmount       json.Number `json:"fromAmount"`
	ToAmount         json.Number `json:"toAmount"`
	PayinAddress     string      `json:"payinAddress"`
	PayinExtraID     string      `json:"payinExtraId"`
	PayoutAddress    string      `json:"payoutAddress"`
	FromCurrency     string      `json:"fromCurrency"`
	ToCurrency       string      `json:"toCurrency"`
	FromNetwork      string      `json:"fromNetwork"`
	ToNetwork        string      `json:"toNetwork"`
	RefundAddress    string      `json:"refundAddress"`
	ExpectedToAmount json.Number `json:"expectedToAmount"`
}

// exchangeStatusResponse is the body of GET /exchange/by-id
type exchangeStatusResponse struct {
	ID                string      `json:"id"`
	Status            string      `json:"status"`
	PayinHash         string      `json:"payinHash"`
	PayoutHash        string      `json:"payoutHash"`
	RefundHash        string      `json:"refundHash"`
	AmountTo          json.Number `json:"amountTo"`
	ExpectedAmountTo  json.Number `json:"expectedAmountTo"`
	ActionsAvailable  bool        `json:"actionsAvailable"`
	PayinAddress      string      `json:"payinAddress"`
	PayoutAddress     string      `json:"payoutAddress"`
	FromCurrency      string      `json:"fromCurrency"`
	ToCurrency        string      `json:"toCurrency"`
	DepositReceivedAt string      `json:"depositReceivedAt"`
}

// rangeResponse is the body of GET /exchange/range
type rangeResponse struct {
	MinAmount json.Number `json:"minAmount"`
	MaxAmount json.Number `json:"maxAmount"`
}

// errorResponse is ChangeNow's error body
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
