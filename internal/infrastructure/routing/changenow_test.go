package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ethCurrency = payorder.Currency{
		ID: "eth", Ticker: "ETH", Chain: "ethereum", Family: payorder.ChainFamilyEVM,
		Decimals: 18, RoutingTicker: "eth", RoutingNetwork: "eth",
	}
	usdcSol = payorder.Currency{
		ID: "usdc-sol", Ticker: "USDC", Chain: "solana", Family: payorder.ChainFamilySolana,
		Decimals: 6, RoutingTicker: "usdc", RoutingNetwork: "sol",
	}
)

func newTestChangeNow(t *testing.T, mux *http.ServeMux) *ChangeNowClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewChangeNowClient(ChangeNowConfig{BaseURL: srv.URL, APIKey: "cn-key"}, srv.Client(), nil)
}

func testRouteRequest() payorder.RouteRequest {
	return payorder.RouteRequest{
		OrderID:             uuid.MustParse("6f1f8c1e-3c55-4c35-9c0e-6e0f3cb2a001"),
		SourceCurrency:      ethCurrency,
		DestinationCurrency: usdcSol,
		DestinationAddress:  "MerchantSo1",
		RefundAddress:       "0xrefund",
		SourceAmount:        decimal.RequireFromString("0.05"),
	}
}

func TestChangeNowClient_CreateRoute(t *testing.T) {
	t.Run("creates an exchange", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /exchange", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "cn-key", r.Header.Get("x-changenow-api-key"))

			var body createExchangeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "eth", body.FromCurrency)
			assert.Equal(t, "usdc", body.ToCurrency)
			assert.Equal(t, "eth", body.FromNetwork)
			assert.Equal(t, "sol", body.ToNetwork)
			assert.Equal(t, "0.05", body.FromAmount)
			assert.Equal(t, "MerchantSo1", body.Address)
			assert.Equal(t, "0xrefund", body.RefundAddress)
			assert.Equal(t, "standard", body.Flow)
			assert.Equal(t, "6f1f8c1e-3c55-4c35-9c0e-6e0f3cb2a001", body.Payload)

			_, _ = w.Write([]byte(`{"id":"ex-1","fromAmount":0.05,"toAmount":99.1,"payinAddress":"0xdeposit","payoutAddress":"MerchantSo1"}`))
		})
		c := newTestChangeNow(t, mux)

		route, err := c.CreateRoute(context.Background(), testRouteRequest())
		require.NoError(t, err)
		assert.Equal(t, "ex-1", route.RouteID)
		assert.Equal(t, "changenow", route.Provider)
		assert.Equal(t, "0xdeposit", route.DepositAddress)
		assert.Equal(t, "eth", route.SourceCurrency)
		assert.Equal(t, "usdc-sol", route.DestinationCurrency)
		assert.True(t, route.ExpectedAmount.Equal(decimal.RequireFromString("0.05")))
		assert.False(t, route.ProvisionedAt.IsZero())
	})

	t.Run("rejection carries the accepted range", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /exchange", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"out_of_range","message":"Amount is less than minimal"}`))
		})
		mux.HandleFunc("GET /exchange/range", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "eth", r.URL.Query().Get("fromCurrency"))
			assert.Equal(t, "sol", r.URL.Query().Get("toNetwork"))
			_, _ = w.Write([]byte(`{"minAmount":0.1,"maxAmount":250}`))
		})
		c := newTestChangeNow(t, mux)

		_, err := c.CreateRoute(context.Background(), testRouteRequest())
		var rpe *payorder.RouteProvisioningError
		require.ErrorAs(t, err, &rpe)
		assert.Contains(t, rpe.Message, "Amount is less than minimal")
		require.NotNil(t, rpe.MinAmount)
		require.NotNil(t, rpe.MaxAmount)
		assert.True(t, rpe.MinAmount.Equal(decimal.RequireFromString("0.1")))
		assert.True(t, rpe.MaxAmount.Equal(decimal.NewFromInt(250)))
		assert.ErrorIs(t, err, payorder.ErrRouteProvisioning)
	})

	t.Run("rejection without range", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /exchange", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		mux.HandleFunc("GET /exchange/range", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		c := newTestChangeNow(t, mux)

		_, err := c.CreateRoute(context.Background(), testRouteRequest())
		var rpe *payorder.RouteProvisioningError
		require.ErrorAs(t, err, &rpe)
		assert.Nil(t, rpe.MinAmount)
		assert.Nil(t, rpe.MaxAmount)
	})

	t.Run("server error stays transient", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /exchange", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		c := newTestChangeNow(t, mux)

		_, err := c.CreateRoute(context.Background(), testRouteRequest())
		assert.ErrorIs(t, err, payorder.ErrProviderUnavailable)
	})

	t.Run("response without deposit address", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /exchange", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"ex-2"}`))
		})
		c := newTestChangeNow(t, mux)

		_, err := c.CreateRoute(context.Background(), testRouteRequest())
		assert.ErrorIs(t, err, payorder.ErrRouteProvisioning)
	})
}

func TestChangeNowClient_GetRoute(t *testing.T) {
	t.Run("finished exchange is settled", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /exchange/by-id", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "ex-1", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(`{"id":"ex-1","status":"finished","payoutHash":"5xPayout","amountTo":"99.1"}`))
		})
		c := newTestChangeNow(t, mux)

		report, err := c.GetRoute(context.Background(), "ex-1")
		require.NoError(t, err)
		assert.Equal(t, payorder.RouteStatusSettled, report.Status)
		assert.Equal(t, "5xPayout", report.PayoutTxHash)
		assert.True(t, report.AmountOut.Equal(decimal.RequireFromString("99.1")))
	})

	t.Run("refunded exchange carries the refund hash", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /exchange/by-id", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"ex-1","status":"refunded","refundHash":"0xback"}`))
		})
		c := newTestChangeNow(t, mux)

		report, err := c.GetRoute(context.Background(), "ex-1")
		require.NoError(t, err)
		assert.Equal(t, payorder.RouteStatusRefunded, report.Status)
		assert.Equal(t, "0xback", report.PayoutTxHash)
	})

	t.Run("unknown exchange", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /exchange/by-id", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		c := newTestChangeNow(t, mux)

		_, err := c.GetRoute(context.Background(), "ex-404")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestMapExchangeStatus(t *testing.T) {
	tests := map[string]payorder.RouteStatus{
		"finished":   payorder.RouteStatusSettled,
		"FINISHED":   payorder.RouteStatusSettled,
		"refunded":   payorder.RouteStatusRefunded,
		"failed":     payorder.RouteStatusFailed,
		"new":        payorder.RouteStatusInProgress,
		"waiting":    payorder.RouteStatusInProgress,
		"confirming": payorder.RouteStatusInProgress,
		"exchanging": payorder.RouteStatusInProgress,
		"sending":    payorder.RouteStatusInProgress,
		"verifying":  payorder.RouteStatusInProgress,
		"":           payorder.RouteStatusInProgress,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapExchangeStatus(in), in)
	}
}

func TestChangeNowClient_Name(t *testing.T) {
	assert.Equal(t, "changenow", NewChangeNowClient(ChangeNowConfig{}, nil, nil).Name())
}
