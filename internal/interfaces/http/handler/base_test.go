package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/interfaces/http/dto"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from context",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDContextKey, "ctx-request-id")
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set(middleware.RequestIDKey, "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDContextKey, "ctx-id")
				c.Request.Header.Set(middleware.RequestIDKey, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(http.MethodGet, "/")
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestGetOrganizationID(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")
	_, err := getOrganizationID(c)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	org := &payorder.Organization{}
	org.ID = uuid.New()
	c.Set(middleware.OrganizationKey, org)
	id, err := getOrganizationID(c)
	require.NoError(t, err)
	assert.Equal(t, org.ID, id)
}

// =============================================================================
// HandleError
// =============================================================================

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"wrapped not found", fmt.Errorf("load order: %w", shared.ErrNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"invalid state", shared.ErrInvalidState, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"unauthorized", shared.ErrUnauthorized, http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"provider unavailable", payorder.ErrProviderUnavailable, http.StatusServiceUnavailable, payorder.CodeProviderUnavailable},
		{"no viable route", payorder.ErrNoViableRoute, http.StatusUnprocessableEntity, payorder.CodeNoViableRoute},
		{"quote unavailable", payorder.ErrQuoteUnavailable, http.StatusUnprocessableEntity, payorder.CodeQuoteUnavailable},
		{"stale quote", payorder.ErrStaleQuote, http.StatusConflict, payorder.CodeStaleQuote},
		{"order expired", payorder.ErrOrderExpired, http.StatusGone, payorder.CodeOrderExpired},
		{"tx hash already set", payorder.ErrTxHashAlreadySet, http.StatusConflict, payorder.CodeTxHashAlreadySet},
		{"concurrency conflict", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"version conflict is reported as transition conflict", shared.NewDomainError("VERSION_CONFLICT", "stale"), http.StatusConflict, payorder.CodeConcurrentTransitionConflict},
		{"unlisted invalid code", shared.NewDomainError("INVALID_CURRENCY_ID", "bad"), http.StatusBadRequest, "INVALID_CURRENCY_ID"},
		{"unknown code", shared.NewDomainError("SOMETHING_ODD", "odd"), http.StatusInternalServerError, "SOMETHING_ODD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodGet, "/")
			c.Set(middleware.RequestIDContextKey, "req-1")

			h := &BaseHandler{}
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			env := decode(t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.expectedCode, env.Error.Code)
			assert.Equal(t, "req-1", env.Error.RequestID)
		})
	}
}

func TestBaseHandler_HandleError_HidesInternalErrors(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/")

	h := &BaseHandler{}
	h.HandleError(c, errors.New("pq: connection refused to 10.0.0.4"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decode(t, w)
	assert.Equal(t, dto.ErrCodeInternal, env.Error.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.4")
}

func TestBaseHandler_HandleError_NilIsNoop(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/")

	h := &BaseHandler{}
	h.HandleError(c, nil)

	assert.Empty(t, w.Body.String())
}

func TestBaseHandler_HandleError_RouteBounds(t *testing.T) {
	t.Run("bounds present", func(t *testing.T) {
		c, w := newTestContext(http.MethodPost, "/")
		minAmount := decimal.RequireFromString("0.1")

		h := &BaseHandler{}
		h.HandleError(c, fmt.Errorf("provision: %w", payorder.NewRouteProvisioningError("too small", &minAmount, nil)))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		env := decode(t, w)
		assert.JSONEq(t, `{"min_amount":"0.1"}`, string(env.Error.Details))
	})

	t.Run("no bounds", func(t *testing.T) {
		c, w := newTestContext(http.MethodPost, "/")

		h := &BaseHandler{}
		h.HandleError(c, payorder.NewRouteProvisioningError("provider refused", nil, nil))

		env := decode(t, w)
		assert.Empty(t, env.Error.Details)
	})
}

func TestBaseHandler_HandleError_RetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		expected   string
	}{
		{"whole seconds", 3 * time.Second, "3"},
		{"rounds up", 200 * time.Millisecond, "1"},
		{"unknown wait", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodGet, "/")

			h := &BaseHandler{}
			h.HandleError(c, payorder.NewRateLimitedError("coingecko", tt.retryAfter))

			assert.Equal(t, http.StatusTooManyRequests, w.Code)
			assert.Equal(t, tt.expected, w.Header().Get("Retry-After"))
		})
	}
}

// =============================================================================
// Binding helpers
// =============================================================================

func TestBaseHandler_ParseUUIDParam(t *testing.T) {
	h := &BaseHandler{}

	c, _ := newTestContext(http.MethodGet, "/")
	id := uuid.New()
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	got, ok := h.ParseUUIDParam(c, "id")
	assert.True(t, ok)
	assert.Equal(t, id, got)

	c, w := newTestContext(http.MethodGet, "/")
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	_, ok = h.ParseUUIDParam(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid id format", decode(t, w).Error.Message)
}

func TestBaseHandler_Responses(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext(http.MethodGet, "/")
	h.SuccessWithMeta(c, []string{"a"}, 41, 3, 20)
	env := decode(t, w)
	assert.True(t, env.Success)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 3, env.Meta.TotalPages)

	c, w = newTestContext(http.MethodPost, "/")
	h.Created(c, map[string]string{"id": "x"})
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = newTestContext(http.MethodGet, "/")
	h.BadRequest(c, "nope")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeBadRequest, decode(t, w).Error.Code)
}
