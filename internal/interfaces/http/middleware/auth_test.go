package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/auth"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubAuthenticator struct {
	orgs map[string]*payorder.Organization
	err  error
}

func (s *stubAuthenticator) Authenticate(_ context.Context, apiKey string) (*payorder.Organization, error) {
	if s.err != nil {
		return nil, s.err
	}
	if org, ok := s.orgs[apiKey]; ok {
		return org, nil
	}
	return nil, shared.ErrUnauthorized
}

func newAuthRouter(t *testing.T, authenticator OrganizationAuthenticator, now time.Time) *gin.Engine {
	t.Helper()
	router := gin.New()
	router.Use(RequestID(), APIKeyAuth(APIKeyAuthConfig{
		Authenticator: authenticator,
		Verifier:      auth.NewSignatureVerifier(5 * time.Minute).WithClock(func() time.Time { return now }),
		Logger:        zaptest.NewLogger(t),
	}))
	router.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, GetOrganization(c).ID.String())
	})
	return router
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestAPIKeyAuth(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	org := &payorder.Organization{ID: uuid.New(), APIKey: "key-1", APISecret: "secret-1"}
	router := newAuthRouter(t, &stubAuthenticator{orgs: map[string]*payorder.Organization{"key-1": org}}, now)

	signed := func(key, secret string, ts int64) string {
		return fmt.Sprintf("APIKey=%s,signature=%s,timestamp=%d", key, auth.Sign(key, secret, ts), ts)
	}

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "api key header",
			headers:    map[string]string{APIKeyHeader: "key-1"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "signed authorization",
			headers:    map[string]string{AuthHeaderKey: signed("key-1", "secret-1", now.Unix()-60)},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing credentials",
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Authentication required",
		},
		{
			name:       "unknown api key",
			headers:    map[string]string{APIKeyHeader: "nope"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong secret",
			headers:    map[string]string{AuthHeaderKey: signed("key-1", "other", now.Unix())},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "stale timestamp",
			headers:    map[string]string{AuthHeaderKey: signed("key-1", "secret-1", now.Unix()-301)},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Signature timestamp is outside the accepted window",
		},
		{
			name:       "malformed header",
			headers:    map[string]string{AuthHeaderKey: "Bearer abc"},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Malformed Authorization header",
		},
		{
			name: "signed header wins over api key",
			headers: map[string]string{
				APIKeyHeader:  "key-1",
				AuthHeaderKey: "APIKey=key-1,signature=00,timestamp=" + strconv.FormatInt(now.Unix(), 10),
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, org.ID.String(), w.Body.String())
				return
			}
			errInfo := decodeError(t, w)
			assert.Equal(t, dto.ErrCodeUnauthorized, errInfo.Code)
			assert.NotEmpty(t, errInfo.RequestID)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, errInfo.Message)
			}
		})
	}
}

func TestAPIKeyAuth_LookupFailure(t *testing.T) {
	router := newAuthRouter(t, &stubAuthenticator{err: errors.New("connection reset")}, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(APIKeyHeader, "key-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	errInfo := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeInternal, errInfo.Code)
	assert.NotContains(t, errInfo.Message, "connection reset")
}

func TestGetOrganization_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetOrganization(c))
}
