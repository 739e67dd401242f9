package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/auth"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/logger"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Auth context keys and headers
const (
	OrganizationKey = "organization"
	APIKeyHeader    = "X-API-KEY"
	AuthHeaderKey   = "Authorization"
)

// OrganizationAuthenticator resolves the organization owning an API key
type OrganizationAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*payorder.Organization, error)
}

// APIKeyAuthConfig holds configuration for the API key middleware
type APIKeyAuthConfig struct {
	Authenticator OrganizationAuthenticator
	// Verifier checks signed Authorization headers
	Verifier *auth.SignatureVerifier
	Logger   *zap.Logger
}

// APIKeyAuth authenticates a request by its X-API-KEY header or by a signed
// Authorization header and stores the organization on the gin context.
// The signed form wins when both are present.
func APIKeyAuth(cfg APIKeyAuthConfig) gin.HandlerFunc {
	log := logger.OrNop(cfg.Logger)
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = auth.NewSignatureVerifier(auth.DefaultSignatureWindow)
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var (
			org *payorder.Organization
			err error
		)
		if header := c.GetHeader(AuthHeaderKey); header != "" {
			org, err = authenticateSigned(ctx, cfg.Authenticator, verifier, header)
		} else {
			org, err = cfg.Authenticator.Authenticate(ctx, c.GetHeader(APIKeyHeader))
		}
		if err != nil {
			abortUnauthorized(c, log, err)
			return
		}

		c.Set(OrganizationKey, org)
		c.Request = c.Request.WithContext(logger.WithOrganizationID(ctx, org.ID.String()))
		c.Next()
	}
}

func authenticateSigned(ctx context.Context, authenticator OrganizationAuthenticator, verifier *auth.SignatureVerifier, header string) (*payorder.Organization, error) {
	creds, err := auth.ParseAuthorization(header)
	if err != nil {
		return nil, err
	}
	org, err := authenticator.Authenticate(ctx, creds.APIKey)
	if err != nil {
		return nil, err
	}
	if err := verifier.Verify(creds, org.APISecret); err != nil {
		return nil, err
	}
	return org, nil
}

func abortUnauthorized(c *gin.Context, log *zap.Logger, err error) {
	requestID := getRequestIDFromContext(c)

	// storage failures are not the caller's fault
	var domainErr *shared.DomainError
	if !errors.Is(err, shared.ErrUnauthorized) && !isSignatureError(err) && !errors.As(err, &domainErr) {
		log.Error("API key lookup failed", zap.Error(err), zap.String("request_id", requestID))
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			dto.NewErrorResponseWithRequestID(dto.ErrCodeInternal, "An unexpected error occurred", requestID))
		return
	}

	log.Debug("Authentication failed", zap.Error(err), zap.String("path", c.Request.URL.Path))

	message := "Authentication required"
	switch {
	case errors.Is(err, auth.ErrSignatureExpired):
		message = "Signature timestamp is outside the accepted window"
	case errors.Is(err, auth.ErrMalformedAuthorization):
		message = "Malformed Authorization header"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, message, requestID))
}

func isSignatureError(err error) bool {
	return errors.Is(err, auth.ErrMalformedAuthorization) ||
		errors.Is(err, auth.ErrSignatureExpired) ||
		errors.Is(err, auth.ErrInvalidSignature)
}

// GetOrganization retrieves the authenticated organization from gin.Context
func GetOrganization(c *gin.Context) *payorder.Organization {
	if v, exists := c.Get(OrganizationKey); exists {
		if org, ok := v.(*payorder.Organization); ok {
			return org
		}
	}
	return nil
}
