package router

import (
	"net/http"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/logger"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/interfaces/http/handler"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers are the HTTP handlers mounted by NewEngine
type Handlers struct {
	PayOrders     *handler.PayOrderHandler
	Organizations *handler.OrganizationHandler
	Currencies    *handler.CurrencyHandler
	Health        *handler.HealthHandler
}

// EngineConfig carries the cross-cutting pieces of the HTTP stack
type EngineConfig struct {
	ServiceName string
	MaxBodySize int64
	// MetricsPath is served outside the API prefix and without auth.
	// Empty disables the endpoint.
	MetricsPath    string
	MetricsHandler http.Handler
	Recorder       middleware.HTTPRecorder
	Auth           middleware.APIKeyAuthConfig
	Logger         *zap.Logger
}

// NewEngine assembles the gin engine: global middleware, system endpoints
// and the authenticated /api/v1 routes.
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := logger.OrNop(cfg.Logger)

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing(cfg.ServiceName))
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, logger.WithQuietPaths("/health", cfg.MetricsPath)))
	engine.Use(middleware.Secure())
	if cfg.Recorder != nil {
		engine.Use(middleware.HTTPMetrics(cfg.Recorder))
	}
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	if h.Health != nil {
		engine.GET("/health", h.Health.Health)
	}
	if cfg.MetricsPath != "" && cfg.MetricsHandler != nil {
		engine.GET(cfg.MetricsPath, gin.WrapH(cfg.MetricsHandler))
	}

	api := NewAPI(engine, WithVersion("v1"))
	api.Use(middleware.APIKeyAuth(cfg.Auth), middleware.SpanAttributes())
	var resources []*Resource
	if h.PayOrders != nil {
		resources = append(resources, PayOrderRoutes(h.PayOrders))
	}
	if h.Organizations != nil {
		resources = append(resources, OrganizationRoutes(h.Organizations))
	}
	if h.Currencies != nil {
		resources = append(resources, NewResource("currencies", "/currencies").GET("", h.Currencies.List))
	}
	for _, res := range resources {
		api.Add(res)
		log.Debug("Mounted resource",
			zap.String("resource", res.Name),
			zap.Strings("routes", res.Paths(api.Base())),
		)
	}
	api.Mount()

	return engine
}

// PayOrderRoutes is the pay order lifecycle surface
func PayOrderRoutes(h *handler.PayOrderHandler) *Resource {
	return &Resource{
		Name:   "pay-orders",
		Prefix: "/pay-orders",
		Routes: []Route{
			{http.MethodPost, "", []gin.HandlerFunc{h.Create}},
			{http.MethodGet, "", []gin.HandlerFunc{h.List}},
			{http.MethodGet, "/:id", []gin.HandlerFunc{h.Get}},
			{http.MethodPost, "/:id/quote", []gin.HandlerFunc{h.Quote}},
			{http.MethodPost, "/:id/payment-details", []gin.HandlerFunc{h.PaymentDetails}},
			{http.MethodGet, "/:id/process", []gin.HandlerFunc{h.Process}},
		},
	}
}

// OrganizationRoutes lets the caller manage its own organization
func OrganizationRoutes(h *handler.OrganizationHandler) *Resource {
	return NewResource("organizations", "/organizations/me").
		GET("", h.GetMe).
		PUT("/settlement-currencies", h.ReplaceSettlementCurrencies).
		POST("/rotate-key", h.RotateKey)
}
