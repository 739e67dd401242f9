package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	payorderapp "github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/application/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/auth"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/cache"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/chain"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/config"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/event"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/logger"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/persistence"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/pricing"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/routing"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/scheduler"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/telemetry"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/interfaces/http/handler"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/interfaces/http/middleware"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//	@title			Pay Order API
//	@version		1.0
//	@description	Crypto pay order lifecycle: quoting, deposit routing, on-chain verification and settlement tracking.

//	@contact.name	API Support
//	@contact.url	https://github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-KEY
//	@description				Organization API key. Signed requests may use "Authorization: Signature ..." instead.

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Fields: map[string]string{"service": cfg.App.Name, "env": cfg.App.Env},
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	collector := telemetry.Exporter{Endpoint: cfg.Tracing.CollectorEndpoint, Insecure: cfg.Tracing.Insecure}
	service := telemetry.Service{Name: cfg.App.Name, Environment: cfg.App.Env, Version: version}

	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:  cfg.Log.ExportOTLP,
		Exporter: collector,
		Service:  service,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = logProvider.Bridge(log, cfg.App.Name, logger.ParseLevel(cfg.Log.Level))
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting pay order service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Enabled:       cfg.Tracing.Enabled,
		Exporter:      collector,
		Service:       service,
		SamplingRatio: cfg.Tracing.SamplingRatio,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Database
	gormLogger := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(200*time.Millisecond))
	db, err := persistence.Open(ctx, &cfg.Database, gormLogger)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := telemetry.InstrumentDB(db.DB, cfg.Database.DBName); err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate schema", zap.Error(err))
		}
		if cfg.Outbox.Enabled {
			if err := event.AutoMigrateOutbox(db.DB); err != nil {
				log.Fatal("Failed to migrate outbox schema", zap.Error(err))
			}
		}
	}
	log.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.DBName),
	)

	serializer := event.NewEventSerializer()
	var repoOpts []persistence.RepositoryOption
	if cfg.Outbox.Enabled {
		repoOpts = append(repoOpts, persistence.WithEventRecorder(event.NewOutboxRecorder(serializer)))
	}
	payOrderRepo := persistence.NewGormPayOrderRepository(db.DB, repoOpts...)
	orgRepo := persistence.NewGormOrganizationRepository(db.DB, repoOpts...)

	currencies, err := cfg.CurrencyCatalog()
	if err != nil {
		log.Fatal("Invalid currency catalog", zap.Error(err))
	}

	claims, err := cache.NewClaimStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create route claim store", zap.Error(err))
	}

	// External providers
	httpClient := &http.Client{Timeout: cfg.Providers.Timeout}
	prices := pricing.NewCoinGeckoClient(pricing.CoinGeckoConfig{
		BaseURL: cfg.Providers.CoinGecko.BaseURL,
		APIKey:  cfg.Providers.CoinGecko.APIKey,
		Timeout: cfg.Providers.Timeout,
	}, httpClient, log)
	exchange := routing.NewChangeNowClient(routing.ChangeNowConfig{
		BaseURL: cfg.Providers.ChangeNow.BaseURL,
		APIKey:  cfg.Providers.ChangeNow.APIKey,
		Timeout: cfg.Providers.Timeout,
	}, httpClient, log)

	chains, err := chain.NewRegistry(ctx, cfg.Chains, httpClient, cfg.Providers.Timeout, log)
	if err != nil {
		log.Fatal("Failed to connect chain readers", zap.Error(err))
	}

	// Metrics and events
	metrics := telemetry.NewMetrics(true)
	if err := metrics.RegisterDB(db.SQL, cfg.Database.DBName); err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(metrics)

	var kafka *event.KafkaPublisher
	if cfg.Kafka.Enabled {
		kafka = event.NewKafkaPublisher(event.KafkaPublisherConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: 10 * time.Second,
		}, serializer, log)
	}
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Services publish after commit unless the outbox relays their events
	var publisher shared.EventPublisher
	var outbox *event.OutboxProcessor
	if cfg.Outbox.Enabled {
		var sink shared.EventHandler
		if kafka != nil {
			sink = event.NewIdempotentHandler(kafka, claims, log)
		}
		outbox = event.NewOutboxProcessor(event.NewGormOutboxRepository(db.DB), event.NewRelay(sink, eventBus), serializer,
			event.OutboxProcessorConfig{
				BatchSize:        cfg.Outbox.BatchSize,
				PollInterval:     cfg.Outbox.PollInterval,
				CleanupEnabled:   true,
				CleanupRetention: cfg.Outbox.Retention,
				CleanupInterval:  cfg.Outbox.CleanupInterval,
			}, log)
		if err := outbox.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
	} else {
		if kafka != nil {
			eventBus.Subscribe(kafka)
		}
		publisher = eventBus
	}

	// Application services
	retrier := payorderapp.NewRetrier(payorderapp.RetryConfig{
		MaxAttempts:     cfg.Providers.Retry.MaxAttempts,
		InitialInterval: cfg.Providers.Retry.InitialInterval,
		MaxInterval:     cfg.Providers.Retry.MaxInterval,
		AttemptTimeout:  cfg.Providers.Timeout,
	}, log).WithObserver(metrics)

	policy := payorder.VerificationPolicy{
		MismatchRetryBudget: cfg.PayOrder.MismatchRetryBudget,
		AmountTolerance:     decimal.NewFromFloat(cfg.PayOrder.AmountTolerance),
		ConfirmationTimeout: cfg.PayOrder.ConfirmationTimeout,
	}

	quotes := payorderapp.NewQuoteEngine(payorderapp.QuoteEngineConfig{
		Pricing:    prices,
		Currencies: currencies,
		Retrier:    retrier,
		FeeRate:    decimal.NewFromFloat(cfg.PayOrder.FeeRate),
		QuoteTTL:   cfg.PayOrder.QuoteTTL,
		Logger:     log,
	})
	provisioner := payorderapp.NewRouteProvisioner(payorderapp.RouteProvisionerConfig{
		Routing:    exchange,
		Currencies: currencies,
		Claims:     claims,
		Retrier:    retrier,
		ClaimTTL:   cfg.PayOrder.RouteClaimTTL,
		Logger:     log,
	})
	verifier := payorderapp.NewTransactionVerifier(payorderapp.TransactionVerifierConfig{
		Readers:          chains.Readers(),
		Currencies:       currencies,
		Retrier:          retrier,
		MinConfirmations: chains.MinConfirmations(),
		AmountTolerance:  policy.AmountTolerance,
		Logger:           log,
	})

	payOrderService := payorderapp.NewPayOrderService(payorderapp.PayOrderServiceConfig{
		Repo:           payOrderRepo,
		OrgRepo:        orgRepo,
		Currencies:     currencies,
		Quotes:         quotes,
		Provisioner:    provisioner,
		Verifier:       verifier,
		Routing:        exchange,
		Retrier:        retrier,
		EventPublisher: publisher,
		Policy:         policy,
		OrderTTL:       cfg.PayOrder.OrderTTL,
		PaymentWindow:  cfg.PayOrder.PaymentWindow,
		Logger:         log,
	})
	organizationService := payorderapp.NewOrganizationService(orgRepo, currencies, publisher, log)
	expiryService := payorderapp.NewExpiryService(payOrderRepo, publisher, cfg.Scheduler.SweepBatchSize, log)
	settlementService := payorderapp.NewSettlementService(payOrderRepo, exchange, retrier, publisher,
		cfg.Scheduler.SweepBatchSize, log)

	// Background jobs
	jobs := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Enabled:           cfg.Scheduler.Enabled,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		RetryAttempts:     cfg.Scheduler.RetryAttempts,
		RetryDelay:        cfg.Scheduler.RetryDelay,
	}, scheduler.NewPayOrderJobExecutor(expiryService, settlementService, log), log,
		scheduler.WithJobObserver(metrics))
	trigger := scheduler.NewIntervalTrigger(jobs, log,
		scheduler.Interval{Type: scheduler.JobTypeExpirySweep, Every: cfg.Scheduler.SweepInterval},
		scheduler.Interval{Type: scheduler.JobTypeSettlementPoll, Every: cfg.Scheduler.SettlementPollInterval},
	)
	if cfg.Scheduler.Enabled {
		if err := jobs.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start job triggers", zap.Error(err))
		}
	}

	// HTTP
	middleware.SetupValidator()

	checks := map[string]handler.HealthCheck{
		"database": db.Ping,
	}
	if store, ok := claims.(*cache.RedisClaimStore); ok {
		checks["redis"] = func(ctx context.Context) error { return store.Client().Ping(ctx).Err() }
	}

	engineCfg := router.EngineConfig{
		ServiceName: cfg.App.Name,
		MaxBodySize: cfg.HTTP.MaxBodySize,
		Auth: middleware.APIKeyAuthConfig{
			Authenticator: organizationService,
			Verifier:      auth.NewSignatureVerifier(cfg.Auth.SignatureWindow),
			Logger:        log,
		},
		Logger: log,
	}
	if cfg.Metrics.Enabled {
		engineCfg.MetricsPath = cfg.Metrics.Path
		engineCfg.MetricsHandler = metrics.Handler()
		engineCfg.Recorder = metrics
	}
	engine := router.NewEngine(engineCfg, router.Handlers{
		PayOrders:     handler.NewPayOrderHandler(payOrderService),
		Organizations: handler.NewOrganizationHandler(organizationService),
		Currencies:    handler.NewCurrencyHandler(payorderapp.NewCurrencyService(currencies)),
		Health:        handler.NewHealthHandler(2*time.Second, checks),
	})
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Warn("Job trigger stop failed", zap.Error(err))
		}
		if err := jobs.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduler stop failed", zap.Error(err))
		}
	}
	if outbox != nil {
		if err := outbox.Stop(shutdownCtx); err != nil {
			log.Warn("Outbox processor stop failed", zap.Error(err))
		}
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus stop failed", zap.Error(err))
	}
	if kafka != nil {
		if err := kafka.Close(); err != nil {
			log.Warn("Kafka publisher close failed", zap.Error(err))
		}
	}
	chains.Close()
	if err := claims.Close(); err != nil {
		log.Warn("Claim store close failed", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Warn("Database close failed", zap.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Tracer shutdown failed", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Log exporter shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
