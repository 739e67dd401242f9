// Command orgadmin registers merchant organizations and prints their API
// credentials. Organizations have no public creation endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	payorderapp "github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/application/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/config"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/logger"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// settlementFlag collects repeated -settle currency=address values
type settlementFlag []payorderapp.SettlementCurrencyInput

func (f *settlementFlag) String() string {
	parts := make([]string, len(*f))
	for i, s := range *f {
		parts[i] = s.CurrencyID + "=" + s.Address
	}
	return strings.Join(parts, ",")
}

func (f *settlementFlag) Set(value string) error {
	currency, address, ok := strings.Cut(value, "=")
	if !ok || currency == "" || address == "" {
		return fmt.Errorf("expected currency=address, got %q", value)
	}
	*f = append(*f, payorderapp.SettlementCurrencyInput{
		CurrencyID: strings.TrimSpace(currency),
		Address:    strings.TrimSpace(address),
	})
	return nil
}

func main() {
	var (
		name     string
		owner    string
		settle   settlementFlag
		logLevel string
	)
	flag.StringVar(&name, "name", "", "Organization name (required)")
	flag.StringVar(&owner, "owner", "", "Owner ID (UUID); a random one is generated when empty")
	flag.Var(&settle, "settle", "Settlement currency as currency=address; repeatable")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Parse()

	if name == "" {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ownerID := uuid.New()
	if owner != "" {
		if ownerID, err = uuid.Parse(owner); err != nil {
			log.Fatal("Invalid owner ID", zap.String("owner", owner), zap.Error(err))
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	currencies, err := cfg.CurrencyCatalog()
	if err != nil {
		log.Fatal("Invalid currency catalog", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persistence.Open(ctx, &cfg.Database, logger.NewGormLogger(log, gormlogger.Warn))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	service := payorderapp.NewOrganizationService(
		persistence.NewGormOrganizationRepository(db.DB), currencies, nil, log)

	creds, err := service.Create(ctx, payorderapp.CreateOrganizationRequest{
		Name:                 name,
		OwnerID:              ownerID,
		SettlementCurrencies: settle,
	})
	if err != nil {
		log.Fatal("Failed to create organization", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(creds); err != nil {
		log.Fatal("Failed to print credentials", zap.Error(err))
	}
}
