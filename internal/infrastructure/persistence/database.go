package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/config"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database is the service's Postgres handle. Repositories take DB; SQL
// exposes the pool for health checks and the pool stats collector.
type Database struct {
	DB  *gorm.DB
	SQL *sql.DB
}

// Open connects to Postgres, sizes the pool and checks the connection.
// A nil logger keeps GORM silent.
func Open(ctx context.Context, cfg *config.DatabaseConfig, l gormlogger.Interface) (*Database, error) {
	if l == nil {
		l = gormlogger.Discard
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 l,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		// surfaces unique violations as gorm.ErrDuplicatedKey for the
		// transition and tx-hash conflict paths
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	database, err := wrap(db)
	if err != nil {
		return nil, err
	}

	database.SQL.SetMaxOpenConns(cfg.MaxOpenConns)
	database.SQL.SetMaxIdleConns(cfg.MaxIdleConns)
	database.SQL.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	database.SQL.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := database.Ping(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

func wrap(db *gorm.DB) (*Database, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	return &Database{DB: db, SQL: sqlDB}, nil
}

// AutoMigrate creates or updates the pay order tables
func (d *Database) AutoMigrate() error {
	return AutoMigrate(d.DB)
}

// AutoMigrate creates or updates the pay order tables on any GORM
// connection. The versioned SQL migrations remain the production path.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.OrganizationModel{},
		&models.PayOrderModel{},
		&models.PayOrderTransitionModel{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Ping checks the connection, bounded by ctx
func (d *Database) Ping(ctx context.Context) error {
	if err := d.SQL.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.SQL.Close()
}
