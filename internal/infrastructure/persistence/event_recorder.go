package persistence

import (
	"context"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"gorm.io/gorm"
)

// EventRecorder writes domain events inside the transaction that persists
// their aggregate, so the events commit or roll back with it.
type EventRecorder interface {
	RecordEvents(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error
}

// RepositoryOption configures a GORM repository
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	recorder EventRecorder
}

// WithEventRecorder makes Save and SaveWithLock record the aggregate's
// pending domain events in the same transaction.
func WithEventRecorder(r EventRecorder) RepositoryOption {
	return func(o *repositoryOptions) {
		o.recorder = r
	}
}

func applyRepositoryOptions(opts []RepositoryOption) repositoryOptions {
	var o repositoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o repositoryOptions) record(ctx context.Context, tx *gorm.DB, events []shared.DomainEvent) error {
	if o.recorder == nil || len(events) == 0 {
		return nil
	}
	return o.recorder.RecordEvents(ctx, tx, events...)
}
