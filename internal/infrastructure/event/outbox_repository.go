package event

import (
	"context"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxRecord is the outbox_events row
type OutboxRecord struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID           `gorm:"type:uuid;index"`
	EventID        uuid.UUID           `gorm:"type:uuid;uniqueIndex"`
	EventType      string              `gorm:"type:varchar(100);not null"`
	AggregateID    uuid.UUID           `gorm:"type:uuid;index"`
	AggregateType  string              `gorm:"type:varchar(50);not null"`
	Payload        []byte              `gorm:"type:bytea;not null"`
	Status         shared.OutboxStatus `gorm:"type:varchar(20);not null;index:idx_outbox_events_status_created"`
	RetryCount     int                 `gorm:"not null;default:0"`
	MaxRetries     int                 `gorm:"not null;default:5"`
	LastError      string              `gorm:"type:text"`
	NextRetryAt    *time.Time
	ProcessedAt    *time.Time
	CreatedAt      time.Time `gorm:"not null;index:idx_outbox_events_status_created"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OutboxRecord) TableName() string {
	return "outbox_events"
}

func newOutboxRecord(e *shared.OutboxEntry) *OutboxRecord {
	return &OutboxRecord{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		EventID:        e.EventID,
		EventType:      e.EventType,
		AggregateID:    e.AggregateID,
		AggregateType:  e.AggregateType,
		Payload:        e.Payload,
		Status:         e.Status,
		RetryCount:     e.RetryCount,
		MaxRetries:     e.MaxRetries,
		LastError:      e.LastError,
		NextRetryAt:    e.NextRetryAt,
		ProcessedAt:    e.ProcessedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func (r *OutboxRecord) toEntry() *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		EventID:        r.EventID,
		EventType:      r.EventType,
		AggregateID:    r.AggregateID,
		AggregateType:  r.AggregateType,
		Payload:        r.Payload,
		Status:         r.Status,
		RetryCount:     r.RetryCount,
		MaxRetries:     r.MaxRetries,
		LastError:      r.LastError,
		NextRetryAt:    r.NextRetryAt,
		ProcessedAt:    r.ProcessedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toEntries(rows []OutboxRecord) []*shared.OutboxEntry {
	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].toEntry()
	}
	return entries
}

// AutoMigrateOutbox creates the outbox table for development databases
func AutoMigrateOutbox(db *gorm.DB) error {
	return db.AutoMigrate(&OutboxRecord{})
}

// GormOutboxRepository implements shared.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Save persists one or more outbox entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*OutboxRecord, len(entries))
	for i, e := range entries {
		rows[i] = newOutboxRecord(e)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// FindPending retrieves pending entries up to the specified limit
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var rows []OutboxRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return toEntries(rows), err
}

// FindRetryable retrieves failed entries that are due for retry
func (r *GormOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var rows []OutboxRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", shared.OutboxStatusFailed, before).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&rows).Error
	return toEntries(rows), err
}

// MarkProcessing locks the still-claimable entries among ids with
// FOR UPDATE SKIP LOCKED and moves them to PROCESSING
func (r *GormOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []OutboxRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id IN ? AND status IN ?", ids, []shared.OutboxStatus{
				shared.OutboxStatusPending,
				shared.OutboxStatusFailed,
			}).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		claimed := make([]uuid.UUID, len(rows))
		for i := range rows {
			claimed[i] = rows[i].ID
		}
		now := time.Now()
		if err := tx.Model(&OutboxRecord{}).
			Where("id IN ?", claimed).
			Updates(map[string]any{
				"status":     shared.OutboxStatusProcessing,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].Status = shared.OutboxStatusProcessing
			rows[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

// Update writes back the delivery state of an entry
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	return r.db.WithContext(ctx).
		Model(&OutboxRecord{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":        entry.Status,
			"retry_count":   entry.RetryCount,
			"last_error":    entry.LastError,
			"next_retry_at": entry.NextRetryAt,
			"processed_at":  entry.ProcessedAt,
			"updated_at":    entry.UpdatedAt,
		}).Error
}

// DeleteOlderThan deletes sent entries processed before the cutoff
func (r *GormOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, before).
		Delete(&OutboxRecord{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns the number of entries in each status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var results []struct {
		Status shared.OutboxStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&OutboxRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64, len(results))
	for _, res := range results {
		counts[res.Status] = res.Count
	}
	return counts, nil
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
