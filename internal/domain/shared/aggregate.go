package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseAggregateRoot holds what every aggregate persists besides its own
// state: identity, timestamps, the optimistic-lock version, and the events
// raised since the last save.
type BaseAggregateRoot struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	// Version is the row version the aggregate was loaded at. Repositories
	// bump it after a successful conditional write.
	Version int

	domainEvents []DomainEvent
}

// NewBaseAggregateRoot stamps a fresh identity created at the given instant
func NewBaseAggregateRoot(at time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{
		ID:        uuid.New(),
		CreatedAt: at,
		UpdatedAt: at,
		Version:   1,
	}
}

func (a *BaseAggregateRoot) GetVersion() int { return a.Version }

func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }

// Touch moves UpdatedAt forward; an earlier instant is ignored
func (a *BaseAggregateRoot) Touch(at time.Time) {
	if at.After(a.UpdatedAt) {
		a.UpdatedAt = at
	}
}

// AddDomainEvent queues an event for the next save
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent { return a.domainEvents }

func (a *BaseAggregateRoot) ClearDomainEvents() { a.domainEvents = nil }

// HasPendingEvents reports whether the aggregate changed since it was loaded
// or last saved. Replayed transitions raise nothing.
func (a *BaseAggregateRoot) HasPendingEvents() bool {
	return len(a.domainEvents) > 0
}

// OwnedAggregateRoot is an aggregate that belongs to one organization
type OwnedAggregateRoot struct {
	BaseAggregateRoot
	OrganizationID uuid.UUID
}

// NewOwnedAggregateRoot stamps a fresh identity owned by organizationID
func NewOwnedAggregateRoot(organizationID uuid.UUID, at time.Time) OwnedAggregateRoot {
	return OwnedAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(at),
		OrganizationID:    organizationID,
	}
}
