package payorder

// Status represents the lifecycle status of a pay order
type Status string

const (
	StatusPending              Status = "PENDING"
	StatusAwaitingPayment      Status = "AWAITING_PAYMENT"
	StatusAwaitingConfirmation Status = "AWAITING_CONFIRMATION"
	StatusExecutingOrder       Status = "EXECUTING_ORDER"
	StatusCompleted            Status = "COMPLETED"
	StatusFailed               Status = "FAILED"
	StatusExpired              Status = "EXPIRED"
	StatusRefunded             Status = "REFUNDED"
)

// AllStatuses lists every status in lifecycle order
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusAwaitingPayment,
		StatusAwaitingConfirmation,
		StatusExecutingOrder,
		StatusCompleted,
		StatusFailed,
		StatusExpired,
		StatusRefunded,
	}
}

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAwaitingPayment, StatusAwaitingConfirmation, StatusExecutingOrder,
		StatusCompleted, StatusFailed, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no transition may leave this status
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status.
// The graph is acyclic, so a status is never revisited.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusAwaitingPayment || target == StatusExpired
	case StatusAwaitingPayment:
		return target == StatusAwaitingConfirmation || target == StatusFailed || target == StatusExpired
	case StatusAwaitingConfirmation:
		return target == StatusExecutingOrder || target == StatusFailed
	case StatusExecutingOrder:
		return target == StatusCompleted || target == StatusRefunded
	case StatusCompleted, StatusFailed, StatusExpired, StatusRefunded:
		return false // Terminal states
	}
	return false
}

// Mode describes who fixes the destination of a pay order
type Mode string

const (
	// ModeSale is a merchant checkout. The destination is the organization's
	// settlement currency unless the order names one explicitly.
	ModeSale Mode = "SALE"
	// ModeDeposit moves value into a caller-chosen currency and address
	ModeDeposit Mode = "DEPOSIT"
)

// IsValid checks if the mode is a valid Mode
func (m Mode) IsValid() bool {
	return m == ModeSale || m == ModeDeposit
}

// String returns the string representation of Mode
func (m Mode) String() string {
	return string(m)
}
