package audithook

// Action constants for audit events.
const (
	// Credit actions
	ActionCreditsAdded         = "credits.added"
	ActionCreditsReserved      = "credits.reserved"
	ActionReservationCommitted = "reservation.committed"
	ActionReservationReleased  = "reservation.released"
	ActionReservationExpired   = "reservation.expired"
	ActionInsufficientCredits  = "credits.insufficient"

	// Idempotency actions
	ActionIdempotencyHit = "idempotency.hit"

	// Dead letter queue actions
	ActionEntryEnqueued  = "dlq.enqueued"
	ActionEntryCompleted = "dlq.completed"
	ActionEntryFailed    = "dlq.failed"
	ActionEntryDead      = "dlq.dead"
	ActionEntryReplayed  = "dlq.replayed"
)

// Resource constants for audit events.
const (
	ResourceAccount     = "account"
	ResourceReservation = "reservation"
	ResourceOperation   = "operation"
	ResourceEntry       = "dlq_entry"
)

// Category constants for audit events.
const (
	CategoryCredits     = "credits"
	CategoryIdempotency = "idempotency"
	CategoryRetry       = "retry"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
