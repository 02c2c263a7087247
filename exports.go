package reliability

import (
	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/dlq"
	"github.com/EfeDurmaz16/aspendos-reliability/id"
	"github.com/EfeDurmaz16/aspendos-reliability/types"
)

// Re-export common types for convenience so users don't have to import
// subpackages for everyday operations.

// Entity is re-exported from types package.
type Entity = types.Entity

// Reservation is re-exported from credit package.
type Reservation = credit.Reservation

// Transaction is re-exported from credit package.
type Transaction = credit.Transaction

// Reason is re-exported from credit package.
type Reason = credit.Reason

// Entry is re-exported from dlq package.
type Entry = dlq.Entry

// Re-export credit reasons
const (
	ReasonSubscriptionRenewal = credit.ReasonSubscriptionRenewal
	ReasonPurchase            = credit.ReasonPurchase
	ReasonPromotion           = credit.ReasonPromotion
	ReasonReferral            = credit.ReasonReferral
	ReasonAdjustment          = credit.ReasonAdjustment
	ReasonRefund              = credit.ReasonRefund
)

// Re-export dead letter entry states
const (
	StatePending    = dlq.StatePending
	StateProcessing = dlq.StateProcessing
	StateDead       = dlq.StateDead
)

// Re-export Entity constructor
var NewEntity = types.NewEntity

// Re-export ID constructors and parsers
var (
	NewReservationID   = id.NewReservationID
	ParseReservationID = id.ParseReservationID
)
