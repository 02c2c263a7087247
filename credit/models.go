package credit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/EfeDurmaz16/aspendos-reliability/id"
)

// TxType classifies a transaction log record.
type TxType string

// Transaction record types.
const (
	TxAdd     TxType = "add"
	TxReserve TxType = "reserve"
	TxCommit  TxType = "commit"
	TxRelease TxType = "release"
)

// Reason describes why credits were added or released.
type Reason string

// Well-known reasons. Callers may pass their own values; these cover the
// flows the surrounding service uses.
const (
	ReasonSubscriptionRenewal Reason = "subscription_renewal"
	ReasonPurchase            Reason = "purchase"
	ReasonPromotion           Reason = "promotion"
	ReasonReferral            Reason = "referral"
	ReasonAdjustment          Reason = "adjustment"
	ReasonRefund              Reason = "refund"

	// ReasonExpired marks releases performed by the expiry sweep, so they
	// stay distinguishable from explicit releases in the audit trail.
	ReasonExpired Reason = "expired"
)

// Reservation is a provisional hold on an account's credits. It is created
// by Reserve and terminated exactly once: by Commit (amount permanently
// deducted), by Release (amount returned to availability), or by the expiry
// sweep (an implicit release).
type Reservation struct {
	ID          id.ReservationID `json:"id"`
	AccountKey  string           `json:"account_key"`
	Amount      decimal.Decimal  `json:"amount"`
	OperationID string           `json:"operation_id"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

// Expired reports whether the reservation is past its expiry at the given time.
func (r *Reservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *Reservation) clone() *Reservation {
	cp := *r
	return &cp
}

// Transaction is an append-only audit record of a single balance mutation.
// Records are never modified after creation; per-account history is trimmed
// to a bounded recent window.
type Transaction struct {
	ID            id.TransactionID `json:"id"`
	Type          TxType           `json:"type"`
	AccountKey    string           `json:"account_key"`
	Amount        decimal.Decimal  `json:"amount"`
	OperationID   string           `json:"operation_id,omitempty"`
	ReservationID id.ReservationID `json:"reservation_id,omitempty"`
	Reason        Reason           `json:"reason,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Stats are aggregate counters across all accounts, accumulated as
// transaction records are appended.
type Stats struct {
	TotalIssued        decimal.Decimal `json:"total_issued"`
	TotalConsumed      decimal.Decimal `json:"total_consumed"`
	ActiveReservations int             `json:"active_reservations"`
	Committed          int64           `json:"committed"`
	Released           int64           `json:"released"`
	Expired            int64           `json:"expired"`
}
