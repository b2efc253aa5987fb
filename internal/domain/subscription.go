package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

// Subscription statuses.
const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// IsValid checks if the status is known.
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusPending, SubscriptionStatusActive,
		SubscriptionStatusCancelled, SubscriptionStatusExpired:
		return true
	}
	return false
}

// IsOpen reports whether the subscription holds a seat on its plan.
func (s SubscriptionStatus) IsOpen() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusPending
}

// OpenStatuses lists the statuses that hold a seat.
var OpenStatuses = []SubscriptionStatus{SubscriptionStatusActive, SubscriptionStatusPending}

// PaymentMethod is how the trainee intends to pay.
type PaymentMethod string

// Payment methods.
const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCrypto       PaymentMethod = "crypto"
)

// IsValid checks if the payment method is known.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPayPal,
		PaymentMethodBankTransfer, PaymentMethodCrypto:
		return true
	}
	return false
}

// PaymentStatus is a placeholder; no payment is processed.
type PaymentStatus string

// Payment statuses.
const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment holds the payment details recorded with a subscription.
type Payment struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Method        PaymentMethod   `json:"payment_method"`
	Status        PaymentStatus   `json:"payment_status"`
}

// LedgerEntryType is the kind of notice recorded in a subscription ledger.
type LedgerEntryType string

// Ledger entry types.
const (
	LedgerEntryRenewal    LedgerEntryType = "renewal"
	LedgerEntryExpiration LedgerEntryType = "expiration"
	LedgerEntryPayment    LedgerEntryType = "payment"
)

// LedgerEntry records a notice already sent for a subscription.
type LedgerEntry struct {
	Type    LedgerEntryType `json:"type"`
	SentAt  time.Time       `json:"sent_at"`
	Message string          `json:"message"`
}

// Subscription is a trainee's time-boxed enrollment in a plan.
type Subscription struct {
	ID                string             `json:"id"`
	TraineeID         string             `json:"trainee_id"`
	TrainerID         string             `json:"trainer_id"`
	PlanID            string             `json:"plan_id"`
	Status            SubscriptionStatus `json:"status"`
	StartDate         time.Time          `json:"start_date"`
	EndDate           time.Time          `json:"end_date"`
	Payment           Payment            `json:"payment"`
	AutoRenew         bool               `json:"auto_renew"`
	NotificationsSent []LedgerEntry      `json:"notifications_sent"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`

	// PlanTitle is filled by reads that join the plan.
	PlanTitle string `json:"plan_title,omitempty"`
}

// HasLedgerEntry reports whether a notice of type t was already recorded.
func (s *Subscription) HasLedgerEntry(t LedgerEntryType) bool {
	for _, e := range s.NotificationsSent {
		if e.Type == t {
			return true
		}
	}
	return false
}

// AppendLedgerEntry records a notice.
func (s *Subscription) AppendLedgerEntry(t LedgerEntryType, at time.Time, message string) {
	s.NotificationsSent = append(s.NotificationsSent, LedgerEntry{Type: t, SentAt: at, Message: message})
}

// DropLedgerEntries removes every entry of type t, keeping the order of the rest.
func (s *Subscription) DropLedgerEntries(t LedgerEntryType) {
	kept := make([]LedgerEntry, 0, len(s.NotificationsSent))
	for _, e := range s.NotificationsSent {
		if e.Type != t {
			kept = append(kept, e)
		}
	}
	s.NotificationsSent = kept
}

// Clone returns a deep copy of the subscription.
func (s *Subscription) Clone() *Subscription {
	c := *s
	c.NotificationsSent = append(make([]LedgerEntry, 0, len(s.NotificationsSent)), s.NotificationsSent...)
	return &c
}
