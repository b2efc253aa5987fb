package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a plan is created without a currency.
const DefaultCurrency = "USD"

// Plan represents a trainer-led program with a bounded number of seats.
type Plan struct {
	ID                  string          `json:"id"`
	TrainerID           string          `json:"trainer_id"`
	Title               string          `json:"title"`
	Description         string          `json:"description"`
	Duration            string          `json:"duration"`
	MaxParticipants     int             `json:"max_participants"`
	CurrentParticipants int             `json:"current_participants"`
	IsActive            bool            `json:"is_active"`
	StartDate           time.Time       `json:"start_date"`
	EndDate             time.Time       `json:"end_date"`
	Price               decimal.Decimal `json:"price"`
	Currency            string          `json:"currency"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// HasAvailableSpots reports whether at least one seat is free.
func (p *Plan) HasAvailableSpots() bool {
	return p.CurrentParticipants < p.MaxParticipants
}

// AvailableSpots returns the number of free seats.
func (p *Plan) AvailableSpots() int {
	if n := p.MaxParticipants - p.CurrentParticipants; n > 0 {
		return n
	}
	return 0
}

// HasEnded reports whether the plan window closed before t.
func (p *Plan) HasEnded(t time.Time) bool {
	return t.After(p.EndDate)
}
