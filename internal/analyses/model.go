package analyses

import (
	"time"

	"menuscore-backend/internal/analyses/scoring"
)

// Analysis is the record of a single listing evaluation.
type Analysis struct {
	ID                 string          `json:"id"`
	SourceLink         string          `json:"sourceLink"`
	Status             string          `json:"status"`
	ExtractionTaskID   string          `json:"extractionTaskId"`
	ExtractionProgress *int            `json:"extractionProgress,omitempty"`
	Results            *scoring.Result `json:"results,omitempty"`
	ErrorMessage       string          `json:"error,omitempty"`
	Payment            *Payment        `json:"payment,omitempty"`
	Contact            *Contact        `json:"contact,omitempty"`
	Downloads          []Download      `json:"downloads"`
	CompletedAt        *time.Time      `json:"completedAt,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Payment states.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)

// Payment records the purchase of the full report.
type Payment struct {
	Status      string     `json:"status"`
	PayerName   string     `json:"payerName"`
	PayerEmail  string     `json:"payerEmail"`
	Reference   string     `json:"reference"`
	AmountCents int64      `json:"amountCents"`
	Currency    string     `json:"currency"`
	SettledAt   *time.Time `json:"settledAt,omitempty"`
}

// Contact is optional requester information captured alongside an analysis.
type Contact struct {
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Phone   string    `json:"phone"`
	SavedAt time.Time `json:"savedAt"`
}

// Download is one entry of the append-only report download log.
type Download struct {
	Timestamp        time.Time `json:"timestamp"`
	RequesterAddress string    `json:"requesterAddress"`
}

// IsTerminal reports whether the record can no longer change status.
func (a Analysis) IsTerminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusFailed
}

// IsPaid reports whether the full report is unlocked.
func (a Analysis) IsPaid() bool {
	return a.Payment != nil && a.Payment.Status == PaymentCompleted
}

// clone returns a copy that shares no mutable state with a.
func (a Analysis) clone() Analysis {
	out := a
	if a.ExtractionProgress != nil {
		p := *a.ExtractionProgress
		out.ExtractionProgress = &p
	}
	if a.Results != nil {
		r := a.Results.Clone()
		out.Results = &r
	}
	if a.Payment != nil {
		p := *a.Payment
		if a.Payment.SettledAt != nil {
			t := *a.Payment.SettledAt
			p.SettledAt = &t
		}
		out.Payment = &p
	}
	if a.Contact != nil {
		c := *a.Contact
		out.Contact = &c
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	out.Downloads = append([]Download{}, a.Downloads...)
	return out
}
