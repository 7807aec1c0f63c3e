package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"menuscore-backend/internal/analyses"
)

// Payer identifies who is paying for a report.
type Payer struct {
	Name  string
	Email string
}

// Charge is what a Settler is asked to collect. A non-empty Reference
// resumes an earlier pending charge instead of opening a new one.
type Charge struct {
	Reference   string
	AnalysisID  string
	AmountCents int64
	Currency    string
	Payer       Payer
}

// Settlement is the outcome reported by a Settler.
type Settlement struct {
	Reference string
	Status    string
	SettledAt time.Time
}

// Settler collects payment for a charge.
type Settler interface {
	Settle(ctx context.Context, charge Charge) (Settlement, error)
}

// InstantSettler completes every charge immediately.
type InstantSettler struct {
	Now func() time.Time
}

func (s InstantSettler) Settle(ctx context.Context, charge Charge) (Settlement, error) {
	if err := ctx.Err(); err != nil {
		return Settlement{}, err
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	reference := charge.Reference
	if reference == "" {
		reference = "pay_" + uuid.NewString()
	}
	return Settlement{
		Reference: reference,
		Status:    analyses.PaymentCompleted,
		SettledAt: now,
	}, nil
}
