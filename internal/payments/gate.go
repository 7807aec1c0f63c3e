package payments

import (
	"context"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"menuscore-backend/internal/analyses"
	"menuscore-backend/internal/shared/metrics"
	"menuscore-backend/internal/shared/telemetry"
)

const (
	defaultAmountCents = 1990
	defaultCurrency    = "BRL"
	defaultDownloadURL = "/api/v1/reports"
	maxPayerNameLength = 200
)

// Gate records payments against analyses and guards the paid operations.
type Gate struct {
	Repo    analyses.Repo
	Settler Settler

	AmountCents int64
	Currency    string
	// PreviewUnlockedCount overrides the package default when set. Zero
	// withholds every recommendation.
	PreviewUnlockedCount *int
	DownloadURL          string
	Now                  func() time.Time
}

// PurchaseDetails summarizes a completed purchase.
type PurchaseDetails struct {
	AnalysisID    string     `json:"id"`
	Restaurant    string     `json:"restaurant,omitempty"`
	Email         string     `json:"email,omitempty"`
	PayerName     string     `json:"payerName,omitempty"`
	Reference     string     `json:"reference"`
	AmountCents   int64      `json:"amountCents"`
	Currency      string     `json:"currency"`
	SettledAt     *time.Time `json:"settledAt,omitempty"`
	DownloadURL   string     `json:"downloadUrl"`
	DownloadCount int        `json:"downloadCount"`
}

// RecordPayment settles the report price for an analysis. Paying again after
// completion only refreshes the payer details; paying again while a charge is
// pending resumes that charge by its reference.
func (g *Gate) RecordPayment(ctx context.Context, analysisID string, payer Payer) (analyses.Payment, error) {
	payer.Name = strings.TrimSpace(payer.Name)
	payer.Email = strings.TrimSpace(payer.Email)
	if payer.Email == "" {
		return analyses.Payment{}, analyses.NewValidationError("payerEmail", "required")
	}
	if _, err := mail.ParseAddress(payer.Email); err != nil {
		return analyses.Payment{}, analyses.NewValidationError("payerEmail", "invalid")
	}
	if len(payer.Name) > maxPayerNameLength {
		return analyses.Payment{}, analyses.NewValidationError("payerName", "too long")
	}

	settled := false
	updated, err := g.Repo.Update(ctx, analysisID, func(a *analyses.Analysis) error {
		if a.IsPaid() {
			if a.Payment.PayerName == payer.Name && a.Payment.PayerEmail == payer.Email {
				return analyses.ErrNoChange
			}
			a.Payment.PayerName = payer.Name
			a.Payment.PayerEmail = payer.Email
			return nil
		}

		charge := Charge{
			AnalysisID:  a.ID,
			AmountCents: g.amountCents(),
			Currency:    g.currency(),
			Payer:       payer,
		}
		if pending := a.Payment; pending != nil && pending.Reference != "" {
			charge.Reference = pending.Reference
			charge.AmountCents = pending.AmountCents
			charge.Currency = pending.Currency
		}
		s, err := g.settler().Settle(ctx, charge)
		if err != nil {
			return err
		}
		reference := s.Reference
		if charge.Reference != "" {
			reference = charge.Reference
		}
		payment := &analyses.Payment{
			Status:      s.Status,
			PayerName:   payer.Name,
			PayerEmail:  payer.Email,
			Reference:   reference,
			AmountCents: charge.AmountCents,
			Currency:    charge.Currency,
		}
		if s.Status == analyses.PaymentCompleted {
			at := s.SettledAt.UTC()
			if at.IsZero() {
				at = g.now()
			}
			payment.SettledAt = &at
			settled = true
		}
		a.Payment = payment
		return nil
	})
	if err != nil {
		telemetry.Warn("payment.record_failed", analyses.LogFields(ctx, analysisID, map[string]any{"err": err}))
		return analyses.Payment{}, err
	}
	if updated.Payment == nil {
		return analyses.Payment{}, analyses.ErrPaymentRequired
	}
	if settled {
		metrics.IncPaymentCompleted()
		telemetry.Info("payment.completed", analyses.LogFields(ctx, analysisID, map[string]any{
			"reference":    updated.Payment.Reference,
			"amount_cents": updated.Payment.AmountCents,
			"currency":     updated.Payment.Currency,
		}))
	}
	return *updated.Payment, nil
}

// IsUnlocked reports whether the full report of an analysis has been paid for.
func (g *Gate) IsUnlocked(ctx context.Context, analysisID string) (bool, error) {
	a, err := g.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return false, err
	}
	return a.IsPaid(), nil
}

// Preview applies the preview policy to a completed analysis.
func (g *Gate) Preview(a analyses.Analysis) analyses.Analysis {
	if a.Results == nil || a.IsPaid() {
		return a
	}
	redacted := RedactForPreview(*a.Results, g.previewUnlockedCount())
	a.Results = &redacted
	return a
}

// RegisterDownload appends to the download log of a paid analysis and returns
// the new log length.
func (g *Gate) RegisterDownload(ctx context.Context, analysisID, requesterAddress string) (int, error) {
	count := 0
	_, err := g.Repo.Update(ctx, analysisID, func(a *analyses.Analysis) error {
		if !a.IsPaid() {
			return analyses.ErrPaymentRequired
		}
		a.Downloads = append(a.Downloads, analyses.Download{
			Timestamp:        g.now(),
			RequesterAddress: strings.TrimSpace(requesterAddress),
		})
		count = len(a.Downloads)
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.IncReportDownload()
	telemetry.Info("report.downloaded", analyses.LogFields(ctx, analysisID, map[string]any{
		"download_count": count,
		"requester":      requesterAddress,
	}))
	return count, nil
}

// PurchaseDetails returns the purchase summary of a paid analysis.
func (g *Gate) PurchaseDetails(ctx context.Context, analysisID string) (PurchaseDetails, error) {
	a, err := g.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return PurchaseDetails{}, err
	}
	if !a.IsPaid() {
		return PurchaseDetails{}, analyses.ErrPaymentRequired
	}
	return g.purchaseDetails(a), nil
}

func (g *Gate) purchaseDetails(a analyses.Analysis) PurchaseDetails {
	details := PurchaseDetails{
		AnalysisID:    a.ID,
		Email:         a.Payment.PayerEmail,
		PayerName:     a.Payment.PayerName,
		Reference:     a.Payment.Reference,
		AmountCents:   a.Payment.AmountCents,
		Currency:      a.Payment.Currency,
		SettledAt:     a.Payment.SettledAt,
		DownloadURL:   g.downloadURL(a.ID),
		DownloadCount: len(a.Downloads),
	}
	if details.Email == "" && a.Contact != nil {
		details.Email = a.Contact.Email
	}
	if a.Results != nil {
		details.Restaurant = a.Results.Restaurant.Name
	}
	return details
}

func (g *Gate) downloadURL(analysisID string) string {
	base := strings.TrimSpace(g.DownloadURL)
	if base == "" {
		base = defaultDownloadURL
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "id=" + url.QueryEscape(analysisID)
}

func (g *Gate) settler() Settler {
	if g.Settler != nil {
		return g.Settler
	}
	return InstantSettler{Now: g.Now}
}

func (g *Gate) amountCents() int64 {
	if g.AmountCents > 0 {
		return g.AmountCents
	}
	return defaultAmountCents
}

func (g *Gate) currency() string {
	if c := strings.ToUpper(strings.TrimSpace(g.Currency)); c != "" {
		return c
	}
	return defaultCurrency
}

func (g *Gate) previewUnlockedCount() int {
	if g.PreviewUnlockedCount != nil {
		return max(*g.PreviewUnlockedCount, 0)
	}
	return PreviewUnlockedCount
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}
