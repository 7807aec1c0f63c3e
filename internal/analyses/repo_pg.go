package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"menuscore-backend/internal/analyses/scoring"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

const analysisColumns = `
	id, source_link, status, extraction_task_id, extraction_progress, results, error_message, completed_at,
	payment_status, payer_name, payer_email, payment_reference, payment_amount_cents, payment_currency, payment_settled_at,
	contact_name, contact_email, contact_phone, contact_saved_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Create inserts a new analysis.
func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO analyses (id, source_link, status, extraction_task_id, extraction_progress, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query,
		analysis.ID,
		analysis.SourceLink,
		analysis.Status,
		analysis.ExtractionTaskID,
		nullableInt(analysis.ExtractionProgress),
		analysis.CreatedAt,
		analysis.UpdatedAt,
	)
	return eris.Wrap(err, "analyses: insert")
}

// GetByID returns an analysis by ID, including its download log.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	return loadAnalysis(ctx, r.DB, analysisID, false)
}

// Update locks the row, applies mutate and writes the result in one transaction.
func (r *PGRepo) Update(ctx context.Context, analysisID string, mutate MutateFunc) (Analysis, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Analysis{}, eris.Wrap(err, "analyses: begin")
	}
	defer tx.Rollback()

	current, err := loadAnalysis(ctx, tx, analysisID, true)
	if err != nil {
		return Analysis{}, err
	}
	working := current.clone()
	if err := mutate(&working); err != nil {
		if errors.Is(err, ErrNoChange) {
			if err := tx.Commit(); err != nil {
				return Analysis{}, eris.Wrap(err, "analyses: commit")
			}
			return current, nil
		}
		return Analysis{}, err
	}
	working.ID = current.ID
	working.UpdatedAt = r.now()

	if err := updateWithTx(ctx, tx, working); err != nil {
		return Analysis{}, err
	}
	for _, d := range appendedDownloads(current.Downloads, working.Downloads) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analysis_downloads (analysis_id, downloaded_at, requester_address) VALUES ($1, $2, $3)`,
			working.ID, d.Timestamp, d.RequesterAddress,
		); err != nil {
			return Analysis{}, eris.Wrap(err, "analyses: insert download")
		}
	}
	if err := tx.Commit(); err != nil {
		return Analysis{}, eris.Wrap(err, "analyses: commit")
	}
	return working, nil
}

func (r *PGRepo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func updateWithTx(ctx context.Context, tx *sql.Tx, a Analysis) error {
	const query = `
UPDATE analyses
SET status = $2,
    extraction_progress = $3,
    results = $4,
    error_message = $5,
    completed_at = $6,
    payment_status = $7,
    payer_name = $8,
    payer_email = $9,
    payment_reference = $10,
    payment_amount_cents = $11,
    payment_currency = $12,
    payment_settled_at = $13,
    contact_name = $14,
    contact_email = $15,
    contact_phone = $16,
    contact_saved_at = $17,
    updated_at = $18
WHERE id = $1`
	results, err := marshalResults(a.Results)
	if err != nil {
		return err
	}
	args := []any{
		a.ID,
		a.Status,
		nullableInt(a.ExtractionProgress),
		results,
		nullableString(a.ErrorMessage),
		nullableTime(a.CompletedAt),
	}
	args = append(args, paymentArgs(a.Payment)...)
	args = append(args, contactArgs(a.Contact)...)
	args = append(args, a.UpdatedAt)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "analyses: update")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "analyses: rows affected")
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func loadAnalysis(ctx context.Context, q queryer, analysisID string, forUpdate bool) (Analysis, error) {
	query := `SELECT` + analysisColumns + `
FROM analyses
WHERE id = $1`
	if forUpdate {
		query += `
FOR UPDATE`
	}
	a, err := scanAnalysis(q.QueryRowContext(ctx, query, analysisID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, eris.Wrap(err, "analyses: select")
	}
	downloads, err := loadDownloads(ctx, q, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	a.Downloads = downloads
	return a, nil
}

func loadDownloads(ctx context.Context, q queryer, analysisID string) ([]Download, error) {
	rows, err := q.QueryContext(ctx, `
SELECT downloaded_at, requester_address
FROM analysis_downloads
WHERE analysis_id = $1
ORDER BY id`, analysisID)
	if err != nil {
		return nil, eris.Wrap(err, "analyses: select downloads")
	}
	defer rows.Close()

	out := []Download{}
	for rows.Next() {
		var d Download
		if err := rows.Scan(&d.Timestamp, &d.RequesterAddress); err != nil {
			return nil, eris.Wrap(err, "analyses: scan download")
		}
		d.Timestamp = d.Timestamp.UTC()
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "analyses: iterate downloads")
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var progress sql.NullInt64
	var results sql.NullString
	var errorMessage sql.NullString
	var completedAt sql.NullTime
	var paymentStatus, payerName, payerEmail, paymentRef, paymentCurrency sql.NullString
	var paymentAmount sql.NullInt64
	var paymentSettledAt sql.NullTime
	var contactName, contactEmail, contactPhone sql.NullString
	var contactSavedAt sql.NullTime

	if err := row.Scan(
		&a.ID,
		&a.SourceLink,
		&a.Status,
		&a.ExtractionTaskID,
		&progress,
		&results,
		&errorMessage,
		&completedAt,
		&paymentStatus,
		&payerName,
		&payerEmail,
		&paymentRef,
		&paymentAmount,
		&paymentCurrency,
		&paymentSettledAt,
		&contactName,
		&contactEmail,
		&contactPhone,
		&contactSavedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return Analysis{}, err
	}

	if progress.Valid {
		p := int(progress.Int64)
		a.ExtractionProgress = &p
	}
	if results.Valid && results.String != "" {
		var r scoring.Result
		if err := json.Unmarshal([]byte(results.String), &r); err != nil {
			return Analysis{}, eris.Wrap(err, "decode results")
		}
		a.Results = &r
	}
	a.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		a.CompletedAt = &t
	}
	if paymentStatus.Valid {
		a.Payment = &Payment{
			Status:      paymentStatus.String,
			PayerName:   payerName.String,
			PayerEmail:  payerEmail.String,
			Reference:   paymentRef.String,
			AmountCents: paymentAmount.Int64,
			Currency:    paymentCurrency.String,
		}
		if paymentSettledAt.Valid {
			t := paymentSettledAt.Time.UTC()
			a.Payment.SettledAt = &t
		}
	}
	if contactSavedAt.Valid {
		a.Contact = &Contact{
			Name:    contactName.String,
			Email:   contactEmail.String,
			Phone:   contactPhone.String,
			SavedAt: contactSavedAt.Time.UTC(),
		}
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func appendedDownloads(before, after []Download) []Download {
	if len(after) <= len(before) {
		return nil
	}
	return after[len(before):]
}

func paymentArgs(p *Payment) []any {
	if p == nil {
		return []any{nil, nil, nil, nil, nil, nil, nil}
	}
	return []any{
		p.Status,
		nullableString(p.PayerName),
		nullableString(p.PayerEmail),
		nullableString(p.Reference),
		p.AmountCents,
		nullableString(p.Currency),
		nullableTime(p.SettledAt),
	}
}

func contactArgs(c *Contact) []any {
	if c == nil {
		return []any{nil, nil, nil, nil}
	}
	return []any{
		nullableString(c.Name),
		nullableString(c.Email),
		nullableString(c.Phone),
		c.SavedAt,
	}
}

func marshalResults(r *scoring.Result) (any, error) {
	if r == nil {
		return nil, nil
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, eris.Wrap(err, "encode results")
	}
	return payload, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
