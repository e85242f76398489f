package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/persistence"
)

const paymentColumns = `id, reservation_id, external_order_id, amount, currency, local_amount, local_currency,
	payer_email, status, stage, failure_reason, created_at, updated_at, captured_at`

// PaymentLedger implements persistence.PaymentLedger on SQLite.
type PaymentLedger struct {
	pool *ConnectionPool
}

func NewPaymentLedger(pool *ConnectionPool) *PaymentLedger {
	return &PaymentLedger{pool: pool}
}

func (l *PaymentLedger) CreatePayment(ctx context.Context, record persistence.PaymentRecord) error {
	const stmt = `INSERT INTO payments (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return l.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, stmt,
			record.ID,
			record.ReservationID,
			record.ExternalOrderID,
			record.Amount,
			record.Currency,
			record.LocalAmount,
			record.LocalCurrency,
			record.PayerEmail,
			string(record.Status),
			string(record.Stage),
			record.FailureReason,
			formatTime(record.CreatedAt),
			formatTime(record.UpdatedAt),
			formatOptionalTime(record.CapturedAt),
		)
		return MapError(err)
	})
}

func (l *PaymentLedger) GetPaymentByExternalID(ctx context.Context, externalOrderID string) (persistence.PaymentRecord, error) {
	row := l.pool.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_order_id = ?`, externalOrderID)
	record, err := scanPayment(row)
	if err != nil {
		return persistence.PaymentRecord{}, MapError(err)
	}
	return record, nil
}

func (l *PaymentLedger) ListPaymentsForReservation(ctx context.Context, reservationID string) ([]persistence.PaymentRecord, error) {
	rows, err := l.pool.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE reservation_id = ? ORDER BY created_at, id`, reservationID)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	records := make([]persistence.PaymentRecord, 0)
	for rows.Next() {
		record, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return records, nil
}

// AdvancePayment applies a stage transition guarded by the current stage so
// that a completion is written exactly once per external order id.
func (l *PaymentLedger) AdvancePayment(ctx context.Context, transition persistence.PaymentTransition) (persistence.PaymentRecord, error) {
	var updated persistence.PaymentRecord
	err := l.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
UPDATE payments SET
	stage = ?,
	status = ?,
	payer_email = CASE WHEN ? <> '' THEN ? ELSE payer_email END,
	failure_reason = CASE WHEN ? <> '' THEN ? ELSE failure_reason END,
	captured_at = COALESCE(?, captured_at),
	updated_at = ?
WHERE external_order_id = ? AND stage = ?`,
			string(transition.To),
			string(transition.To.Status()),
			transition.PayerEmail, transition.PayerEmail,
			transition.FailureReason, transition.FailureReason,
			formatOptionalTime(transition.CapturedAt),
			formatTime(transition.At),
			transition.ExternalOrderID,
			string(transition.From),
		)
		if err != nil {
			return MapError(err)
		}

		row := tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_order_id = ?`, transition.ExternalOrderID)
		current, err := scanPayment(row)
		if err != nil {
			return MapError(err)
		}
		updated = current

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return persistence.ErrStaleState
		}
		return nil
	})
	return updated, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (persistence.PaymentRecord, error) {
	var (
		record     persistence.PaymentRecord
		status     string
		stage      string
		createdAt  string
		updatedAt  string
		capturedAt sql.NullString
	)
	err := row.Scan(
		&record.ID,
		&record.ReservationID,
		&record.ExternalOrderID,
		&record.Amount,
		&record.Currency,
		&record.LocalAmount,
		&record.LocalCurrency,
		&record.PayerEmail,
		&status,
		&stage,
		&record.FailureReason,
		&createdAt,
		&updatedAt,
		&capturedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.PaymentRecord{}, persistence.ErrNotFound
		}
		return persistence.PaymentRecord{}, err
	}

	record.Status = lifecycle.PaymentStatus(status)
	record.Stage = lifecycle.PaymentStage(stage)
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.PaymentRecord{}, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.PaymentRecord{}, err
	}
	if capturedAt.Valid && capturedAt.String != "" {
		captured, err := parseTime(capturedAt.String)
		if err != nil {
			return persistence.PaymentRecord{}, err
		}
		record.CapturedAt = &captured
	}
	return record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", value, err)
	}
	return t, nil
}
