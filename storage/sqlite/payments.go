package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sparkwallet/spark/storage"
)

func (db *DB) ListPayments(ctx context.Context, filter storage.PaymentFilter, paging storage.Paging) ([]storage.Payment, error) {
	query := `SELECT id, type, status, amount_sats, fee_sats, invoice_id, created_at, updated_at FROM payments WHERE 1=1`
	var args []any

	if filter.Type != nil {
		query += " AND type = ?"
		args = append(args, *filter.Type)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.CreatedFrom != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.CreatedFrom.Unix())
	}
	if filter.CreatedTo != nil {
		query += " AND created_at <= ?"
		args = append(args, filter.CreatedTo.Unix())
	}

	query += " ORDER BY created_at"
	if paging.Order == storage.SortDescending {
		query += " DESC"
	} else {
		query += " ASC"
	}
	if paging.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, paging.Limit, paging.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list payments: %w", err)
	}
	defer rows.Close()

	var out []storage.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (storage.Payment, error) {
	var p storage.Payment
	var amountText, feeText string
	var createdAt, updatedAt int64
	err := row.Scan(&p.ID, &p.Type, &p.Status, &amountText, &feeText, &p.InvoiceID, &createdAt, &updatedAt)
	if err != nil {
		return storage.Payment{}, err
	}

	amount, ok := new(big.Int).SetString(amountText, 10)
	if !ok {
		return storage.Payment{}, fmt.Errorf("sqlite: corrupt amount_sats %q for payment %s", amountText, p.ID)
	}
	fee, ok := new(big.Int).SetString(feeText, 10)
	if !ok {
		return storage.Payment{}, fmt.Errorf("sqlite: corrupt fee_sats %q for payment %s", feeText, p.ID)
	}
	p.AmountSats = amount
	p.FeeSats = fee
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return p, nil
}

// InsertPayment inserts payment, or updates it in place if a payment
// with the same id already exists. Upsert semantics let both the
// payment-creation path and the sync engine's incoming-change replay
// (which must be idempotent across a crash/retry) share this method.
func (db *DB) InsertPayment(ctx context.Context, payment storage.Payment) error {
	if payment.AmountSats == nil {
		payment.AmountSats = new(big.Int)
	}
	if payment.FeeSats == nil {
		payment.FeeSats = new(big.Int)
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO payments (id, type, status, amount_sats, fee_sats, invoice_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET type = excluded.type, status = excluded.status,
			amount_sats = excluded.amount_sats, fee_sats = excluded.fee_sats,
			invoice_id = excluded.invoice_id, updated_at = excluded.updated_at`,
		payment.ID, payment.Type, payment.Status,
		payment.AmountSats.String(), payment.FeeSats.String(), payment.InvoiceID,
		payment.CreatedAt.Unix(), payment.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert payment: %w", err)
	}
	return nil
}

func (db *DB) GetPaymentByID(ctx context.Context, id string) (*storage.Payment, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, type, status, amount_sats, fee_sats, invoice_id, created_at, updated_at
		FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get payment by id: %w", err)
	}
	return &p, nil
}

func (db *DB) GetPaymentByInvoice(ctx context.Context, invoiceID string) (*storage.Payment, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, type, status, amount_sats, fee_sats, invoice_id, created_at, updated_at
		FROM payments WHERE invoice_id = ?`, invoiceID)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get payment by invoice: %w", err)
	}
	return &p, nil
}

func (db *DB) SetPaymentMetadata(ctx context.Context, meta storage.PaymentMetadata) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO payment_metadata (payment_id, lnurl_domain, lnurl_action)
		VALUES (?, ?, ?)
		ON CONFLICT(payment_id) DO UPDATE SET lnurl_domain = excluded.lnurl_domain, lnurl_action = excluded.lnurl_action`,
		meta.PaymentID, meta.LNURLDomain, meta.LNURLAction,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set payment metadata: %w", err)
	}
	return nil
}

func (db *DB) GetRequestMetadata(ctx context.Context, request string) (*storage.RequestMetadata, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT request, memo, expires_at FROM request_metadata WHERE request = ?`, request)

	var meta storage.RequestMetadata
	var expiresAt int64
	err := row.Scan(&meta.Request, &meta.Memo, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get request metadata: %w", err)
	}
	meta.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &meta, nil
}

func (db *DB) SetRequestMetadata(ctx context.Context, meta storage.RequestMetadata) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO request_metadata (request, memo, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(request) DO UPDATE SET memo = excluded.memo, expires_at = excluded.expires_at`,
		meta.Request, meta.Memo, meta.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: set request metadata: %w", err)
	}
	return nil
}

func (db *DB) DeleteExpiredRequestMetadata(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM request_metadata WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite: delete expired request metadata: %w", err)
	}
	return nil
}

var _ storage.PaymentStore = (*DB)(nil)
