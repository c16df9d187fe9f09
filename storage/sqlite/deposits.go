package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sparkwallet/spark/storage"
)

func (db *DB) AddDeposit(ctx context.Context, deposit storage.UnclaimedDeposit) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO unclaimed_deposits (txid, vout, address, credit_amount_sats, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		deposit.Txid, deposit.Vout, deposit.Address, deposit.CreditAmountSats, deposit.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: add deposit: %w", err)
	}
	return nil
}

func (db *DB) DeleteDeposit(ctx context.Context, txid string, vout uint32) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM unclaimed_deposits WHERE txid = ? AND vout = ?`, txid, vout)
	if err != nil {
		return fmt.Errorf("sqlite: delete deposit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrDepositNotFound
	}
	return nil
}

func (db *DB) ListDeposits(ctx context.Context) ([]storage.UnclaimedDeposit, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT txid, vout, address, credit_amount_sats, created_at FROM unclaimed_deposits ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list deposits: %w", err)
	}
	defer rows.Close()

	var out []storage.UnclaimedDeposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDeposit(row rowScanner) (storage.UnclaimedDeposit, error) {
	var d storage.UnclaimedDeposit
	var createdAt int64
	err := row.Scan(&d.Txid, &d.Vout, &d.Address, &d.CreditAmountSats, &createdAt)
	if err != nil {
		return storage.UnclaimedDeposit{}, err
	}
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	return d, nil
}

func (db *DB) UpdateDeposit(ctx context.Context, deposit storage.UnclaimedDeposit) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE unclaimed_deposits SET address = ?, credit_amount_sats = ? WHERE txid = ? AND vout = ?`,
		deposit.Address, deposit.CreditAmountSats, deposit.Txid, deposit.Vout,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update deposit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrDepositNotFound
	}
	return nil
}

var _ storage.DepositStore = (*DB)(nil)
