package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sparkwallet/spark/syncengine"
)

// EnqueueOutgoing records a local write as a new pending outgoing
// change, for the relational app layer to call whenever it mutates
// synced state. Not part of syncengine.Storage: the engine only ever
// reads and completes pending outgoing changes, it never creates them.
func (db *DB) EnqueueOutgoing(ctx context.Context, change syncengine.OutgoingChange) error {
	fieldsJSON, err := encodeFieldMap(change.Change.UpdatedFields)
	if err != nil {
		return err
	}

	var parent sql.NullInt64
	if change.Change.Parent != nil {
		parent = sql.NullInt64{Int64: int64(*change.Change.Parent), Valid: true}
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO sync_pending_outgoing (type, data_id, schema_version, updated_fields, revision, parent)
		VALUES (?, ?, ?, ?, ?, ?)`,
		change.Change.ID.Type, change.Change.ID.DataID, change.Change.SchemaVersion,
		fieldsJSON, change.Change.Revision, parent,
	)
	if err != nil {
		return fmt.Errorf("sqlite: enqueue outgoing change: %w", err)
	}
	return nil
}

// GetLatestOutgoingChange implements syncengine.Storage.
func (db *DB) GetLatestOutgoingChange(ctx context.Context) (*syncengine.OutgoingChange, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT type, data_id, schema_version, updated_fields, revision, parent
		FROM sync_pending_outgoing ORDER BY revision DESC LIMIT 1`)

	change, err := scanOutgoingChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get latest outgoing change: %w", err)
	}
	return &change, nil
}

// GetPendingOutgoingChanges implements syncengine.Storage.
func (db *DB) GetPendingOutgoingChanges(ctx context.Context, limit int) ([]syncengine.OutgoingChange, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT type, data_id, schema_version, updated_fields, revision, parent
		FROM sync_pending_outgoing ORDER BY revision ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get pending outgoing changes: %w", err)
	}
	defer rows.Close()

	var out []syncengine.OutgoingChange
	for rows.Next() {
		c, err := scanOutgoingChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanOutgoingChange(row rowScanner) (syncengine.OutgoingChange, error) {
	var typ, dataID, schemaVersion, updatedFieldsJSON string
	var revision uint64
	var parent sql.NullInt64

	err := row.Scan(&typ, &dataID, &schemaVersion, &updatedFieldsJSON, &revision, &parent)
	if err != nil {
		return syncengine.OutgoingChange{}, err
	}

	fields, err := decodeFieldMap(updatedFieldsJSON)
	if err != nil {
		return syncengine.OutgoingChange{}, err
	}

	change := syncengine.RecordChange{
		ID:            syncengine.RecordID{Type: typ, DataID: dataID},
		SchemaVersion: schemaVersion,
		UpdatedFields: fields,
		Revision:      revision,
	}
	if parent.Valid {
		p := uint64(parent.Int64)
		change.Parent = &p
	}
	return syncengine.OutgoingChange{Change: change}, nil
}

// CompleteOutgoingSync implements syncengine.Storage.
func (db *DB) CompleteOutgoingSync(ctx context.Context, record syncengine.Record) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: complete outgoing sync: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM sync_pending_outgoing WHERE type = ? AND data_id = ?`,
		record.ID.Type, record.ID.DataID); err != nil {
		return fmt.Errorf("sqlite: complete outgoing sync: delete pending: %w", err)
	}

	dataJSON, err := encodeFieldMap(record.Data)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_current_record (type, data_id, revision, schema_version, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, data_id) DO UPDATE SET revision = excluded.revision,
			schema_version = excluded.schema_version, data = excluded.data`,
		record.ID.Type, record.ID.DataID, record.Revision, record.SchemaVersion, dataJSON); err != nil {
		return fmt.Errorf("sqlite: complete outgoing sync: upsert record: %w", err)
	}

	return tx.Commit()
}

// InsertIncomingRecords implements syncengine.Storage.
func (db *DB) InsertIncomingRecords(ctx context.Context, records []syncengine.Record) error {
	for _, r := range records {
		dataJSON, err := encodeFieldMap(r.Data)
		if err != nil {
			return err
		}
		if _, err := db.conn.ExecContext(ctx, `
			INSERT INTO sync_pending_incoming (type, data_id, revision, schema_version, data)
			VALUES (?, ?, ?, ?, ?)`,
			r.ID.Type, r.ID.DataID, r.Revision, r.SchemaVersion, dataJSON); err != nil {
			return fmt.Errorf("sqlite: insert incoming record: %w", err)
		}
	}
	return nil
}

// GetIncomingRecords implements syncengine.Storage.
func (db *DB) GetIncomingRecords(ctx context.Context, limit int) ([]syncengine.IncomingChange, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT type, data_id, revision, schema_version, data
		FROM sync_pending_incoming ORDER BY revision ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get incoming records: %w", err)
	}
	defer rows.Close()

	var out []syncengine.IncomingChange
	for rows.Next() {
		newState, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		old, err := db.GetRecord(ctx, newState.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, syncengine.IncomingChange{NewState: newState, OldState: old})
	}
	return out, rows.Err()
}

func scanRecord(row rowScanner) (syncengine.Record, error) {
	var typ, dataID, schemaVersion, dataJSON string
	var revision uint64

	if err := row.Scan(&typ, &dataID, &revision, &schemaVersion, &dataJSON); err != nil {
		return syncengine.Record{}, err
	}

	data, err := decodeFieldMap(dataJSON)
	if err != nil {
		return syncengine.Record{}, err
	}

	return syncengine.Record{
		ID:            syncengine.RecordID{Type: typ, DataID: dataID},
		Revision:      revision,
		SchemaVersion: schemaVersion,
		Data:          data,
	}, nil
}

// RebasePendingOutgoingRecords implements syncengine.Storage.
func (db *DB) RebasePendingOutgoingRecords(ctx context.Context, aboveRevision uint64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sync_pending_outgoing SET revision = ? WHERE revision <= ?`,
		aboveRevision+1, aboveRevision)
	if err != nil {
		return fmt.Errorf("sqlite: rebase pending outgoing records: %w", err)
	}
	return nil
}

// UpdateRecordFromIncoming implements syncengine.Storage.
func (db *DB) UpdateRecordFromIncoming(ctx context.Context, record syncengine.Record) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: update record from incoming: begin: %w", err)
	}
	defer tx.Rollback()

	dataJSON, err := encodeFieldMap(record.Data)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_current_record (type, data_id, revision, schema_version, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, data_id) DO UPDATE SET revision = excluded.revision,
			schema_version = excluded.schema_version, data = excluded.data`,
		record.ID.Type, record.ID.DataID, record.Revision, record.SchemaVersion, dataJSON); err != nil {
		return fmt.Errorf("sqlite: update record from incoming: upsert record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sync_last_revision SET revision = ? WHERE revision < ?`,
		record.Revision, record.Revision); err != nil {
		return fmt.Errorf("sqlite: update record from incoming: bump last revision: %w", err)
	}

	return tx.Commit()
}

// DeleteIncomingRecord implements syncengine.Storage.
func (db *DB) DeleteIncomingRecord(ctx context.Context, record syncengine.Record) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM sync_pending_incoming WHERE type = ? AND data_id = ? AND revision = ?`,
		record.ID.Type, record.ID.DataID, record.Revision)
	if err != nil {
		return fmt.Errorf("sqlite: delete incoming record: %w", err)
	}
	return nil
}

// GetLastRevision implements syncengine.Storage.
func (db *DB) GetLastRevision(ctx context.Context) (uint64, error) {
	var revision uint64
	err := db.conn.QueryRowContext(ctx, `SELECT revision FROM sync_last_revision WHERE id = 0`).Scan(&revision)
	if err != nil {
		return 0, fmt.Errorf("sqlite: get last revision: %w", err)
	}
	return revision, nil
}

// GetRecord implements syncengine.Storage.
func (db *DB) GetRecord(ctx context.Context, id syncengine.RecordID) (*syncengine.Record, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT type, data_id, revision, schema_version, data
		FROM sync_current_record WHERE type = ? AND data_id = ?`, id.Type, id.DataID)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get record: %w", err)
	}
	return &record, nil
}

var _ syncengine.Storage = (*DB)(nil)
