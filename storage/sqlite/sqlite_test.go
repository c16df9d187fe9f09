package sqlite

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sparkwallet/spark/storage"
	"github.com/sparkwallet/spark/syncengine"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPaymentInsertAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	status := storage.PaymentStatusPending
	typ := storage.PaymentTypeLightning
	payment := storage.Payment{
		ID:         "pay-1",
		Type:       typ,
		Status:     status,
		AmountSats: big.NewInt(21000),
		FeeSats:    big.NewInt(10),
		InvoiceID:  "inv-1",
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
		UpdatedAt:  time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, db.InsertPayment(ctx, payment))

	got, err := db.GetPaymentByID(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, 0, payment.AmountSats.Cmp(got.AmountSats))
	require.Equal(t, 0, payment.FeeSats.Cmp(got.FeeSats))
	require.Equal(t, payment.InvoiceID, got.InvoiceID)

	byInvoice, err := db.GetPaymentByInvoice(ctx, "inv-1")
	require.NoError(t, err)
	require.Equal(t, "pay-1", byInvoice.ID)

	_, err = db.GetPaymentByID(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrPaymentNotFound)
}

func TestPaymentListFiltersByTypeAndStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, typ := range []storage.PaymentType{storage.PaymentTypeLightning, storage.PaymentTypeToken, storage.PaymentTypeLightning} {
		require.NoError(t, db.InsertPayment(ctx, storage.Payment{
			ID:         []string{"a", "b", "c"}[i],
			Type:       typ,
			Status:     storage.PaymentStatusCompleted,
			AmountSats: big.NewInt(int64(i + 1)),
			FeeSats:    big.NewInt(0),
			CreatedAt:  time.Unix(int64(1700000000+i), 0).UTC(),
			UpdatedAt:  time.Unix(int64(1700000000+i), 0).UTC(),
		}))
	}

	lightning := storage.PaymentTypeLightning
	results, err := db.ListPayments(ctx, storage.PaymentFilter{Type: &lightning}, storage.Paging{})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestRequestMetadataUpsertAndExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	meta := storage.RequestMetadata{Request: "req-1", Memo: "coffee", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, db.SetRequestMetadata(ctx, meta))

	got, err := db.GetRequestMetadata(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, "coffee", got.Memo)

	meta.Memo = "tea"
	require.NoError(t, db.SetRequestMetadata(ctx, meta))
	got, err = db.GetRequestMetadata(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, "tea", got.Memo)

	expired := storage.RequestMetadata{Request: "req-expired", ExpiresAt: time.Now().Add(-time.Hour)}
	require.NoError(t, db.SetRequestMetadata(ctx, expired))
	require.NoError(t, db.DeleteExpiredRequestMetadata(ctx))

	_, err = db.GetRequestMetadata(ctx, "req-expired")
	require.ErrorIs(t, err, storage.ErrRequestNotFound)
	_, err = db.GetRequestMetadata(ctx, "req-1")
	require.NoError(t, err)
}

func TestDepositLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	deposit := storage.UnclaimedDeposit{
		Txid: "aa", Vout: 0, Address: "bcrt1...", CreditAmountSats: 5000,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, db.AddDeposit(ctx, deposit))

	list, err := db.ListDeposits(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, uint64(5000), list[0].CreditAmountSats)

	deposit.CreditAmountSats = 6000
	require.NoError(t, db.UpdateDeposit(ctx, deposit))
	list, err = db.ListDeposits(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(6000), list[0].CreditAmountSats)

	require.NoError(t, db.DeleteDeposit(ctx, "aa", 0))
	list, err = db.ListDeposits(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	err = db.DeleteDeposit(ctx, "missing", 0)
	require.ErrorIs(t, err, storage.ErrDepositNotFound)
}

func TestSyncOutgoingLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id := syncengine.RecordID{Type: "payment", DataID: "p1"}
	change := syncengine.OutgoingChange{Change: syncengine.RecordChange{
		ID:            id,
		SchemaVersion: "v1",
		UpdatedFields: map[string]string{"status": `"pending"`},
		Revision:      1,
	}}
	require.NoError(t, db.EnqueueOutgoing(ctx, change))

	latest, err := db.GetLatestOutgoingChange(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, id, latest.Change.ID)
	require.Equal(t, `"pending"`, latest.Change.UpdatedFields["status"])

	pending, err := db.GetPendingOutgoingChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	record := change.Merge(syncengine.Record{ID: id, SchemaVersion: "v1", Data: map[string]string{}})
	require.NoError(t, db.CompleteOutgoingSync(ctx, record))

	pending, err = db.GetPendingOutgoingChanges(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	stored, err := db.GetRecord(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, `"pending"`, stored.Data["status"])
}

func TestSyncIncomingLifecycleAndRebase(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id := syncengine.RecordID{Type: "payment", DataID: "p1"}

	outgoing := syncengine.OutgoingChange{Change: syncengine.RecordChange{ID: id, Revision: 1, SchemaVersion: "v1"}}
	require.NoError(t, db.EnqueueOutgoing(ctx, outgoing))

	require.NoError(t, db.RebasePendingOutgoingRecords(ctx, 5))
	pending, err := db.GetPendingOutgoingChanges(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(6), pending[0].Change.Revision)

	incoming := syncengine.Record{ID: id, Revision: 3, SchemaVersion: "v1", Data: map[string]string{"a": `"v"`}}
	require.NoError(t, db.InsertIncomingRecords(ctx, []syncengine.Record{incoming}))

	changes, err := db.GetIncomingRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Nil(t, changes[0].OldState)

	require.NoError(t, db.UpdateRecordFromIncoming(ctx, incoming))
	rev, err := db.GetLastRevision(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), rev)

	require.NoError(t, db.DeleteIncomingRecord(ctx, incoming))
	changes, err = db.GetIncomingRecords(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestSettingsGetSetRoundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetSetting(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrSettingNotFound)

	require.NoError(t, db.SetSetting(ctx, "default_multiplicity", "2"))
	got, err := db.GetSetting(ctx, "default_multiplicity")
	require.NoError(t, err)
	require.Equal(t, "2", got)

	require.NoError(t, db.SetSetting(ctx, "default_multiplicity", "3"))
	got, err = db.GetSetting(ctx, "default_multiplicity")
	require.NoError(t, err)
	require.Equal(t, "3", got)
}

var _ syncengine.Storage = (*DB)(nil)
var _ storage.Store = (*DB)(nil)
