package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/sparkwallet/spark/storage"
	"github.com/sparkwallet/spark/syncengine"
)

// Record types this wallet's sync handler knows how to apply to local
// app state. The wire protocol leaves RecordID.Type uninterpreted;
// this module's own relational app layer is the only thing that needs
// to agree on what these strings mean.
const (
	recordTypePayment = "payment"
	recordTypeDeposit = "deposit"
	recordTypeSetting = "setting"
)

// syncHandler is the concrete syncengine.Handler that applies synced
// records to this wallet's local storage. Every record pulled over
// the wire (or replayed from a pending outgoing change) carries the
// record's full known field set rather than a diff, so applying one
// is always an upsert keyed by RecordID.DataID.
type syncHandler struct {
	storage Storage
}

func newSyncHandler(store Storage) *syncHandler {
	return &syncHandler{storage: store}
}

// OnIncomingChange applies a record freshly pulled from the sync
// server to local app state.
func (h *syncHandler) OnIncomingChange(change syncengine.IncomingChange) error {
	return h.apply(change.NewState)
}

// OnReplayOutgoingChange re-applies a pending local change to app
// state, covering a crash between committing the outgoing change and
// applying it. It rebuilds the full record by merging the change onto
// whatever local sync state already exists for it.
func (h *syncHandler) OnReplayOutgoingChange(change syncengine.OutgoingChange) error {
	ctx := context.Background()
	base, err := h.storage.GetRecord(ctx, change.Change.ID)
	if err != nil {
		return fmt.Errorf("wallet: load base record for replay: %w", err)
	}
	var baseRecord syncengine.Record
	if base != nil {
		baseRecord = *base
	} else {
		baseRecord = syncengine.Record{ID: change.Change.ID}
	}
	return h.apply(change.Merge(baseRecord))
}

// OnSyncCompleted is a no-op hook; counts are only useful for metrics
// this wallet does not currently emit.
func (h *syncHandler) OnSyncCompleted(incomingCount, outgoingCount *uint32) error {
	return nil
}

func (h *syncHandler) apply(record syncengine.Record) error {
	ctx := context.Background()
	switch record.ID.Type {
	case recordTypePayment:
		return h.applyPayment(ctx, record)
	case recordTypeDeposit:
		return h.applyDeposit(ctx, record)
	case recordTypeSetting:
		return h.applySetting(ctx, record)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSyncRecordType, record.ID.Type)
	}
}

func decodeField[T any](data map[string]string, field string) (T, error) {
	var out T
	raw, ok := data[field]
	if !ok {
		return out, fmt.Errorf("%w: %q", ErrPaymentFieldMissing, field)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("wallet: decode field %q: %w", field, err)
	}
	return out, nil
}

func decodeOptionalField[T any](data map[string]string, field string) (T, bool, error) {
	var out T
	raw, ok := data[field]
	if !ok {
		return out, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, false, fmt.Errorf("wallet: decode field %q: %w", field, err)
	}
	return out, true, nil
}

func (h *syncHandler) applyPayment(ctx context.Context, record syncengine.Record) error {
	typ, err := decodeField[uint8](record.Data, "type")
	if err != nil {
		return err
	}
	status, err := decodeField[uint8](record.Data, "status")
	if err != nil {
		return err
	}
	amountSats, err := decodeField[string](record.Data, "amount_sats")
	if err != nil {
		return err
	}
	feeSats, err := decodeField[string](record.Data, "fee_sats")
	if err != nil {
		return err
	}
	invoiceID, _, err := decodeOptionalField[string](record.Data, "invoice_id")
	if err != nil {
		return err
	}
	createdAt, err := decodeField[int64](record.Data, "created_at")
	if err != nil {
		return err
	}
	updatedAt, err := decodeField[int64](record.Data, "updated_at")
	if err != nil {
		return err
	}

	amount, ok := new(big.Int).SetString(amountSats, 10)
	if !ok {
		return fmt.Errorf("wallet: invalid amount_sats %q in payment record", amountSats)
	}
	fee, ok := new(big.Int).SetString(feeSats, 10)
	if !ok {
		return fmt.Errorf("wallet: invalid fee_sats %q in payment record", feeSats)
	}

	return h.storage.InsertPayment(ctx, storage.Payment{
		ID:         record.ID.DataID,
		Type:       storage.PaymentType(typ),
		Status:     storage.PaymentStatus(status),
		AmountSats: amount,
		FeeSats:    fee,
		InvoiceID:  invoiceID,
		CreatedAt:  time.Unix(createdAt, 0).UTC(),
		UpdatedAt:  time.Unix(updatedAt, 0).UTC(),
	})
}

func (h *syncHandler) applyDeposit(ctx context.Context, record syncengine.Record) error {
	txid, vout, err := splitDepositDataID(record.ID.DataID)
	if err != nil {
		return err
	}
	address, err := decodeField[string](record.Data, "address")
	if err != nil {
		return err
	}
	creditSats, err := decodeField[uint64](record.Data, "credit_amount_sats")
	if err != nil {
		return err
	}
	createdAt, err := decodeField[int64](record.Data, "created_at")
	if err != nil {
		return err
	}

	existing, err := h.storage.ListDeposits(ctx)
	if err != nil {
		return fmt.Errorf("wallet: list deposits before upsert: %w", err)
	}
	deposit := storage.UnclaimedDeposit{
		Txid:             txid,
		Vout:             vout,
		Address:          address,
		CreditAmountSats: creditSats,
		CreatedAt:        time.Unix(createdAt, 0).UTC(),
	}
	for _, d := range existing {
		if d.Txid == txid && d.Vout == vout {
			return h.storage.UpdateDeposit(ctx, deposit)
		}
	}
	return h.storage.AddDeposit(ctx, deposit)
}

func (h *syncHandler) applySetting(ctx context.Context, record syncengine.Record) error {
	value, err := decodeField[string](record.Data, "value")
	if err != nil {
		return err
	}
	return h.storage.SetSetting(ctx, record.ID.DataID, value)
}

func splitDepositDataID(dataID string) (txid string, vout uint32, err error) {
	var vout64 uint64
	n, err := fmt.Sscanf(dataID, "%[^:]:%d", &txid, &vout64)
	if err != nil || n != 2 {
		return "", 0, fmt.Errorf("wallet: malformed deposit record id %q", dataID)
	}
	return txid, uint32(vout64), nil
}

var _ syncengine.Handler = (*syncHandler)(nil)
