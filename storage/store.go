package storage

import "context"

// PaymentStore is the payment/request-metadata half of the persisted
// storage layer.
type PaymentStore interface {
	ListPayments(ctx context.Context, filter PaymentFilter, paging Paging) ([]Payment, error)
	InsertPayment(ctx context.Context, payment Payment) error
	GetPaymentByID(ctx context.Context, id string) (*Payment, error)
	GetPaymentByInvoice(ctx context.Context, invoiceID string) (*Payment, error)
	SetPaymentMetadata(ctx context.Context, meta PaymentMetadata) error

	GetRequestMetadata(ctx context.Context, request string) (*RequestMetadata, error)
	SetRequestMetadata(ctx context.Context, meta RequestMetadata) error
	DeleteExpiredRequestMetadata(ctx context.Context) error
}

// DepositStore is the pending-static-deposit half of the persisted
// storage layer.
type DepositStore interface {
	AddDeposit(ctx context.Context, deposit UnclaimedDeposit) error
	DeleteDeposit(ctx context.Context, txid string, vout uint32) error
	ListDeposits(ctx context.Context) ([]UnclaimedDeposit, error)
	UpdateDeposit(ctx context.Context, deposit UnclaimedDeposit) error
}

// SettingsStore is the key-value settings half of the persisted
// storage layer.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Store is the full persistence surface the wallet composition root
// depends on; a concrete backend (storage/sqlite) implements all
// three facets plus syncengine.Storage over one shared connection.
type Store interface {
	PaymentStore
	DepositStore
	SettingsStore
}
