// Package storage defines the abstract persistence surface the wallet
// composition root depends on: payment and deposit
// CRUD. storage/sqlite provides the concrete backing, and also
// implements the sync engine's relational log (syncengine.Storage).
package storage

import (
	"math/big"
	"time"
)

// PaymentType discriminates which detail table a Payment joins
// against.
type PaymentType uint8

const (
	PaymentTypeLightning PaymentType = iota
	PaymentTypeToken
	PaymentTypeSparkInvoice
)

// PaymentStatus tracks a payment through its lifecycle.
type PaymentStatus uint8

const (
	PaymentStatusPending PaymentStatus = iota
	PaymentStatusCompleted
	PaymentStatusFailed
)

// Payment is the core persisted row every payment type joins against;
// AmountSats and FeeSats are 128-bit and must round-trip through
// storage without truncation, hence *big.Int rather than
// a machine integer.
type Payment struct {
	ID         string
	Type       PaymentType
	Status     PaymentStatus
	AmountSats *big.Int
	FeeSats    *big.Int
	InvoiceID  string // foreign key into the matching detail table, empty if none
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PaymentFilter narrows ListPayments; zero-valued fields are not
// applied as constraints. Asset is not applied by the sqlite
// ListPayments: payments carry no asset column, so results are not
// narrowed by asset.
type PaymentFilter struct {
	Type        *PaymentType
	Status      *PaymentStatus
	Asset       string // token identifier or "sats"
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// SortOrder controls ListPayments ordering by CreatedAt.
type SortOrder uint8

const (
	SortDescending SortOrder = iota
	SortAscending
)

// Paging bounds a ListPayments page.
type Paging struct {
	Limit  int
	Offset int
	Order  SortOrder
}

// UnclaimedDeposit is a pending static-deposit row keyed by (Txid,
// Vout), tracked from the moment an address is derived until the
// deposit is claimed or refunded.
type UnclaimedDeposit struct {
	Txid             string
	Vout             uint32
	Address          string
	CreditAmountSats uint64
	CreatedAt        time.Time
}

// PaymentMetadata carries LNURL pay/withdraw bookkeeping keyed by
// payment id.
type PaymentMetadata struct {
	PaymentID   string
	LNURLDomain string
	LNURLAction string
}

// RequestMetadata carries ephemeral payment-request bookkeeping keyed
// by the request string itself (a bolt11 invoice or Spark invoice),
// expiring after ExpiresAt.
type RequestMetadata struct {
	Request   string
	Memo      string
	ExpiresAt time.Time
}
