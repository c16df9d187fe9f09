// Package address implements the Spark bech32m address and invoice
// codec: a canonical protobuf byte layout wrapped in bech32m, plus the
// BIP-340 Schnorr-signed invoice hash construction.
package address

import (
	"time"

	"github.com/google/uuid"
	"lukechampine.com/uint128"

	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/network"
)

// Signer is the capability this package needs to produce invoice
// strings: the identity key an invoice is issued under, and a BIP-340
// Schnorr signature over the invoice hash by that same key.
type Signer interface {
	IdentityPublicKey() keys.PublicKey
	SignHashSchnorr(hash [32]byte, source keys.PrivateKeySource) ([]byte, error)
}

// PaymentKind discriminates the Invoice payment_type oneof.
type PaymentKind uint8

const (
	PaymentNone PaymentKind = iota
	PaymentTokens
	PaymentSats
)

// TokensPayment requests a transfer of a specific token denomination.
// Either field may be absent (nil), matching the wire format's
// optional semantics.
type TokensPayment struct {
	// TokenIdentifier is the bech32m "btkn..." string, if present.
	TokenIdentifier *string
	Amount          *uint128.Uint128
}

// SatsPayment requests a transfer of a specific amount of sats.
type SatsPayment struct {
	Amount *uint64
}

// Invoice carries the optional payment-request fields a Spark address
// may encode.
type Invoice struct {
	ID              uuid.UUID
	Version         uint32
	Memo            *string
	SenderPublicKey *keys.PublicKey
	ExpiryTime      *time.Time

	PaymentKind   PaymentKind
	TokensPayment TokensPayment // valid when PaymentKind == PaymentTokens
	SatsPayment   SatsPayment   // valid when PaymentKind == PaymentSats
}

// SparkAddress is either a plain address (Invoice == nil) or a signed
// payment invoice.
type SparkAddress struct {
	IdentityPublicKey keys.PublicKey
	Network           network.Network
	Invoice           *Invoice
}

// New builds a SparkAddress. Pass a nil invoice for a plain address.
func New(identityPublicKey keys.PublicKey, net network.Network, invoice *Invoice) SparkAddress {
	return SparkAddress{IdentityPublicKey: identityPublicKey, Network: net, Invoice: invoice}
}

// IsInvoice reports whether a carries payment-request fields.
func (a SparkAddress) IsInvoice() bool {
	return a.Invoice != nil
}
