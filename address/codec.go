package address

import (
	"time"

	"github.com/google/uuid"

	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/network"
)

// Wire field numbers for the SparkAddress / SparkInvoiceFields /
// TokensPayment / SatsPayment / Timestamp messages, as emitted and
// accepted by the operator network. The canonical invoice encoding
// writes SparkInvoiceFields fields out of numeric order —
// version, id, memo, sender_public_key, expiry_time, then whichever of
// the payment_type oneof is set — so this package never derives field
// order from the field-number table below; it is only used to look
// values up by number when decoding.
const (
	fieldAddressIdentityKey  = 1
	fieldAddressInvoice      = 2
	fieldAddressSignature    = 3
	fieldInvoiceVersion      = 1
	fieldInvoiceID           = 2
	fieldInvoiceTokens       = 3
	fieldInvoiceSats         = 4
	fieldInvoiceMemo         = 5
	fieldInvoiceSenderKey    = 6
	fieldInvoiceExpiry       = 7
	fieldTokensIdentifier    = 1
	fieldTokensAmount        = 2
	fieldSatsAmount          = 1
	fieldTimestampSeconds    = 1
	fieldTimestampNanos      = 2
)

// encodeSignedAddress builds the canonical protobuf payload for a,
// including sig when a carries invoice fields (nil for a plain
// address).
func encodeSignedAddress(a SparkAddress, sig []byte) ([]byte, error) {
	var buf []byte
	buf = putBytesField(buf, fieldAddressIdentityKey, a.IdentityPublicKey.Bytes())

	if a.Invoice != nil {
		inner, err := encodeInvoiceFields(a.Network, *a.Invoice)
		if err != nil {
			return nil, err
		}
		buf = putBytesField(buf, fieldAddressInvoice, inner)
	}

	buf = putBytesField(buf, fieldAddressSignature, sig)
	return buf, nil
}

func encodeInvoiceFields(net network.Network, inv Invoice) ([]byte, error) {
	var buf []byte
	buf = putVarintField(buf, fieldInvoiceVersion, uint64(inv.Version))
	buf = putBytesField(buf, fieldInvoiceID, inv.ID[:])

	if inv.Memo != nil {
		buf = putBytesField(buf, fieldInvoiceMemo, []byte(*inv.Memo))
	}
	if inv.SenderPublicKey != nil {
		buf = putBytesField(buf, fieldInvoiceSenderKey, inv.SenderPublicKey.Bytes())
	}
	if inv.ExpiryTime != nil {
		buf = putBytesField(buf, fieldInvoiceExpiry, encodeTimestamp(*inv.ExpiryTime))
	}

	switch inv.PaymentKind {
	case PaymentTokens:
		raw, err := encodeTokensPayment(net, inv.TokensPayment)
		if err != nil {
			return nil, err
		}
		buf = putBytesField(buf, fieldInvoiceTokens, raw)
	case PaymentSats:
		buf = putBytesField(buf, fieldInvoiceSats, encodeSatsPayment(inv.SatsPayment))
	case PaymentNone:
		return nil, ErrMissingPaymentType
	}

	return buf, nil
}

func encodeTokensPayment(net network.Network, p TokensPayment) ([]byte, error) {
	var buf []byte
	if p.TokenIdentifier != nil {
		raw, err := decodeTokenIdentifier(*p.TokenIdentifier)
		if err != nil {
			return nil, err
		}
		buf = putBytesField(buf, fieldTokensIdentifier, raw)
	}
	if p.Amount != nil {
		buf = putBytesField(buf, fieldTokensAmount, toVariableLengthBE(*p.Amount))
	}
	return buf, nil
}

func encodeSatsPayment(p SatsPayment) []byte {
	var buf []byte
	if p.Amount != nil {
		buf = putVarintField(buf, fieldSatsAmount, *p.Amount)
	}
	return buf
}

func encodeTimestamp(t time.Time) []byte {
	var buf []byte
	buf = putVarintField(buf, fieldTimestampSeconds, uint64(t.Unix()))
	buf = putVarintField(buf, fieldTimestampNanos, uint64(t.Nanosecond()))
	return buf
}

// decodedAddress mirrors the wire SparkAddress message before its
// signature has been verified.
type decodedAddress struct {
	address   SparkAddress
	signature []byte
}

func decodeSignedAddress(payload []byte, net network.Network) (decodedAddress, error) {
	entries, err := parseWire(payload)
	if err != nil {
		return decodedAddress{}, err
	}

	keyEntry, ok := wireField(entries, fieldAddressIdentityKey)
	if !ok {
		return decodedAddress{}, ErrMalformedWire
	}
	pub, err := keys.ParsePublicKey(keyEntry.Data)
	if err != nil {
		return decodedAddress{}, ErrInvalidPublicKey
	}

	var invoice *Invoice
	if invEntry, ok := wireField(entries, fieldAddressInvoice); ok {
		inv, err := decodeInvoiceFields(invEntry.Data, net)
		if err != nil {
			return decodedAddress{}, err
		}
		invoice = &inv
	}

	var sig []byte
	if sigEntry, ok := wireField(entries, fieldAddressSignature); ok {
		sig = sigEntry.Data
	}

	return decodedAddress{
		address:   SparkAddress{IdentityPublicKey: pub, Network: net, Invoice: invoice},
		signature: sig,
	}, nil
}

func decodeInvoiceFields(b []byte, net network.Network) (Invoice, error) {
	entries, err := parseWire(b)
	if err != nil {
		return Invoice{}, err
	}

	var inv Invoice
	if e, ok := wireField(entries, fieldInvoiceVersion); ok {
		inv.Version = uint32(e.Value)
	}
	if e, ok := wireField(entries, fieldInvoiceID); ok {
		id, err := uuid.FromBytes(e.Data)
		if err != nil {
			return Invoice{}, ErrInvalidUUID
		}
		inv.ID = id
	}
	if e, ok := wireField(entries, fieldInvoiceMemo); ok {
		memo := string(e.Data)
		inv.Memo = &memo
	}
	if e, ok := wireField(entries, fieldInvoiceSenderKey); ok {
		pub, err := keys.ParsePublicKey(e.Data)
		if err != nil {
			return Invoice{}, ErrInvalidPublicKey
		}
		inv.SenderPublicKey = &pub
	}
	if e, ok := wireField(entries, fieldInvoiceExpiry); ok {
		t, err := decodeTimestamp(e.Data)
		if err != nil {
			return Invoice{}, err
		}
		inv.ExpiryTime = &t
	}

	switch {
	case hasField(entries, fieldInvoiceTokens):
		e, _ := wireField(entries, fieldInvoiceTokens)
		payment, err := decodeTokensPayment(e.Data, net)
		if err != nil {
			return Invoice{}, err
		}
		inv.PaymentKind = PaymentTokens
		inv.TokensPayment = payment
	case hasField(entries, fieldInvoiceSats):
		e, _ := wireField(entries, fieldInvoiceSats)
		inv.PaymentKind = PaymentSats
		inv.SatsPayment = decodeSatsPayment(e.Data)
	}

	return inv, nil
}

func hasField(entries []wireEntry, field int) bool {
	_, ok := wireField(entries, field)
	return ok
}

func decodeTokensPayment(b []byte, net network.Network) (TokensPayment, error) {
	entries, err := parseWire(b)
	if err != nil {
		return TokensPayment{}, err
	}

	var payment TokensPayment
	if e, ok := wireField(entries, fieldTokensIdentifier); ok {
		id, err := encodeTokenIdentifier(e.Data, net)
		if err != nil {
			return TokensPayment{}, err
		}
		payment.TokenIdentifier = &id
	}
	if e, ok := wireField(entries, fieldTokensAmount); ok {
		amount, err := fromVariableLengthBE(e.Data)
		if err != nil {
			return TokensPayment{}, err
		}
		payment.Amount = &amount
	}
	return payment, nil
}

func decodeSatsPayment(b []byte) SatsPayment {
	entries, err := parseWire(b)
	if err != nil {
		return SatsPayment{}
	}
	var payment SatsPayment
	if e, ok := wireField(entries, fieldSatsAmount); ok {
		amount := e.Value
		payment.Amount = &amount
	}
	return payment
}

func decodeTimestamp(b []byte) (time.Time, error) {
	entries, err := parseWire(b)
	if err != nil {
		return time.Time{}, err
	}
	var secs, nanos uint64
	if e, ok := wireField(entries, fieldTimestampSeconds); ok {
		secs = e.Value
	}
	if e, ok := wireField(entries, fieldTimestampNanos); ok {
		nanos = e.Value
	}
	return time.Unix(int64(secs), int64(nanos)).UTC(), nil
}
