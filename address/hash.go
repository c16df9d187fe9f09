package address

import (
	"crypto/sha256"
	"encoding/binary"

	"lukechampine.com/uint128"
)

const invoicePaymentTagTokens = 0x01
const invoicePaymentTagSats = 0x02

// computeInvoiceHash is the SHA-256 of the concatenation of a fixed
// sequence of SHA-256 digests, one per logical field, each computed
// over that field's raw bytes (or a zero-filled placeholder when the
// field is absent). Step 3 hashes the network's magic bytes and then
// hashes that digest a second time before concatenating; this double
// hash is deliberate, not a simplification to drop.
func computeInvoiceHash(a SparkAddress) ([32]byte, error) {
	inv := a.Invoice
	if inv == nil {
		return [32]byte{}, ErrAddressIsPlain
	}
	if inv.Version != 1 {
		return [32]byte{}, ErrUnsupportedVersion
	}

	var digests [][]byte

	var versionBytes [4]byte
	binary.BigEndian.PutUint32(versionBytes[:], inv.Version)
	digests = append(digests, hash(versionBytes[:]))

	digests = append(digests, hash(inv.ID[:]))

	magic, err := a.Network.MagicBytes()
	if err != nil {
		return [32]byte{}, err
	}
	digests = append(digests, hash(hash(magic[:])))

	digests = append(digests, hash(a.IdentityPublicKey.Bytes()))

	switch inv.PaymentKind {
	case PaymentTokens:
		digests = append(digests, hash([]byte{invoicePaymentTagTokens}))

		var tokenID [32]byte
		if inv.TokensPayment.TokenIdentifier != nil {
			raw, err := decodeTokenIdentifier(*inv.TokensPayment.TokenIdentifier)
			if err != nil {
				return [32]byte{}, err
			}
			copy(tokenID[:], raw)
		}
		digests = append(digests, hash(tokenID[:]))

		amount := uint128.Zero
		if inv.TokensPayment.Amount != nil {
			amount = *inv.TokensPayment.Amount
		}
		digests = append(digests, hash(toVariableLengthBE(amount)))

	case PaymentSats:
		digests = append(digests, hash([]byte{invoicePaymentTagSats}))

		var amountBytes [8]byte
		if inv.SatsPayment.Amount != nil {
			binary.BigEndian.PutUint64(amountBytes[:], *inv.SatsPayment.Amount)
		}
		digests = append(digests, hash(amountBytes[:]))

	default:
		return [32]byte{}, ErrMissingPaymentType
	}

	if inv.Memo != nil {
		digests = append(digests, hash([]byte(*inv.Memo)))
	} else {
		digests = append(digests, hash(nil))
	}

	if inv.SenderPublicKey != nil {
		digests = append(digests, hash(inv.SenderPublicKey.Bytes()))
	} else {
		var zero [33]byte
		digests = append(digests, hash(zero[:]))
	}

	var expiryBytes [8]byte
	if inv.ExpiryTime != nil {
		binary.BigEndian.PutUint64(expiryBytes[:], uint64(inv.ExpiryTime.Unix()))
	}
	digests = append(digests, hash(expiryBytes[:]))

	var all []byte
	for _, d := range digests {
		all = append(all, d...)
	}
	return sha256.Sum256(all), nil
}

func hash(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}
