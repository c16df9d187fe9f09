package address

import "errors"

var (
	ErrInvalidBech32String    = errors.New("address: malformed bech32 string")
	ErrInvalidBech32HRP       = errors.New("address: invalid bech32 human-readable part")
	ErrInvalidBech32Data      = errors.New("address: invalid bech32 data value")
	ErrInvalidBech32Checksum  = errors.New("address: invalid bech32 checksum")
	ErrInvalidBech32Padding   = errors.New("address: invalid bech32 padding")
	ErrNotBech32m             = errors.New("address: spark addresses require bech32m, not bech32")
	ErrUnknownHRP             = errors.New("address: unrecognized human-readable part")
	ErrAddressIsInvoice       = errors.New("address: cannot encode an invoice as a plain address string")
	ErrAddressIsPlain         = errors.New("address: cannot encode a plain address as an invoice string")
	ErrIdentityMismatch       = errors.New("address: invoice identity key does not match the signer")
	ErrMissingSignature       = errors.New("address: invoice has no signature")
	ErrInvalidSignature       = errors.New("address: invoice signature verification failed")
	ErrUnsupportedVersion     = errors.New("address: unsupported invoice version")
	ErrMissingPaymentType     = errors.New("address: invoice has no payment type")
	ErrInvalidUUID            = errors.New("address: invalid invoice id")
	ErrAmountOverflow         = errors.New("address: amount exceeds 128 bits")
	ErrInvalidPublicKey       = errors.New("address: invalid public key")
	ErrInvalidTokenIdentifier = errors.New("address: invalid token identifier")
	ErrMalformedWire          = errors.New("address: malformed protobuf payload")
)
