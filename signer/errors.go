package signer

import "errors"

var (
	// ErrDerivedKeyNotTransportable is returned when split_secret_with_proofs
	// or ReencryptForRecipient is asked to operate on a Derived key
	// source; only Encrypted sources may ever leave the Signer.
	ErrDerivedKeyNotTransportable = errors.New("derived private key source cannot be split or transported")

	// ErrNonceHandleReused is returned when sign_frost is asked to
	// consume a nonce handle that was already spent by a prior call.
	ErrNonceHandleReused = errors.New("frost nonce handle already consumed")

	// ErrNonceHandleUnknown is returned when a nonce handle does not
	// correspond to any commitment this Signer generated.
	ErrNonceHandleUnknown = errors.New("unknown frost nonce handle")

	// ErrDecrypt is returned whenever ECIES authentication fails on
	// decrypt; it never distinguishes "wrong key" from "tampered
	// ciphertext" to avoid a padding-oracle-style side channel.
	ErrDecrypt = errors.New("ecies authentication failed")

	// ErrInvalidThreshold is returned by split_secret_with_proofs when
	// threshold is zero or exceeds the number of shares requested.
	ErrInvalidThreshold = errors.New("invalid shamir threshold")

	// ErrShareVerificationFailed is returned when a VerifiableShare
	// fails to check against its own Feldman commitments.
	ErrShareVerificationFailed = errors.New("feldman commitment check failed for share")

	// ErrInvalidSignatureShare propagates a partial signature that
	// fails local verification during aggregation.
	ErrInvalidSignatureShare = errors.New("invalid frost partial signature share")
)
