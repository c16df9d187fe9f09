package address

import (
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/network"
)

// EncodeAddress renders a as a plain bech32m address string. It fails
// if a carries invoice fields — those must go through EncodeInvoice so
// they get signed.
func (a SparkAddress) EncodeAddress() (string, error) {
	if a.IsInvoice() {
		return "", ErrAddressIsInvoice
	}

	payload, err := encodeSignedAddress(a, nil)
	if err != nil {
		return "", err
	}

	hrp, err := a.Network.HRP()
	if err != nil {
		return "", err
	}

	grouped, err := convertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32Encode(hrp, grouped)
}

// EncodeInvoice renders a as a signed bech32m invoice string. signer
// must hold the identity key a was built with.
func (a SparkAddress) EncodeInvoice(signer Signer) (string, error) {
	if !a.IsInvoice() {
		return "", ErrAddressIsPlain
	}
	if a.IdentityPublicKey != signer.IdentityPublicKey() {
		return "", ErrIdentityMismatch
	}

	hash, err := computeInvoiceHash(a)
	if err != nil {
		return "", err
	}

	sig, err := signer.SignHashSchnorr(hash, keys.Identity())
	if err != nil {
		return "", err
	}

	payload, err := encodeSignedAddress(a, sig)
	if err != nil {
		return "", err
	}

	hrp, err := a.Network.HRP()
	if err != nil {
		return "", err
	}

	grouped, err := convertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32Encode(hrp, grouped)
}

// Parse decodes a plain address or invoice string, verifying the
// invoice signature (if any) against the invoice hash it covers.
func Parse(s string) (SparkAddress, error) {
	hrp, data, enc, err := bech32Decode(s)
	if err != nil {
		return SparkAddress{}, err
	}
	if enc != encodingBech32m {
		return SparkAddress{}, ErrNotBech32m
	}

	net, err := network.FromHRP(hrp)
	if err != nil {
		return SparkAddress{}, err
	}

	payload, err := convertBits(data, 5, 8, false)
	if err != nil {
		return SparkAddress{}, err
	}

	decoded, err := decodeSignedAddress(payload, net)
	if err != nil {
		return SparkAddress{}, err
	}
	addr := decoded.address

	if addr.IsInvoice() {
		h, err := computeInvoiceHash(addr)
		if err != nil {
			return SparkAddress{}, err
		}
		if len(decoded.signature) == 0 {
			return SparkAddress{}, ErrMissingSignature
		}
		sig, err := schnorr.ParseSignature(decoded.signature)
		if err != nil {
			return SparkAddress{}, ErrInvalidSignature
		}
		pub, err := addr.IdentityPublicKey.ToBTCEC()
		if err != nil {
			return SparkAddress{}, ErrInvalidPublicKey
		}
		if !sig.Verify(h[:], pub) {
			return SparkAddress{}, ErrInvalidSignature
		}
	}

	return addr, nil
}
