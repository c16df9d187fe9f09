package signer

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/sparkwallet/spark/keys"
)

const (
	hkdfInfo = "spark-ecies-v1"
)

// EciesEncrypt authenticated-encrypts msg to recipient's identity
// public key. The wire format is
// ephemeral_pubkey(33) || nonce(12) || ciphertext+tag, so the decrypting
// party never needs anything beyond its own private key and the
// ciphertext.
func (s *Signer) EciesEncrypt(msg []byte, recipient keys.PublicKey) ([]byte, error) {
	recipientKey, err := recipient.ToBTCEC()
	if err != nil {
		return nil, fmt.Errorf("ecies encrypt: %w", err)
	}

	ephemeralPriv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("ecies encrypt: generate ephemeral key: %w", err)
	}

	aead, err := newAEAD(ephemeralPriv, recipientKey)
	if err != nil {
		return nil, fmt.Errorf("ecies encrypt: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("ecies encrypt: nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, msg, nil)

	out := make([]byte, 0, keys.PublicKeySize+len(nonce)+len(ciphertext))
	out = append(out, ephemeralPriv.PubKey().SerializeCompressed()...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	return out, nil
}

// EciesDecrypt reverses EciesEncrypt using the private key named by
// source, which must resolve inside the Signer (Derived or Encrypted).
func (s *Signer) EciesDecrypt(ciphertext []byte, source keys.PrivateKeySource) ([]byte, error) {
	privKey, err := s.resolvePrivateKey(source)
	if err != nil {
		return nil, fmt.Errorf("ecies decrypt: %w", err)
	}
	return decryptWithKey(ciphertext, privKey)
}

// decryptWithKey reverses EciesEncrypt given the already-resolved
// recipient private key.
func decryptWithKey(ciphertext []byte, privKey *btcec.PrivateKey) ([]byte, error) {
	if len(ciphertext) < keys.PublicKeySize+chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	ephemeralPub, err := btcec.ParsePubKey(ciphertext[:keys.PublicKeySize])
	if err != nil {
		return nil, fmt.Errorf("%w: bad ephemeral key: %v", ErrDecrypt, err)
	}

	aead, err := newAEAD(privKey, ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("ecies decrypt: %w", err)
	}

	rest := ciphertext[keys.PublicKeySize:]
	nonce, body := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrDecrypt
	}

	return plaintext, nil
}

// GenerateEncryptedKey creates a fresh random private scalar and seals
// it under this wallet's own identity key, returning it as an
// Encrypted PrivateKeySource. Used by the transfer send path to mint
// the new_signing_key a leaf rotates to; the raw
// scalar is never returned to the caller.
func (s *Signer) GenerateEncryptedKey() (keys.PrivateKeySource, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return keys.PrivateKeySource{}, fmt.Errorf("generate encrypted key: %w", err)
	}
	raw := priv.Serialize()
	defer zero(raw)

	ciphertext, err := s.EciesEncrypt(raw, s.identityPub)
	if err != nil {
		return keys.PrivateKeySource{}, fmt.Errorf("generate encrypted key: %w", err)
	}
	return keys.Encrypted(ciphertext), nil
}

// ReencryptForRecipient takes a PrivateKeySource held under this
// wallet's own identity key and re-wraps it under recipient's identity
// public key, producing the secret_cipher a transfer package sends to
// its receiver. The resolved scalar only ever lives
// inside this call.
func (s *Signer) ReencryptForRecipient(source keys.PrivateKeySource, recipient keys.PublicKey) ([]byte, error) {
	if source.Kind == keys.SourceDerived {
		return nil, ErrDerivedKeyNotTransportable
	}
	priv, err := s.resolvePrivateKey(source)
	if err != nil {
		return nil, fmt.Errorf("reencrypt for recipient: %w", err)
	}
	raw := priv.Serialize()
	defer zero(raw)

	ciphertext, err := s.EciesEncrypt(raw, recipient)
	if err != nil {
		return nil, fmt.Errorf("reencrypt for recipient: %w", err)
	}
	return ciphertext, nil
}

// newAEAD derives a ChaCha20-Poly1305 AEAD from the ECDH shared point
// between priv and pub, via HKDF-SHA256. This is the authenticated
// scheme the Signer contract requires: a failed Open call
// always surfaces as ErrDecrypt, never a distinguishable error.
func newAEAD(priv *btcec.PrivateKey, pub *btcec.PublicKey) (cipher.AEAD, error) {
	shared := btcec.GenerateSharedSecret(priv, pub)

	kdf := hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}

	return chacha20poly1305.New(key)
}
