package keys

import "errors"

var (
	ErrInvalidPublicKeyLength = errors.New("public key must be 33 compressed bytes")
	ErrInvalidPublicKey       = errors.New("public key is not a valid secp256k1 point")
)
