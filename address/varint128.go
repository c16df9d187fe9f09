package address

import (
	"math/big"

	"lukechampine.com/uint128"
)

// toVariableLengthBE renders v as a big-endian byte string with
// leading zero bytes stripped: 0 becomes an empty slice,
// 1 becomes [1], 256 becomes [1, 0]. big.Int.Bytes already produces
// exactly this canonical minimal-length big-endian form, so it is
// used directly rather than hand-stripping a fixed 16-byte buffer.
func toVariableLengthBE(v uint128.Uint128) []byte {
	return v.Big().Bytes()
}

// fromVariableLengthBE is the inverse of toVariableLengthBE: it
// left-pads b to 16 bytes and reads it as a u128, rejecting inputs
// that would not fit.
func fromVariableLengthBE(b []byte) (uint128.Uint128, error) {
	if len(b) > 16 {
		return uint128.Zero, ErrAmountOverflow
	}
	return uint128.FromBig(new(big.Int).SetBytes(b)), nil
}
