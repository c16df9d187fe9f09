package address

import (
	"strings"
)

// This file implements bech32 and its bech32m variant (BIP-173 /
// BIP-350) directly: the address and invoice encodings are
// consensus-critical byte layouts whose determinism must not depend on
// a third-party library's internals, invoices routinely exceed the
// 90-character length BIP-173 recommends for plain addresses, and the
// encoder/checksum algorithm
// below is the same ~40-line reference algorithm every bech32
// implementation implements verbatim.

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var bech32CharsetRev = func() [128]int8 {
	var rev [128]int8
	for i := range rev {
		rev[i] = -1
	}
	for i, c := range bech32Charset {
		rev[c] = int8(i)
	}
	return rev
}()

type bech32Encoding int

const (
	encodingBech32 bech32Encoding = iota
	encodingBech32m
)

const (
	bech32Const  = 1
	bech32mConst = 0x2bc830a3
)

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		b := byte(chk >> 25)
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (b>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		out = append(out, byte(c)>>5)
	}
	out = append(out, 0)
	for _, c := range hrp {
		out = append(out, byte(c)&31)
	}
	return out
}

func bech32CreateChecksum(hrp string, data []byte, enc bech32Encoding) []byte {
	values := append(bech32HRPExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	constant := uint32(bech32Const)
	if enc == encodingBech32m {
		constant = bech32mConst
	}
	mod := bech32Polymod(values) ^ constant

	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return checksum
}

// bech32Encode encodes hrp and the already 5-bit-grouped data as
// bech32m, the only variant this module emits (legacy plain-bech32
// addresses are never produced, only accepted nowhere since Spark
// never used bech32 proper).
func bech32Encode(hrp string, data []byte) (string, error) {
	if err := checkHRP(hrp); err != nil {
		return "", err
	}
	checksum := bech32CreateChecksum(hrp, data, encodingBech32m)
	combined := append(append([]byte{}, data...), checksum...)

	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, b := range combined {
		if int(b) >= len(bech32Charset) {
			return "", ErrInvalidBech32Data
		}
		sb.WriteByte(bech32Charset[b])
	}
	return sb.String(), nil
}

func checkHRP(hrp string) error {
	if hrp == "" {
		return ErrInvalidBech32HRP
	}
	for _, c := range hrp {
		if c < 33 || c > 126 {
			return ErrInvalidBech32HRP
		}
	}
	return nil
}

// bech32Decode decodes a bech32 or bech32m string without the
// BIP-173 90-character address limit (Spark invoices routinely exceed
// it), returning the human-readable part, the raw 5-bit-grouped data,
// and which checksum variant matched.
func bech32Decode(s string) (string, []byte, bech32Encoding, error) {
	if len(s) < 8 {
		return "", nil, 0, ErrInvalidBech32String
	}

	lower, upper := false, false
	for _, c := range s {
		if c < 33 || c > 126 {
			return "", nil, 0, ErrInvalidBech32String
		}
		if c >= 'a' && c <= 'z' {
			lower = true
		}
		if c >= 'A' && c <= 'Z' {
			upper = true
		}
	}
	if lower && upper {
		return "", nil, 0, ErrInvalidBech32String
	}
	s = strings.ToLower(s)

	sep := strings.LastIndexByte(s, '1')
	if sep < 1 || sep+7 > len(s) {
		return "", nil, 0, ErrInvalidBech32String
	}
	hrp := s[:sep]
	if err := checkHRP(hrp); err != nil {
		return "", nil, 0, err
	}

	dataPart := s[sep+1:]
	data := make([]byte, len(dataPart))
	for i, c := range dataPart {
		v := bech32CharsetRev[c]
		if v == -1 {
			return "", nil, 0, ErrInvalidBech32String
		}
		data[i] = byte(v)
	}

	values := append(bech32HRPExpand(hrp), data...)
	mod := bech32Polymod(values)

	var enc bech32Encoding
	switch uint32(mod) {
	case bech32Const:
		enc = encodingBech32
	case bech32mConst:
		enc = encodingBech32m
	default:
		return "", nil, 0, ErrInvalidBech32Checksum
	}

	payload := data[:len(data)-6]
	return hrp, payload, enc, nil
}

// convertBits repacks a slice of fromBits-wide values into toBits-wide
// values, as used to move between raw bytes (8 bits) and bech32's
// 5-bit alphabet.
func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	var acc uint32
	var bits uint
	var ret []byte
	maxv := uint32(1)<<toBits - 1
	maxAcc := uint32(1)<<(fromBits+toBits-1) - 1

	for _, value := range data {
		v := uint32(value)
		if v>>fromBits != 0 {
			return nil, ErrInvalidBech32Data
		}
		acc = ((acc << fromBits) | v) & maxAcc
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			ret = append(ret, byte((acc<<(toBits-bits))&maxv))
		}
	} else if bits >= fromBits || ((acc<<(toBits-bits))&maxv) != 0 {
		return nil, ErrInvalidBech32Padding
	}

	return ret, nil
}
