// Package network defines the Spark network enum and the chain
// parameters, magic bytes, and bech32m human-readable parts it
// determines for the rest of the module.
package network

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network tags which Spark/Bitcoin network a wallet, address, or
// invoice belongs to.
type Network uint8

const (
	Mainnet Network = iota
	Testnet
	Regtest
	Signet
)

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Regtest:
		return "regtest"
	case Signet:
		return "signet"
	default:
		return fmt.Sprintf("network(%d)", uint8(n))
	}
}

// ChainParams returns the btcd chain parameters backing this network,
// used for address decoding and PSBT construction in the onchain
// package.
func (n Network) ChainParams() (*chaincfg.Params, error) {
	switch n {
	case Mainnet:
		return &chaincfg.MainNetParams, nil
	case Testnet:
		return &chaincfg.TestNet3Params, nil
	case Regtest:
		return &chaincfg.RegressionNetParams, nil
	case Signet:
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %d", uint8(n))
	}
}

// magicIdentifier is the Bitcoin p2p magic value for each network,
// expressed as the signed 64-bit form the invoice hash construction
// derives its 4-byte big-endian tail from.
func (n Network) magicIdentifier() (int64, error) {
	switch n {
	case Mainnet:
		return 0xd9b4bef9, nil
	case Regtest:
		return 0xdab5bffa, nil
	case Testnet:
		return 0x0709110b, nil
	case Signet:
		return 0x40cf030a, nil
	default:
		return 0, fmt.Errorf("unknown network %d", uint8(n))
	}
}

// MagicBytes returns the 4 big-endian bytes used as the network
// component of the invoice hash (the low 4 bytes of the 8-byte
// big-endian form of the magic identifier).
func (n Network) MagicBytes() ([4]byte, error) {
	var out [4]byte

	magic, err := n.magicIdentifier()
	if err != nil {
		return out, err
	}

	var full [8]byte
	for i := 7; i >= 0; i-- {
		full[i] = byte(magic)
		magic >>= 8
	}
	copy(out[:], full[4:])

	return out, nil
}

// HRP is the canonical bech32m human-readable part emitted on encode.
func (n Network) HRP() (string, error) {
	switch n {
	case Mainnet:
		return "spark", nil
	case Testnet:
		return "sparkt", nil
	case Regtest:
		return "sparkrt", nil
	case Signet:
		return "sparks", nil
	default:
		return "", fmt.Errorf("unknown network %d", uint8(n))
	}
}

// legacyHRP is the deprecated human-readable part, accepted on parse
// only; the canonical encoder never emits it.
func (n Network) legacyHRP() (string, error) {
	switch n {
	case Mainnet:
		return "sp", nil
	case Testnet:
		return "spt", nil
	case Regtest:
		return "sprt", nil
	case Signet:
		return "sps", nil
	default:
		return "", fmt.Errorf("unknown network %d", uint8(n))
	}
}

// FromHRP maps any accepted human-readable part, canonical or legacy,
// back to a Network.
func FromHRP(hrp string) (Network, error) {
	for _, n := range []Network{Mainnet, Testnet, Regtest, Signet} {
		canonical, err := n.HRP()
		if err != nil {
			return 0, err
		}
		if hrp == canonical {
			return n, nil
		}

		legacy, err := n.legacyHRP()
		if err != nil {
			return 0, err
		}
		if hrp == legacy {
			return n, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownHRP, hrp)
}
