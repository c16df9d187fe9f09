package address

import "github.com/sparkwallet/spark/network"

// Token identifiers are bech32m-encoded separately from the invoice
// payload that carries them: the invoice wire format stores only the
// raw 32-byte identifier (TokensPayment field 1), and this codec
// converts that to/from the "btkn..." string a human or another
// wallet actually sees.
const tokenIdentifierSize = 32

func tokenHRP(net network.Network) (string, error) {
	switch net {
	case network.Mainnet:
		return "btkn", nil
	case network.Testnet:
		return "btknt", nil
	case network.Regtest:
		return "btknrt", nil
	case network.Signet:
		return "btkns", nil
	default:
		return "", network.ErrUnknownHRP
	}
}

// encodeTokenIdentifier bech32m-encodes a 32-byte raw token
// identifier for display within a Spark token invoice.
func encodeTokenIdentifier(raw []byte, net network.Network) (string, error) {
	if len(raw) != tokenIdentifierSize {
		return "", ErrInvalidTokenIdentifier
	}
	hrp, err := tokenHRP(net)
	if err != nil {
		return "", err
	}
	grouped, err := convertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32Encode(hrp, grouped)
}

// decodeTokenIdentifier parses a bech32m "btkn..." string back to its
// raw 32-byte form, regardless of which network's HRP it carries (the
// caller already knows the network from the enclosing address).
func decodeTokenIdentifier(s string) ([]byte, error) {
	_, data, enc, err := bech32Decode(s)
	if err != nil {
		return nil, err
	}
	if enc != encodingBech32m {
		return nil, ErrNotBech32m
	}
	raw, err := convertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(raw) != tokenIdentifierSize {
		return nil, ErrInvalidTokenIdentifier
	}
	return raw, nil
}
