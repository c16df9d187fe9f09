package transfer

import (
	"fmt"
	"time"

	"github.com/sparkwallet/spark/keys"
	"github.com/sparkwallet/spark/operator"
	"github.com/sparkwallet/spark/signer"
	"github.com/sparkwallet/spark/tree"
)

// Signer is the capability interface the transfer service needs from
// *signer.Signer.
type Signer interface {
	IdentityPublicKey() keys.PublicKey
	DerivePublicKey(source keys.PrivateKeySource) (keys.PublicKey, error)
	SignECDSA(msg []byte, source keys.PrivateKeySource) ([]byte, error)
	SubtractPrivateKeys(a, b keys.PrivateKeySource) (keys.PrivateKeySource, error)
	SplitSecretWithProofs(secret keys.PrivateKeySource, threshold, n uint32) ([]signer.VerifiableShare, error)
	GenerateEncryptedKey() (keys.PrivateKeySource, error)
	ReencryptForRecipient(source keys.PrivateKeySource, recipient keys.PublicKey) ([]byte, error)
	EciesEncrypt(msg []byte, recipient keys.PublicKey) ([]byte, error)
	EciesDecrypt(ciphertext []byte, source keys.PrivateKeySource) ([]byte, error)
	GenerateFrostSigningCommitments() (signer.FrostCommitment, signer.NonceHandle, error)
	SignFrost(req signer.FrostSignRequest) ([32]byte, error)
	AggregateFrost(req signer.FrostAggregateRequest) ([]byte, error)
}

// ClaimConfig bounds the receiver-side claim retry loop.
type ClaimConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Factor     float64
}

// DefaultClaimConfig returns sane defaults: 5 retries, 1s base delay,
// 10s cap, factor 2.
func DefaultClaimConfig() ClaimConfig {
	return ClaimConfig{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Factor:     2,
	}
}

// Config wires a transfer Service to its collaborators.
type Config struct {
	Signer          Signer
	Pool            *operator.Pool
	Tree            tree.Service
	RefundTxBuilder RefundTxBuilder
	Threshold       uint32
	Claim           ClaimConfig
}

func (c *Config) Validate() error {
	if c.Signer == nil {
		return fmt.Errorf("transfer: signer is required")
	}
	if c.Pool == nil {
		return fmt.Errorf("transfer: operator pool is required")
	}
	if c.Tree == nil {
		return fmt.Errorf("transfer: tree service is required")
	}
	if c.RefundTxBuilder == nil {
		return fmt.Errorf("transfer: refund tx builder is required")
	}
	if c.Threshold == 0 {
		c.Threshold = uint32(c.Pool.Len())
	}
	if c.Claim == (ClaimConfig{}) {
		c.Claim = DefaultClaimConfig()
	}
	return nil
}

// Filter narrows QueryAllTransfers (supplemented transfer query
// surface, SPEC_FULL §3).
type Filter struct {
	Types  []operator.TransferType
	Limit  int
	Offset int
}
