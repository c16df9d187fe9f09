package transfer

import "errors"

var (
	ErrNoLeavesToClaim       = errors.New("transfer: no leaves to claim")
	ErrSenderSignatureInvalid = errors.New("transfer: sender signature verification failed")
	ErrUnknownTransfer       = errors.New("transfer: unknown transfer id")
	ErrInvalidAdaptorSignature = errors.New("transfer: adaptor signature invalid")
	ErrClaimRetriesExhausted = errors.New("transfer: claim retries exhausted")
	ErrEmptyLeafSet          = errors.New("transfer: leaf set is empty")
)
