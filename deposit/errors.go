package deposit

import "errors"

var (
	ErrInvalidDepositAddressProof = errors.New("deposit: invalid deposit address proof")
	ErrInvalidVerifyingKey        = errors.New("deposit: invalid verifying key")
	ErrInvalidOutputIndex         = errors.New("deposit: output index out of range")
	ErrDepositAddressUsed         = errors.New("deposit: deposit address already used")
	ErrNotADepositOutput          = errors.New("deposit: transaction output script does not match deposit address")
	ErrMissingTreeSignatures      = errors.New("deposit: tree signatures missing from finalize response")
	ErrInsufficientRefundFee      = errors.New("deposit: static deposit refund fee too low")
	ErrZeroRefundCredit           = errors.New("deposit: static deposit refund credit is zero")
)
