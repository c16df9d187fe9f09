package wallet

import "errors"

var (
	ErrFundingOutputNotFound = errors.New("wallet: funding output not found at vout")
	ErrUnknownSyncRecordType = errors.New("wallet: unknown sync record type")
	ErrPaymentFieldMissing   = errors.New("wallet: sync record missing required payment field")
	ErrChainSourceRequired   = errors.New("wallet: no chain source configured")
)
