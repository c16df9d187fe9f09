package storage

import "errors"

var (
	ErrPaymentNotFound = errors.New("storage: payment not found")
	ErrDepositNotFound = errors.New("storage: deposit not found")
	ErrDepositExists   = errors.New("storage: deposit already tracked")
	ErrRequestNotFound = errors.New("storage: request metadata not found")
	ErrSettingNotFound = errors.New("storage: setting not found")
)
