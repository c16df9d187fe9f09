package syncengine

import "errors"

var (
	ErrAlreadyRunning = errors.New("syncengine: already running")
	ErrNotRunning     = errors.New("syncengine: not running")
	ErrDecrypt        = errors.New("syncengine: record decryption failed")
)
