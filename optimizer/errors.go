package optimizer

import "errors"

var (
	ErrInvalidMultiplicity    = errors.New("optimizer: multiplicity must be <= 5")
	ErrInvalidMaxLeavesPerSwap = errors.New("optimizer: max leaves per swap must be > 0")
	ErrAlreadyRunning         = errors.New("optimizer: optimization already running")
	ErrNotRunning             = errors.New("optimizer: no optimization in progress")
)
