package operator

import "errors"

var (
	ErrUnknownOperator = errors.New("no operator with that identifier in the pool")
)
