package tree

import "errors"

var (
	ErrLeafNotFound        = errors.New("tree: leaf not found")
	ErrLeafAlreadyReserved = errors.New("tree: leaf already reserved")
	ErrReservationNotFound = errors.New("tree: reservation not found")
)
