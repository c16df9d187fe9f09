package network

import "errors"

var (
	// ErrUnknownHRP is returned when a bech32 human-readable part
	// matches neither the canonical nor the legacy HRP table.
	ErrUnknownHRP = errors.New("unrecognized spark address human-readable part")
)
