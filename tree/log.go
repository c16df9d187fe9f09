package tree

import (
	"github.com/btcsuite/btclog"

	"github.com/sparkwallet/spark/internal/sparklog"
)

var log = sparklog.Disabled()

// UseLogger sets the package-wide logger used by the tree/leaf
// reservation subsystem.
func UseLogger(logger btclog.Logger) {
	log = logger
}
