package operator

import (
	"github.com/btcsuite/btclog"

	"github.com/sparkwallet/spark/internal/sparklog"
)

var log = sparklog.Disabled()

// UseLogger sets the package-wide logger used by the operator-pool
// subsystem (tag "OPPL").
func UseLogger(logger btclog.Logger) {
	log = logger
}
