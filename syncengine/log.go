package syncengine

import (
	"github.com/btcsuite/btclog"

	"github.com/sparkwallet/spark/internal/sparklog"
)

var log = sparklog.Disabled()

// UseLogger sets the package-wide logger used by the sync engine
// subsystem (tag "SYNC").
func UseLogger(logger btclog.Logger) {
	log = logger
}
