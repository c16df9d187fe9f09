package onchain

import (
	"github.com/btcsuite/btclog"

	"github.com/sparkwallet/spark/internal/sparklog"
)

var log = sparklog.Disabled()

// UseLogger sets the package-wide logger used by the onchain
// subsystem (tag "ONCH").
func UseLogger(logger btclog.Logger) {
	log = logger
}
