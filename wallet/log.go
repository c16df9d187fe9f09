package wallet

import (
	"github.com/btcsuite/btclog"

	"github.com/sparkwallet/spark/deposit"
	"github.com/sparkwallet/spark/internal/sparklog"
	"github.com/sparkwallet/spark/onchain"
	"github.com/sparkwallet/spark/operator"
	"github.com/sparkwallet/spark/optimizer"
	"github.com/sparkwallet/spark/signer"
	"github.com/sparkwallet/spark/syncengine"
	"github.com/sparkwallet/spark/transfer"
)

var log = sparklog.Disabled()

// UseLogger sets the package-wide logger used by the wallet
// composition root (tag "WLLT"). It does not touch other packages'
// loggers; UseSubsystemLoggers does that.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// UseSubsystemLoggers sets this package's own logger to subsystem
// "WLLT" and wires backend into the UseLogger of onchain, operator,
// signer, deposit, transfer, optimizer and syncengine, each under its
// own subsystem tag. Other packages' loggers are left unchanged.
func UseSubsystemLoggers(backend *btclog.Backend) {
	UseLogger(sparklog.Logger(backend, "WLLT", btclog.LevelInfo))
	onchain.UseLogger(sparklog.Logger(backend, "ONCH", btclog.LevelInfo))
	operator.UseLogger(sparklog.Logger(backend, "OPPL", btclog.LevelInfo))
	signer.UseLogger(sparklog.Logger(backend, "SGNR", btclog.LevelInfo))
	deposit.UseLogger(sparklog.Logger(backend, "DPST", btclog.LevelInfo))
	transfer.UseLogger(sparklog.Logger(backend, "XFER", btclog.LevelInfo))
	optimizer.UseLogger(sparklog.Logger(backend, "OPTM", btclog.LevelInfo))
	syncengine.UseLogger(sparklog.Logger(backend, "SYNC", btclog.LevelInfo))
}
