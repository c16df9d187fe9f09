package syncengine

import "fmt"

// syncBatchSize bounds how many outgoing/incoming records one
// push/pull round pages through at a time.
const syncBatchSize = 10

// Config wires an Engine to its collaborators.
type Config struct {
	Client   Client
	Storage  Storage
	Signer   Signer
	Handler  Handler
	ClientID string
}

func (c *Config) Validate() error {
	if c.Client == nil {
		return fmt.Errorf("syncengine: client is required")
	}
	if c.Storage == nil {
		return fmt.Errorf("syncengine: storage is required")
	}
	if c.Signer == nil {
		return fmt.Errorf("syncengine: signer is required")
	}
	if c.Handler == nil {
		return fmt.Errorf("syncengine: handler is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("syncengine: client id is required")
	}
	return nil
}
