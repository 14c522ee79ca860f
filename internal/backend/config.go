package backend

import (
	"errors"
	"fmt"

	"feeledger/internal/config"
)

var (
	ErrUnknownBackend = errors.New("unknown data backend")
	ErrMissingDBPath  = errors.New("SQLITE_DB_PATH is required for the sqlite backend")
)

// FromAppConfig picks the store and broker settings out of the process config.
func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, errors.New("backend: nil app config")
	}
	c := Config{
		Type:         BackendType(cfg.DataBackend),
		SQLiteDBPath: cfg.SQLiteDBPath,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
		AMQPQueue:    cfg.AMQPQueue,
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case !c.Type.IsValid():
		return fmt.Errorf("%w: %q (want %s or %s)", ErrUnknownBackend, c.Type, SQLiteBackend, MemoryBackend)
	case c.Type == SQLiteBackend && c.SQLiteDBPath == "":
		return ErrMissingDBPath
	}
	return nil
}
