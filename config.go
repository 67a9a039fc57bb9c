package luamigrate

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DefaultStatementTimeout is the per-statement execution timeout applied
// when the connection configuration supplies none. Enforced by the
// database driver through its DSN, not by this engine directly.
const DefaultStatementTimeout = 30 * time.Second

// ConnectionConfig is the per-connection record consumed from the host
// application's configuration. It is resolved once at orchestration entry
// and passed down explicitly; the engine never re-derives it.
type ConnectionConfig struct {
	// Name identifies the connection in logs.
	Name string `mapstructure:"name"`
	// Type is the free-form engine name, normalized via ParseEngine.
	Type string `mapstructure:"type"`
	// Schema is the optional target schema passed to migration scripts.
	Schema string `mapstructure:"schema"`
	// AutoMigration enables ExecuteAuto for this connection.
	AutoMigration bool `mapstructure:"auto_migration"`
	// TestMigration enables ExecuteLoadMigrations for this connection.
	TestMigration bool `mapstructure:"test_migration"`
	// Migrations is either `PAYLOAD:<name>` or a filesystem path.
	Migrations string `mapstructure:"migrations"`
	// BootstrapQuery overrides the built-in bootstrap query.
	BootstrapQuery string `mapstructure:"bootstrap_query"`
	// StatementTimeoutSeconds overrides DefaultStatementTimeout.
	StatementTimeoutSeconds int `mapstructure:"statement_timeout_seconds"`
}

// ConnectionConfigFromMap decodes one connection record from the host
// application's generic JSON configuration.
func ConnectionConfigFromMap(m map[string]interface{}) (*ConnectionConfig, error) {
	var cfg ConnectionConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("connection config: %w", err)
	}
	return &cfg, nil
}

// StatementTimeout returns the configured per-statement timeout.
func (c *ConnectionConfig) StatementTimeout() time.Duration {
	if c.StatementTimeoutSeconds > 0 {
		return time.Duration(c.StatementTimeoutSeconds) * time.Second
	}
	return DefaultStatementTimeout
}
