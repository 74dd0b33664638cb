package config

import "time"

// DatabaseConfig selects the record source and prediction store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `json:"driver" validate:"oneof=sqlite postgres"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string `json:"dsn" validate:"required"`
	// BatchSize is the page size used when reading historical records.
	BatchSize      int  `json:"batch_size" validate:"gte=0"`
	TimeoutSeconds int  `json:"timeout_seconds" validate:"gte=0"`
	Migrate        bool `json:"migrate"`
}

// SetDefaults applies an embedded database next to the binary.
func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.DSN == "" && c.Driver == "sqlite" {
		c.DSN = "metro.db"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 10000
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
}

// Timeout bounds one fetch or store call.
func (c DatabaseConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
