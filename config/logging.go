package config

// LoggingConfig controls process log output.
type LoggingConfig struct {
	Level   string `json:"level" validate:"oneof=debug info warn error"`
	Console bool   `json:"console"`
}

// SetDefaults logs at info.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}
