package config

import "github.com/YDUTSEVOLDN/Subway/core/factory"

// HTTPConfig defines the API listener.
type HTTPConfig struct {
	Address     string   `json:"address" validate:"required"`
	CORSOrigins []string `json:"cors_origins"`
}

// SetDefaults listens on :8080 and allows any origin.
func (c *HTTPConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
}

// PublishConfig lists the downstream publishers ("redis", "mqtt").
type PublishConfig struct {
	Sinks []factory.ModuleConfig `json:"sinks" validate:"dive"`
}
