package config

import (
	"github.com/YDUTSEVOLDN/Subway/core/factory"
	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// ModelsConfig names the inbound and outbound regressors.
type ModelsConfig struct {
	Inbound  factory.ModuleConfig `json:"inbound"`
	Outbound factory.ModuleConfig `json:"outbound"`
}

// SetDefaults points both models at linear artifacts under models/.
func (c *ModelsConfig) SetDefaults() {
	if c.Inbound.Type == "" && c.Inbound.Conf == nil {
		c.Inbound = factory.ModuleConfig{Type: "linear", Conf: map[string]any{"path": "models/inbound.yaml"}}
	}
	if c.Outbound.Type == "" && c.Outbound.Conf == nil {
		c.Outbound = factory.ModuleConfig{Type: "linear", Conf: map[string]any{"path": "models/outbound.yaml"}}
	}
}

// Validate requires a type for both models.
func (c ModelsConfig) Validate() error {
	if c.Inbound.Type == "" {
		return &model.ConfigurationError{Field: "models.inbound.type", Reason: "required"}
	}
	if c.Outbound.Type == "" {
		return &model.ConfigurationError{Field: "models.outbound.type", Reason: "required"}
	}
	return nil
}
