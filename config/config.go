// Package config loads the service configuration from a YAML or JSON file
// with K_ prefixed environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/YDUTSEVOLDN/Subway/core/features"
	"github.com/YDUTSEVOLDN/Subway/core/metrics"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/core/runlog"
)

type Config struct {
	Database DatabaseConfig  `json:"database"`
	Models   ModelsConfig    `json:"models"`
	Features features.Config `json:"features"`
	HTTP     HTTPConfig      `json:"http"`
	Metrics  metrics.Config  `json:"metrics"`
	Publish  PublishConfig   `json:"publish"`
	Schedule ScheduleConfig  `json:"schedule"`
	RunLog   runlog.Config   `json:"runlog"`
	Sentry   SentryConfig    `json:"sentry"`
	Logging  LoggingConfig   `json:"logging"`
}

// Load reads path, applies environment overrides such as
// K_DATABASE__DSN=... (database.dsn), fills defaults and validates. An empty
// path loads from the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Database.SetDefaults()
	c.Models.SetDefaults()
	c.Features.SetDefaults()
	c.HTTP.SetDefaults()
	c.Schedule.SetDefaults()
	c.Logging.SetDefaults()
	if c.RunLog.Backend == "" {
		c.RunLog.Backend = "none"
	}
}

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate runs the struct tag rules, then the per-section checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &model.ConfigurationError{Field: fieldPath(fe.Namespace()), Reason: fmt.Sprintf("failed %q rule", fe.Tag())}
		}
		return err
	}
	if err := c.Models.Validate(); err != nil {
		return err
	}
	if err := c.Features.Validate(); err != nil {
		return err
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	switch c.RunLog.Backend {
	case "none", "jsonl", "rotating", "sqlite":
	default:
		return &model.ConfigurationError{Field: "runlog.backend", Reason: "unknown backend " + c.RunLog.Backend}
	}
	if c.RunLog.Backend != "none" && c.RunLog.Path == "" {
		return &model.ConfigurationError{Field: "runlog.path", Reason: "required for backend " + c.RunLog.Backend}
	}
	return nil
}

// fieldPath turns "Config.database.dsn" into "database.dsn".
func fieldPath(ns string) string {
	return strings.TrimPrefix(ns, "Config.")
}
