package config

import (
	"github.com/robfig/cron/v3"

	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// ScheduleConfig drives the periodic forecast job.
type ScheduleConfig struct {
	Enabled bool `json:"enabled"`
	// Cron is a standard five field spec, or a descriptor such as "@hourly".
	Cron string `json:"cron"`
	// LookbackDays sets the window to [today-LookbackDays, today].
	LookbackDays int      `json:"lookback_days" validate:"gte=0"`
	Stations     []string `json:"stations"`
	// Timezone names the location used to decide "today".
	Timezone string `json:"timezone"`
}

// SetDefaults runs every 15 minutes over the last week.
func (c *ScheduleConfig) SetDefaults() {
	if c.Cron == "" {
		c.Cron = "*/15 * * * *"
	}
	if c.LookbackDays == 0 {
		c.LookbackDays = 7
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
}

// Validate parses the cron spec.
func (c ScheduleConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(c.Cron); err != nil {
		return &model.ConfigurationError{Field: "schedule.cron", Reason: err.Error()}
	}
	return nil
}
