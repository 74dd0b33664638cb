// Package logger adapts rs/zerolog to the core logging contract.
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	corelogger "github.com/YDUTSEVOLDN/Subway/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Options controls the process-wide log output. The zero value writes JSON
// at info level to stdout.
type Options struct {
	// Level is one of debug, info, warn or error.
	Level string
	// Console selects the human readable writer. APP_ENV=dev forces it.
	Console bool
	Output  io.Writer
}

var (
	mu   sync.RWMutex
	opts = Options{Level: "info"}
)

// Configure sets the level and output used by loggers created afterwards.
func Configure(o Options) error {
	if o.Level == "" {
		o.Level = "info"
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(o.Level))
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	mu.Lock()
	opts = o
	mu.Unlock()
	return nil
}

// New returns a Logger for the given component.
func New(component string) Logger {
	mu.RLock()
	o := opts
	mu.RUnlock()
	return NewZerologLogger(component, o)
}
