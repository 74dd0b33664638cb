// Package publish defines how finished prediction batches are pushed to
// downstream consumers such as dashboards or message brokers.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/YDUTSEVOLDN/Subway/core/factory"
	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// Message is the payload handed to every publisher.
type Message struct {
	BatchID     string                   `json:"batch_id"`
	Start       model.Date               `json:"start"`
	End         model.Date               `json:"end"`
	Predictions []model.PredictionResult `json:"predictions"`
}

// Publisher pushes one batch of predictions to an external system.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	Close() error
}

var registry = factory.NewRegistry[Publisher]()

// Register adds a publisher factory identified by name.
func Register(name string, f factory.Factory[Publisher]) error {
	return registry.Register(name, f)
}

// New creates a Publisher from its module configuration.
func New(cfg factory.ModuleConfig) (Publisher, error) {
	return registry.Create(cfg)
}

// NewAll creates every configured publisher. Already-created publishers are
// closed when a later one fails.
func NewAll(cfgs []factory.ModuleConfig) ([]Publisher, error) {
	out := make([]Publisher, 0, len(cfgs))
	for _, c := range cfgs {
		p, err := New(c)
		if err != nil {
			_ = CloseAll(out)
			return nil, fmt.Errorf("publisher %s: %w", c.Type, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// CloseAll closes every publisher and joins their errors.
func CloseAll(ps []Publisher) error {
	var errs []error
	for _, p := range ps {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Types lists the registered publisher types.
func Types() []string { return registry.Types() }
