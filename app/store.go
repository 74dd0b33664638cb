package app

import (
	"context"
	"fmt"

	"github.com/YDUTSEVOLDN/Subway/config"
	corelogger "github.com/YDUTSEVOLDN/Subway/core/logger"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/core/pipeline"
	"github.com/YDUTSEVOLDN/Subway/infra/store/postgres"
	"github.com/YDUTSEVOLDN/Subway/infra/store/sqlite"
)

// Store is a database backing both the record source and the prediction
// store.
type Store interface {
	pipeline.RecordSource
	pipeline.Catalog
	pipeline.PredictionStore
	Insert(ctx context.Context, recs []model.HistoricalRecord) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// OpenStore opens the database selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, log corelogger.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()
	switch cfg.Driver {
	case "sqlite":
		st, err := sqlite.Open(ctx, cfg.DSN, sqlite.Options{BatchSize: cfg.BatchSize, Migrate: cfg.Migrate, Logger: log})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := postgres.Open(ctx, cfg.DSN, postgres.Options{BatchSize: cfg.BatchSize, Migrate: cfg.Migrate, Logger: log})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, &model.ConfigurationError{Field: "database.driver", Reason: fmt.Sprintf("unsupported driver %q", cfg.Driver)}
	}
}
