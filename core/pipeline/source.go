package pipeline

import (
	"context"

	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// RecordSource delivers historical observations for a date window.
//
// Fetch must return every record for the requested stations across the whole
// inclusive window, ordered by date then time slot. A nil or empty stations
// slice means all stations; matching is case-insensitive.
type RecordSource interface {
	Fetch(ctx context.Context, start, end model.Date, stations []string) ([]model.HistoricalRecord, error)
}

// Catalog describes the dataset behind a record source.
type Catalog interface {
	Stations(ctx context.Context) ([]model.Station, error)
	Summary(ctx context.Context) (model.Summary, error)
	// Recent returns at most limit records, newest first. An empty station
	// covers every station.
	Recent(ctx context.Context, station string, limit int) ([]model.HistoricalRecord, error)
}

// PredictionStore persists assembled predictions. Save upserts on the
// identity key and returns the number of rows written.
type PredictionStore interface {
	Save(ctx context.Context, res []model.PredictionResult) (int, error)
	Query(ctx context.Context, f model.PredictionFilter) ([]model.PredictionResult, error)
}
