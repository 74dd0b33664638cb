// Package store holds what the SQL record sources share: table names, the
// required column contract and row decoding. Driver specific code lives in
// the sqlite and postgres subpackages.
package store

import (
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/YDUTSEVOLDN/Subway/core/features"
	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// Table names.
const (
	HistoricalTable = "metro_historical_data"
	PredictionTable = "metro_prediction_data"
)

// DefaultBatchSize is the page size used by Fetch when none is configured.
const DefaultBatchSize = 10000

// RequiredColumns must exist on HistoricalTable.
var RequiredColumns = []string{
	"date", "time_slot", "station", "in_count", "out_count",
	"temperature", "humidity", "wind_speed", "is_transfer",
}

// HistoricalColumns is the select list used by Fetch, in scan order.
const HistoricalColumns = "date, time_slot, station, district, in_count, out_count, temperature, humidity, wind_speed, is_transfer"

// CheckColumns returns a ConfigurationError naming the first required column
// missing from have. Matching is case-insensitive.
func CheckColumns(have []string) error {
	lower := make([]string, len(have))
	for i, c := range have {
		lower[i] = strings.ToLower(c)
	}
	for _, c := range RequiredColumns {
		if !slices.Contains(lower, c) {
			return &model.ConfigurationError{
				Field:  HistoricalTable + "." + c,
				Reason: "required column missing from record source",
			}
		}
	}
	return nil
}

// Scanner is satisfied by *sql.Rows and pgx.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanRecord decodes one row selected with HistoricalColumns. Date and time
// slot arrive as text; NULL weather stays nil.
func ScanRecord(s Scanner) (model.HistoricalRecord, error) {
	var (
		date, slot      string
		rec             model.HistoricalRecord
		district        sql.NullString
		temp, hum, wind sql.NullFloat64
		transfer        sql.NullBool
	)
	if err := s.Scan(&date, &slot, &rec.Station, &district, &rec.InCount, &rec.OutCount, &temp, &hum, &wind, &transfer); err != nil {
		return rec, err
	}
	var err error
	if rec.Date, err = model.ParseDate(trimDate(date)); err != nil {
		return rec, &model.ConfigurationError{Field: "date", Reason: fmt.Sprintf("unparseable value %q", date)}
	}
	if rec.TimeSlot, err = model.ParseTimeSlot(slot); err != nil {
		return rec, &model.ConfigurationError{Field: "time_slot", Reason: fmt.Sprintf("unparseable value %q", slot)}
	}
	rec.District = district.String
	rec.Temperature = floatPtr(temp)
	rec.Humidity = floatPtr(hum)
	rec.WindSpeed = floatPtr(wind)
	rec.IsTransfer = transfer.Bool
	return rec, nil
}

// ScanPrediction decodes one row selected with PredictionColumns.
func ScanPrediction(s Scanner) (model.PredictionResult, error) {
	var (
		date, slot string
		res        model.PredictionResult
		district   sql.NullString
	)
	if err := s.Scan(&date, &slot, &res.Station, &district, &res.PredictedInCount, &res.PredictedOutCount); err != nil {
		return res, err
	}
	var err error
	if res.Date, err = model.ParseDate(trimDate(date)); err != nil {
		return res, err
	}
	if res.TimeSlot, err = model.ParseTimeSlot(slot); err != nil {
		return res, err
	}
	res.District = district.String
	return res, nil
}

// PredictionColumns is the select list used by prediction queries.
const PredictionColumns = "date, time_slot, station, district, predicted_in_count, predicted_out_count"

// FeatureNames is reported in dataset summaries.
func FeatureNames() []string { return features.BaseNames() }

// NullFloat converts an optional weather value for insertion.
func NullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// trimDate drops a time component some drivers append to DATE values.
func trimDate(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
