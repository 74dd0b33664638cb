package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// RequiredColumns must be present in the header of an imported CSV file.
var RequiredColumns = []string{"date", "time_slot", "station", "in_count", "out_count"}

// ReadRecords parses historical records from a CSV stream with a header row.
// Columns are matched by name, case-insensitively, so their order is free.
// district, temperature, humidity, wind_speed and is_transfer are optional;
// empty weather cells are read as absent.
func ReadRecords(r io.Reader) ([]model.HistoricalRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &model.ConfigurationError{Field: "header", Reason: "empty file"}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range RequiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, &model.ConfigurationError{Field: c, Reason: "missing column in CSV header"}
		}
	}

	var out []model.HistoricalRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}

func parseRow(row []string, cols map[string]int) (model.HistoricalRecord, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	var (
		rec model.HistoricalRecord
		err error
	)
	if rec.Date, err = model.ParseDate(get("date")); err != nil {
		return rec, err
	}
	if rec.TimeSlot, err = model.ParseTimeSlot(get("time_slot")); err != nil {
		return rec, err
	}
	if rec.Station = get("station"); rec.Station == "" {
		return rec, &model.ConfigurationError{Field: "station", Reason: "empty cell"}
	}
	rec.District = get("district")
	if rec.InCount, err = strconv.Atoi(get("in_count")); err != nil {
		return rec, fmt.Errorf("in_count: %w", err)
	}
	if rec.OutCount, err = strconv.Atoi(get("out_count")); err != nil {
		return rec, fmt.Errorf("out_count: %w", err)
	}
	if rec.InCount < 0 || rec.OutCount < 0 {
		return rec, &model.ConfigurationError{Field: "in_count/out_count", Reason: "negative count"}
	}
	for name, dst := range map[string]**float64{
		"temperature": &rec.Temperature,
		"humidity":    &rec.Humidity,
		"wind_speed":  &rec.WindSpeed,
	} {
		s := get(name)
		if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "nan") {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return rec, fmt.Errorf("%s: %w", name, err)
		}
		*dst = &v
	}
	if s := get("is_transfer"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return rec, fmt.Errorf("is_transfer: %w", err)
		}
		rec.IsTransfer = b
	}
	return rec, nil
}
