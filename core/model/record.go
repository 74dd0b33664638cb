package model

import "strings"

// HistoricalRecord is one observation of a station at a date and time slot.
type HistoricalRecord struct {
	Date        Date     `json:"date"`
	TimeSlot    TimeSlot `json:"time_slot"`
	Station     string   `json:"station"`
	District    string   `json:"district"`
	InCount     int      `json:"in_count"`
	OutCount    int      `json:"out_count"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	WindSpeed   *float64 `json:"wind_speed"`
	IsTransfer  bool     `json:"is_transfer"`
}

// Key returns the identity of the observation.
func (r HistoricalRecord) Key() IdentityKey {
	return IdentityKey{Date: r.Date, TimeSlot: r.TimeSlot, Station: r.Station}
}

// IdentityKey names one observation/prediction pair.
type IdentityKey struct {
	Date     Date
	TimeSlot TimeSlot
	Station  string
}

func (k IdentityKey) String() string {
	return k.Station + "@" + k.Date.String() + "T" + k.TimeSlot.String()
}

// PredictionResult is the forecast for one IdentityKey.
type PredictionResult struct {
	Date              Date     `json:"date"`
	TimeSlot          TimeSlot `json:"time_slot"`
	Station           string   `json:"station"`
	District          string   `json:"district,omitempty"`
	PredictedInCount  int      `json:"predicted_in_count"`
	PredictedOutCount int      `json:"predicted_out_count"`
}

// Key returns the identity of the prediction.
func (p PredictionResult) Key() IdentityKey {
	return IdentityKey{Date: p.Date, TimeSlot: p.TimeSlot, Station: p.Station}
}

// Station is a distinct station known to a record source.
type Station struct {
	Name     string `json:"name"`
	District string `json:"district"`
}

// Summary describes the historical dataset held by a record source.
type Summary struct {
	TotalRecords int      `json:"total_records"`
	FirstDate    *Date    `json:"first_date"`
	LastDate     *Date    `json:"last_date"`
	StationCount int      `json:"station_count"`
	Features     []string `json:"features"`
}

// NormalizeStations lowercases and de-duplicates a station filter. Station
// matching is case-insensitive across all record sources.
func NormalizeStations(stations []string) []string {
	if len(stations) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(stations))
	out := make([]string, 0, len(stations))
	for _, s := range stations {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// PredictionFilter selects stored predictions. Zero dates leave that side of
// the window open; Stations match case-insensitively.
type PredictionFilter struct {
	Start    Date
	End      Date
	Stations []string
	Limit    int
}
