package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateDayOfWeek(t *testing.T) {
	// 2025-07-07 is a Monday.
	d := Date{Year: 2025, Month: time.July, Day: 7}
	assert.Equal(t, 0, d.DayOfWeek())
	assert.Equal(t, 6, d.AddDays(6).DayOfWeek())
	assert.Equal(t, Date{Year: 2025, Month: time.August, Day: 1}, d.AddDays(25))
}

func TestDateCompare(t *testing.T) {
	a := Date{Year: 2025, Month: time.January, Day: 31}
	b := Date{Year: 2025, Month: time.February, Day: 1}
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestParseTimeSlot(t *testing.T) {
	cases := []struct {
		in    string
		want  TimeSlot
		clock int
	}{
		{"07:30", MustTimeSlot(7, 30), 730},
		{"07:30:00", MustTimeSlot(7, 30), 730},
		{"23:59", MustTimeSlot(23, 59), 2359},
		{"00:00", 0, 0},
	}
	for _, c := range cases {
		got, err := ParseTimeSlot(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got)
		assert.Equal(t, c.clock, got.Clock())
	}
	_, err := ParseTimeSlot("25:00")
	assert.Error(t, err)
}

func TestHistoricalRecordJSONNullWeather(t *testing.T) {
	rec := HistoricalRecord{
		Date:     Date{Year: 2025, Month: time.July, Day: 8},
		TimeSlot: MustTimeSlot(8, 0),
		Station:  "Gongzhufen",
		InCount:  12,
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"date":"2025-07-08"`)
	assert.Contains(t, string(b), `"time_slot":"08:00"`)
	assert.Contains(t, string(b), `"temperature":null`)

	var back HistoricalRecord
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, rec, back)
}

func TestPredictionResultsRoundTrip(t *testing.T) {
	in := []PredictionResult{
		{Date: Date{Year: 2025, Month: time.July, Day: 8}, TimeSlot: MustTimeSlot(7, 0), Station: "A", PredictedInCount: 140, PredictedOutCount: 0},
		{Date: Date{Year: 2025, Month: time.July, Day: 9}, TimeSlot: MustTimeSlot(18, 45), Station: "B", District: "Haidian", PredictedInCount: 3, PredictedOutCount: 9},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	var out []PredictionResult
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestNormalizeStations(t *testing.T) {
	assert.Nil(t, NormalizeStations(nil))
	assert.Equal(t, []string{"a", "b"}, NormalizeStations([]string{" A", "a", "B", ""}))
}
