package features

import (
	"fmt"

	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// Feature indexes one base feature inside a lag step.
type Feature int

// Base features in the order the regressors were trained on. Do not reorder.
const (
	InCount Feature = iota
	OutCount
	Temperature
	Humidity
	WindSpeed
	Minutes
	DayOfWeek

	NumBase
)

// LagDepth is the number of previous observations copied into each vector.
const LagDepth = 6

// Width is the length of every feature vector.
const Width = LagDepth * int(NumBase)

var baseNames = [NumBase]string{
	InCount:     "in_count",
	OutCount:    "out_count",
	Temperature: "temperature",
	Humidity:    "humidity",
	WindSpeed:   "wind_speed",
	Minutes:     "minutes",
	DayOfWeek:   "day_of_week",
}

func (f Feature) String() string {
	if f < 0 || f >= NumBase {
		return fmt.Sprintf("feature(%d)", int(f))
	}
	return baseNames[f]
}

// BaseNames returns the base feature names in layout order.
func BaseNames() []string {
	out := make([]string, NumBase)
	copy(out, baseNames[:])
	return out
}

// Column returns the vector index of lag step lag (1..LagDepth) of f.
// Lag steps are the outer loop, base features the inner loop.
func Column(lag int, f Feature) int {
	return (lag-1)*int(NumBase) + int(f)
}

// ColumnName returns the training column name of vector index i, e.g.
// "lag1_in_count".
func ColumnName(i int) string {
	lag := i/int(NumBase) + 1
	return fmt.Sprintf("lag%d_%s", lag, Feature(i%int(NumBase)))
}

// ColumnNames lists all Width column names in vector order.
func ColumnNames() []string {
	out := make([]string, Width)
	for i := range out {
		out[i] = ColumnName(i)
	}
	return out
}

// base is the unlagged feature row of one record.
type base [NumBase]float64

func baseOf(r model.HistoricalRecord) base {
	return base{
		InCount:     float64(r.InCount),
		OutCount:    float64(r.OutCount),
		Temperature: orZero(r.Temperature),
		Humidity:    orZero(r.Humidity),
		WindSpeed:   orZero(r.WindSpeed),
		Minutes:     float64(r.TimeSlot.Clock()),
		DayOfWeek:   float64(r.Date.DayOfWeek()),
	}
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
