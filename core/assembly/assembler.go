// Package assembly maps regressor outputs back onto the identity keys that
// travelled with each feature vector.
package assembly

import (
	"fmt"
	"math"

	"github.com/YDUTSEVOLDN/Subway/core/features"
	"github.com/YDUTSEVOLDN/Subway/core/inference"
	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// CountMismatchError reports regressor outputs whose length differs from the
// number of vectors. It signals a bug upstream.
type CountMismatchError struct {
	Keys     int
	Inbound  int
	Outbound int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("result count mismatch: %d keys, %d inbound outputs, %d outbound outputs",
		e.Keys, e.Inbound, e.Outbound)
}

// maxCount caps absurd model outputs so the conversion to int stays defined.
const maxCount = math.MaxInt32

// Count converts a raw regressor output to a passenger count: rounded half
// away from zero and clamped to [0, MaxInt32]. NaN maps to 0.
func Count(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	switch {
	case v <= 0:
		return 0
	case v >= maxCount:
		return maxCount
	}
	return int(v)
}

// Assemble zips out onto the keys of vectors. Result i belongs to
// vectors[i].
func Assemble(vectors []features.FeatureVector, out inference.Output) ([]model.PredictionResult, error) {
	if len(out.Inbound) != len(vectors) || len(out.Outbound) != len(vectors) {
		return nil, &CountMismatchError{Keys: len(vectors), Inbound: len(out.Inbound), Outbound: len(out.Outbound)}
	}
	res := make([]model.PredictionResult, len(vectors))
	for i := range vectors {
		k := vectors[i].Key
		res[i] = model.PredictionResult{
			Date:              k.Date,
			TimeSlot:          k.TimeSlot,
			Station:           k.Station,
			District:          vectors[i].District,
			PredictedInCount:  Count(out.Inbound[i]),
			PredictedOutCount: Count(out.Outbound[i]),
		}
	}
	return res, nil
}
