// Package export writes forecast results to files and reads historical
// records from CSV dumps.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// PredictionHeader is the column order written by WriteCSV.
var PredictionHeader = []string{"date", "time_slot", "station", "predicted_in_count", "predicted_out_count"}

// WriteJSON writes the predictions to w as an indented JSON array.
func WriteJSON(w io.Writer, res []model.PredictionResult) error {
	if res == nil {
		res = []model.PredictionResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteCSV writes the predictions to w with a PredictionHeader row.
func WriteCSV(w io.Writer, res []model.PredictionResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PredictionHeader); err != nil {
		return err
	}
	for _, p := range res {
		rec := []string{
			p.Date.String(),
			p.TimeSlot.String(),
			p.Station,
			strconv.Itoa(p.PredictedInCount),
			strconv.Itoa(p.PredictedOutCount),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
