package pipeline

import (
	"context"
	"strings"

	"github.com/YDUTSEVOLDN/Subway/core/assembly"
	"github.com/YDUTSEVOLDN/Subway/core/features"
	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// SingleHistoryDays is how many days before the requested date PredictOne
// searches for lag history.
const SingleHistoryDays = 7

// PredictOne forecasts a single observation that need not exist in the
// record source. Its lag features are taken from the LagDepth records of the
// same station that precede it within SingleHistoryDays; lags with no
// preceding record are imputed the same way a batch imputes them. Counts on
// rec are ignored.
func (p *Pipeline) PredictOne(ctx context.Context, rec model.HistoricalRecord) (model.PredictionResult, error) {
	if rec.Date.IsZero() || strings.TrimSpace(rec.Station) == "" {
		return model.PredictionResult{}, &InvalidWindowError{Start: rec.Date, End: rec.Date, Reason: "date and station are required"}
	}
	history, err := p.source.Fetch(ctx, rec.Date.AddDays(-SingleHistoryDays), rec.Date, []string{rec.Station})
	if err != nil {
		return model.PredictionResult{}, &UpstreamSourceError{Err: err}
	}
	prior := precedingRecords(history, rec)
	if n := len(prior); n > 0 {
		// Partitions key on the exact station name the source uses.
		rec.Station = prior[n-1].Station
		if rec.District == "" {
			rec.District = prior[n-1].District
		}
	}
	rec.InCount, rec.OutCount = 0, 0

	batch, err := p.builder.Build(append(prior, rec))
	if err != nil {
		return model.PredictionResult{}, err
	}
	last := batch.Vectors[len(batch.Vectors)-1:]
	out, err := p.engine.Predict(ctx, [][]float64{last[0].Values[:]})
	if err != nil {
		return model.PredictionResult{}, err
	}
	res, err := assembly.Assemble(last, out)
	if err != nil {
		return model.PredictionResult{}, err
	}
	p.log.Debugw("single forecast", map[string]any{
		"key":     rec.Key().String(),
		"history": len(prior),
		"imputed": last[0].ImputedCount(),
	})
	return res[0], nil
}

// precedingRecords returns at most LagDepth records strictly before rec, in
// series order. history must be sorted by date then time slot.
func precedingRecords(history []model.HistoricalRecord, rec model.HistoricalRecord) []model.HistoricalRecord {
	var prior []model.HistoricalRecord
	for _, h := range history {
		if !strings.EqualFold(h.Station, rec.Station) {
			continue
		}
		if c := h.Date.Compare(rec.Date); c < 0 || (c == 0 && h.TimeSlot < rec.TimeSlot) {
			prior = append(prior, h)
		}
	}
	if len(prior) > features.LagDepth {
		prior = prior[len(prior)-features.LagDepth:]
	}
	return prior
}
