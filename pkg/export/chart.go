package export

import (
	"fmt"
	"io"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// WriteHTML renders the predictions as a line chart page: one inbound and
// one outbound series per station over the shared date/time axis.
func WriteHTML(w io.Writer, res []model.PredictionResult) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Ridership forecast"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Date & Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Passengers"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)

	axis, stations, in, out := series(res)
	line.SetXAxis(axis)
	for _, st := range stations {
		line.AddSeries(st+" in", in[st]).AddSeries(st+" out", out[st])
	}
	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// series aligns every station on the sorted set of distinct date/time
// labels. Slots a station has no prediction for are left empty.
func series(res []model.PredictionResult) ([]string, []string, map[string][]opts.LineData, map[string][]opts.LineData) {
	keys := make([]model.IdentityKey, 0, len(res))
	for _, p := range res {
		keys = append(keys, model.IdentityKey{Date: p.Date, TimeSlot: p.TimeSlot})
	}
	slices.SortFunc(keys, func(a, b model.IdentityKey) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return int(a.TimeSlot) - int(b.TimeSlot)
	})
	keys = slices.Compact(keys)
	pos := make(map[model.IdentityKey]int, len(keys))
	axis := make([]string, len(keys))
	for i, k := range keys {
		pos[k] = i
		axis[i] = k.Date.String() + " " + k.TimeSlot.String()
	}

	var stations []string
	in := map[string][]opts.LineData{}
	out := map[string][]opts.LineData{}
	for _, p := range res {
		if _, ok := in[p.Station]; !ok {
			stations = append(stations, p.Station)
			in[p.Station] = make([]opts.LineData, len(keys))
			out[p.Station] = make([]opts.LineData, len(keys))
		}
		i := pos[model.IdentityKey{Date: p.Date, TimeSlot: p.TimeSlot}]
		in[p.Station][i] = opts.LineData{Value: p.PredictedInCount}
		out[p.Station][i] = opts.LineData{Value: p.PredictedOutCount}
	}
	slices.Sort(stations)
	return axis, stations, in, out
}
