package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/internal/testutil"
)

func fp(v float64) *float64 { return &v }

func d(day int) model.Date { return model.Date{Year: 2025, Month: time.July, Day: day} }

func TestWindowPlaceholders(t *testing.T) {
	w := window(d(1), d(2), []string{"A", "b"})
	assert.Equal(t, " WHERE date >= $1::date AND date <= $2::date AND LOWER(station) = ANY($3)", w.String())
	assert.Equal(t, []any{"2025-07-01", "2025-07-02", []string{"a", "b"}}, w.args)
	assert.Equal(t, "", window(model.Date{}, model.Date{}, nil).String())
}

func TestSelectListCastsTemporalColumns(t *testing.T) {
	got := selectList("date, time_slot, station")
	assert.Equal(t, "date::text, to_char(time_slot, 'HH24:MI'), station", got)
}

func TestStoreIntegration(t *testing.T) {
	dsn := testutil.StartPostgres(t)
	ctx := context.Background()
	s, err := Open(ctx, dsn, Options{BatchSize: 2, Migrate: true})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	recs := []model.HistoricalRecord{
		{Date: d(8), TimeSlot: model.MustTimeSlot(7, 0), Station: "Xizhimen", District: "Xicheng", InCount: 30, OutCount: 20, Temperature: fp(24.5)},
		{Date: d(7), TimeSlot: model.MustTimeSlot(8, 0), Station: "Gongzhufen", District: "Haidian", InCount: 11, OutCount: 9, IsTransfer: true},
		{Date: d(7), TimeSlot: model.MustTimeSlot(7, 0), Station: "Gongzhufen", District: "Haidian", InCount: 10, OutCount: 8},
	}
	n, err := s.Insert(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = s.Insert(ctx, recs[:1])
	var dup *model.DuplicateKeyError
	require.ErrorAs(t, err, &dup)

	got, err := s.Fetch(ctx, d(7), d(8), []string{"GONGZHUFEN", "xizhimen"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, model.MustTimeSlot(7, 0), got[0].TimeSlot)
	assert.Equal(t, model.MustTimeSlot(8, 0), got[1].TimeSlot)
	assert.True(t, got[1].IsTransfer)
	require.NotNil(t, got[2].Temperature)
	assert.Nil(t, got[0].Temperature)

	recent, err := s.Recent(ctx, "gongzhufen", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, model.MustTimeSlot(8, 0), recent[0].TimeSlot)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalRecords)
	assert.Equal(t, 2, sum.StationCount)
	assert.Equal(t, d(7), *sum.FirstDate)

	st, err := s.Stations(ctx)
	require.NoError(t, err)
	assert.Len(t, st, 2)

	res := []model.PredictionResult{{Date: d(9), TimeSlot: model.MustTimeSlot(7, 0), Station: "Xizhimen", PredictedInCount: 33}}
	_, err = s.Save(ctx, res)
	require.NoError(t, err)
	res[0].PredictedInCount = 34
	_, err = s.Save(ctx, res)
	require.NoError(t, err)
	stored, err := s.Query(ctx, model.PredictionFilter{Stations: []string{"XIZHIMEN"}})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 34, stored[0].PredictedInCount)
}
