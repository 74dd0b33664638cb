package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YDUTSEVOLDN/Subway/core/model"
)

func results() []model.PredictionResult {
	return []model.PredictionResult{
		{Date: model.Date{Year: 2025, Month: time.July, Day: 8}, TimeSlot: model.MustTimeSlot(7, 0), Station: "Gongzhufen", PredictedInCount: 140, PredictedOutCount: 0},
		{Date: model.Date{Year: 2025, Month: time.July, Day: 8}, TimeSlot: model.MustTimeSlot(7, 15), Station: "Xidan", PredictedInCount: 3, PredictedOutCount: 9},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, results()))
	want := "date,time_slot,station,predicted_in_count,predicted_out_count\n" +
		"2025-07-08,07:00,Gongzhufen,140,0\n" +
		"2025-07-08,07:15,Xidan,3,9\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, results()))
	var back []model.PredictionResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, results(), back)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestReadRecords(t *testing.T) {
	in := "Station,date,time_slot,in_count,out_count,temperature,humidity,wind_speed,is_transfer,district\n" +
		"Gongzhufen,2025-07-08,07:00,120,30,26.5,,3.1,true,Haidian\n" +
		"Xidan,2025-07-08,07:15:00,8,4,null,60,,false,Xicheng\n"
	recs, err := ReadRecords(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	a := recs[0]
	assert.Equal(t, "Gongzhufen", a.Station)
	assert.Equal(t, "Haidian", a.District)
	assert.Equal(t, model.MustTimeSlot(7, 0), a.TimeSlot)
	assert.Equal(t, 120, a.InCount)
	require.NotNil(t, a.Temperature)
	assert.Equal(t, 26.5, *a.Temperature)
	assert.Nil(t, a.Humidity)
	assert.True(t, a.IsTransfer)

	b := recs[1]
	assert.Nil(t, b.Temperature)
	require.NotNil(t, b.Humidity)
	assert.Equal(t, 60.0, *b.Humidity)
	assert.Equal(t, model.MustTimeSlot(7, 15), b.TimeSlot)
}

func TestReadRecords_MissingColumn(t *testing.T) {
	_, err := ReadRecords(strings.NewReader("date,time_slot,station,in_count\n2025-07-08,07:00,A,1\n"))
	var cfgErr *model.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "out_count", cfgErr.Field)

	_, err = ReadRecords(strings.NewReader(""))
	assert.True(t, errors.As(err, &cfgErr))
}

func TestReadRecords_BadValue(t *testing.T) {
	_, err := ReadRecords(strings.NewReader("date,time_slot,station,in_count,out_count\n2025-07-08,07:00,A,many,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2: in_count")
}

func TestReadRecords_RejectsUnusableRows(t *testing.T) {
	head := "date,time_slot,station,in_count,out_count,temperature,humidity,wind_speed,is_transfer\n"
	_, err := ReadRecords(strings.NewReader(head +
		"2025-07-08,07:00,A,1,1,,,,false\n" +
		"2025-07-08,07:15,  ,2,1,,,,false\n"))
	var cfgErr *model.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "station", cfgErr.Field)
	assert.Contains(t, err.Error(), "line 3")

	_, err = ReadRecords(strings.NewReader(head + "2025-07-08,07:00,A,-4,1,,,,false\n"))
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "negative count")
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, results()))
	html := buf.String()
	assert.Contains(t, html, "Ridership forecast")
	assert.Contains(t, html, "Gongzhufen in")
	assert.Contains(t, html, "Xidan out")
	assert.Contains(t, html, "2025-07-08 07:15")
}

func TestSeriesAlignsStations(t *testing.T) {
	axis, stations, in, _ := series(results())
	assert.Equal(t, []string{"2025-07-08 07:00", "2025-07-08 07:15"}, axis)
	assert.Equal(t, []string{"Gongzhufen", "Xidan"}, stations)
	assert.Equal(t, 140, in["Gongzhufen"][0].Value)
	assert.Nil(t, in["Gongzhufen"][1].Value)
	assert.Equal(t, 3, in["Xidan"][1].Value)
}
