package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	corelogger "github.com/YDUTSEVOLDN/Subway/core/logger"
	coremetrics "github.com/YDUTSEVOLDN/Subway/core/metrics"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/infra/logger"
)

// InfluxConfig addresses an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes batch outcomes and the forecast series to InfluxDB.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      corelogger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// when the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordBatch writes one forecast_batch point.
func (s *InfluxSink) RecordBatch(ev coremetrics.BatchEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, batchPoint(ev))
}

// RecordPredictions writes the forecast series, one point per station and
// slot, timestamped at the predicted slot.
func (s *InfluxSink) RecordPredictions(batchID string, res []model.PredictionResult) error {
	if len(res) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pts := make([]*write.Point, len(res))
	for i, r := range res {
		pts[i] = predictionPoint(batchID, r)
	}
	return s.writeAPI.WritePoint(ctx, pts...)
}

// RecordStore writes one forecast_write point.
func (s *InfluxSink) RecordStore(ev coremetrics.StoreEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("forecast_write").
		AddTag("batch_id", ev.BatchID).
		AddTag("target", ev.Target).
		AddField("count", ev.Count).
		AddField("error", ev.Err).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func batchPoint(ev coremetrics.BatchEvent) *write.Point {
	outcome := "ok"
	if ev.Failed() {
		outcome = "failed"
	}
	p := write.NewPointWithMeasurement("forecast_batch").
		AddTag("batch_id", ev.BatchID).
		AddTag("outcome", outcome)
	if ev.Stage != "" {
		p = p.AddTag("stage", ev.Stage)
	}
	return p.AddField("records", ev.Records).
		AddField("vectors", ev.Vectors).
		AddField("imputed_cells", ev.ImputedCells).
		AddField("predictions", ev.Predictions).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		AddField("error", ev.Err).
		SetTime(ev.Time)
}

func predictionPoint(batchID string, r model.PredictionResult) *write.Point {
	ts := r.Date.Time().Add(time.Duration(r.TimeSlot) * time.Minute)
	p := write.NewPointWithMeasurement("ridership_forecast").
		AddTag("station", r.Station).
		AddTag("batch_id", batchID)
	if r.District != "" {
		p = p.AddTag("district", r.District)
	}
	return p.AddField("predicted_in_count", r.PredictedInCount).
		AddField("predicted_out_count", r.PredictedOutCount).
		SetTime(ts)
}
