package metrics

import (
	"github.com/YDUTSEVOLDN/Subway/core/factory"
	coremetrics "github.com/YDUTSEVOLDN/Subway/core/metrics"
)

// init registers the prometheus and influx sinks. "nop" is registered by
// core/metrics.
func init() {
	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		return NewPromSink()
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
