// Package metrics defines the observability contract of the forecasting
// pipeline. Sinks like PromSink and InfluxSink (infra/metrics) record batch
// outcomes and, optionally, the predicted series and store results. The
// factory helpers return a MultiSink automatically when multiple sinks are
// configured.
package metrics
