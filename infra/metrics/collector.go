package metrics

import (
	"context"

	corelogger "github.com/YDUTSEVOLDN/Subway/core/logger"
	coremetrics "github.com/YDUTSEVOLDN/Subway/core/metrics"
	"github.com/YDUTSEVOLDN/Subway/internal/eventbus"
)

// StartEventCollector subscribes to the batch event bus and forwards every
// event to sink. It stops when ctx is cancelled or the bus is closed. The
// returned channel is closed once the collector has exited.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[coremetrics.BatchEvent], sink coremetrics.MetricsSink, log corelogger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log = corelogger.OrNop(log)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := sink.RecordBatch(ev); err != nil {
					log.Warnf("collector: batch %s: %v", ev.BatchID, err)
				}
			}
		}
	}()
	return done
}
