package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	coremetrics "github.com/YDUTSEVOLDN/Subway/core/metrics"
	"github.com/YDUTSEVOLDN/Subway/internal/eventbus"
)

type chanSink struct{ ch chan coremetrics.BatchEvent }

func (c chanSink) RecordBatch(ev coremetrics.BatchEvent) error {
	c.ch <- ev
	return nil
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New[coremetrics.BatchEvent]()
	sink := chanSink{ch: make(chan coremetrics.BatchEvent, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, sink, nil)

	bus.Publish(coremetrics.BatchEvent{BatchID: "b1"})
	select {
	case ev := <-sink.ch:
		assert.Equal(t, "b1", ev.BatchID)
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestStartEventCollectorStopsOnClose(t *testing.T) {
	bus := eventbus.New[coremetrics.BatchEvent]()
	done := StartEventCollector(context.Background(), bus, coremetrics.NopSink{}, nil)
	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}

	nilDone := StartEventCollector(context.Background(), nil, nil, nil)
	_, open := <-nilDone
	assert.False(t, open)
}
