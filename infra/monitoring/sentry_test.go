package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YDUTSEVOLDN/Subway/config"
	coremon "github.com/YDUTSEVOLDN/Subway/core/monitoring"
)

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestSentryMonitorCapturesTags(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	m, err := newSentryMonitor(sentry.ClientOptions{
		BeforeSend: func(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)

	m.CaptureException(errors.New("feature shape mismatch"), map[string]string{"batch_id": "b1", "stage": "inference"})
	m.CaptureException(nil, nil)
	m.Flush(time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "b1", events[0].Tags["batch_id"])
	assert.Equal(t, "inference", events[0].Tags["stage"])
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "feature shape mismatch", events[0].Exception[0].Value)
}

func TestSentryMonitorRecoverRepanics(t *testing.T) {
	m, err := newSentryMonitor(sentry.ClientOptions{})
	require.NoError(t, err)
	assert.Panics(t, func() {
		defer m.Recover()
		panic("boom")
	})
}
