package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

type failingPublisher struct{}

func (failingPublisher) PublishMessage(context.Context, string, any) error {
	return assert.AnError
}

func TestCollectorReportsPublishFailure(t *testing.T) {
	var out bytes.Buffer
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "logs",
		Publisher:      failingPublisher{},
		ErrorOutput:    &out,
	})
	c.AddLog("error", "fetch failed", nil, "a.go:1")
	c.Close()

	var line map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "failed to publish aggregated logs", line["message"])
	assert.Equal(t, assert.AnError.Error(), line["error"])
	assert.Equal(t, "logs", line["topic"])
	assert.EqualValues(t, 1, line["entries"])
}

func TestCollectorFoldsDuplicatesAndFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "logs",
		MinLevel:       zerolog.WarnLevel,
		Publisher:      pub,
	})

	fields := map[string]any{"provider": "wallex"}
	c.AddLog("error", "fetch failed", fields, "a.go:1")
	c.AddLog("error", "fetch failed", fields, "a.go:1")
	c.AddLog("error", "other", nil, "a.go:2")
	assert.Equal(t, 2, c.Pending())

	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "logs", pub.topic)
	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, map[string]int{"fetch failed": 2, "other": 1}, counts)
}

func TestLoggerCollectsOnlyAboveMinLevel(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, MinLevel: zerolog.ErrorLevel, Publisher: pub})

	l.Warn("slow provider", String("provider", "coincap"))
	l.Error("cycle failed", Error(assert.AnError))
	assert.Equal(t, 1, l.collector.Pending())

	l.RemoveCollector()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "cycle failed", pub.batches[0][0].Message)
	assert.Equal(t, assert.AnError.Error(), pub.batches[0][0].Fields["error"])
}
