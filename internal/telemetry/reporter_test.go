// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/vodplayer/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestReporter(opts ...Option) (*Reporter, *clock.Mock) {
	clk := clock.NewMock(time.Unix(1_700_000_000, 0))
	return NewReporter(clk, opts...), clk
}

func TestSpanLifecycle(t *testing.T) {
	r, clk := newTestReporter()

	r.StartSpan("seek/hls-total", CategoryFrontend, Meta{"target": 600.0})
	clk.Advance(250 * time.Millisecond)
	d := r.EndSpan("seek/hls-total", Meta{"reused": "false"})

	assert.InDelta(t, 250, d, 0.001)
	spans := r.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "seek/hls-total", spans[0].Label)
	assert.Equal(t, 600.0, spans[0].Meta["target"])
	assert.Equal(t, "false", spans[0].Meta["reused"], "end meta is merged")

	assert.Zero(t, r.EndSpan("seek/hls-total", nil), "span closes exactly once")
	assert.Zero(t, r.EndSpan("never-started", nil))
	assert.Len(t, r.Entries(), 1)
}

func TestEventsAndOrdering(t *testing.T) {
	r, clk := newTestReporter()

	r.Event("a", CategoryFrontend, nil)
	clk.Advance(time.Millisecond)
	r.StartSpan("open", CategoryNetwork, nil)
	clk.Advance(time.Millisecond)
	r.Event("b", CategoryFrontend, nil)

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"b", "open", "a"}, []string{entries[0].Label, entries[1].Label, entries[2].Label})
	assert.True(t, entries[0].Event)
	assert.False(t, entries[1].Completed())
	assert.Empty(t, r.Spans(), "open spans are not completed")
}

func TestRingBufferEvictsOldest(t *testing.T) {
	r, _ := newTestReporter(WithCapacity(5))
	for i := 0; i < 8; i++ {
		r.Event(fmt.Sprintf("e%d", i), CategoryFrontend, nil)
	}

	entries := r.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, "e7", entries[0].Label)
	assert.Equal(t, "e3", entries[4].Label)
}

func TestIngestBackendTiming(t *testing.T) {
	r, _ := newTestReporter()
	r.IngestBackendTiming("seek/hls", map[string]float64{"ffmpeg_spawn": 41.6, "db": 2.2})

	entries := r.Entries()
	require.Len(t, entries, 2)
	labels := map[string]any{}
	for _, e := range entries {
		assert.Equal(t, CategoryBackend, e.Category)
		labels[e.Label] = e.Meta["ms"]
	}
	assert.Equal(t, map[string]any{"seek/hls/db": 2.0, "seek/hls/ffmpeg_spawn": 42.0}, labels)
}

func TestResetClearsAndMovesOrigin(t *testing.T) {
	r, clk := newTestReporter()
	r.StartSpan("init/total", CategoryFrontend, nil)
	clk.Advance(5 * time.Second)

	r.Reset()
	assert.Empty(t, r.Entries())
	assert.Zero(t, r.EndSpan("init/total", nil), "open spans are dropped by reset")

	r.Event("fresh", CategoryFrontend, nil)
	assert.Zero(t, r.Entries()[0].StartMs)
}

func TestSummary(t *testing.T) {
	r, clk := newTestReporter()
	for _, ms := range []time.Duration{100, 300} {
		r.StartSpan("seek/hls-total", CategoryFrontend, nil)
		clk.Advance(ms * time.Millisecond)
		r.EndSpan("seek/hls-total", nil)
	}
	r.StartSpan("init/total", CategoryFrontend, nil)
	clk.Advance(50 * time.Millisecond)
	r.EndSpan("init/total", nil)
	r.Event("ignored", CategoryFrontend, nil)

	rows := r.Summary()
	require.Len(t, rows, 2)
	assert.Equal(t, SummaryRow{Label: "seek/hls-total", Category: CategoryFrontend, AvgMs: 200, Count: 2, MaxMs: 300}, rows[0])
	assert.Equal(t, "init/total", rows[1].Label)
}

func TestSubscribe(t *testing.T) {
	r, _ := newTestReporter()
	calls := 0
	unsubscribe := r.Subscribe(func() { calls++ })

	r.Event("x", CategoryFrontend, nil)
	unsubscribe()
	r.Event("y", CategoryFrontend, nil)
	assert.Equal(t, 1, calls)
}

func TestExportToTracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	r, clk := newTestReporter(WithTracer(tp.Tracer("test")))
	r.Reset(PlaybackAttributes("42", "pbs-1", "remux")...)

	r.StartSpan("seek/hls-api", CategoryNetwork, nil)
	clk.Advance(120 * time.Millisecond)
	r.EndSpan("seek/hls-api", Meta{"reused": true})

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "seek/hls-api", ended[0].Name())
	assert.Equal(t, 120*time.Millisecond, ended[0].EndTime().Sub(ended[0].StartTime()))

	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "network", attrs[CategoryKey])
	assert.Equal(t, "pbs-1", attrs[PlaybackSessionIDKey])
	assert.Equal(t, "true", attrs["perf.meta.reused"])
}

func TestExportWhileResetting(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	r, _ := newTestReporter(WithTracer(tp.Tracer("test")))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			r.Reset(PlaybackAttributes(fmt.Sprint(i), "pbs", "direct")...)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			r.Event("playback/tick", CategoryFrontend, nil)
		}
	}()
	wg.Wait()

	ended := recorder.Ended()
	require.Len(t, ended, 200)
	for _, span := range ended {
		var labels int
		for _, kv := range span.Attributes() {
			if kv.Key == LabelKey {
				labels++
			}
		}
		assert.Equal(t, 1, labels)
	}
}

func TestWriteSnapshot(t *testing.T) {
	r, clk := newTestReporter()
	r.StartSpan("init/total", CategoryFrontend, nil)
	clk.Advance(10 * time.Millisecond)
	r.EndSpan("init/total", nil)

	path := filepath.Join(t.TempDir(), "perf.json")
	require.NoError(t, r.WriteSnapshot(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Len(t, snap.Entries, 1)
	require.Len(t, snap.Summary, 1)
	assert.InDelta(t, 10, snap.Summary[0].AvgMs, 0.001)
}
