// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/vodplayer/internal/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Category groups entries by where the time was spent.
type Category string

const (
	CategoryFrontend Category = "frontend"
	CategoryBackend  Category = "backend"
	CategoryNetwork  Category = "network"
)

// DefaultCapacity bounds retained entries per playback session.
const DefaultCapacity = 200

// Meta is free-form entry metadata. Values are strings or numbers.
type Meta map[string]any

// Entry is a span (Event == false) or a point event. Offsets are milliseconds
// since the reporter's time origin.
type Entry struct {
	Label      string   `json:"label"`
	Category   Category `json:"category"`
	Event      bool     `json:"event,omitempty"`
	StartMs    float64  `json:"start_ms"`
	EndMs      *float64 `json:"end_ms,omitempty"`
	DurationMs *float64 `json:"duration_ms,omitempty"`
	Meta       Meta     `json:"meta,omitempty"`
}

// Completed reports whether a span has been closed.
func (e Entry) Completed() bool {
	return !e.Event && e.DurationMs != nil
}

// SummaryRow aggregates completed spans sharing a label.
type SummaryRow struct {
	Label    string   `json:"label"`
	Category Category `json:"category"`
	AvgMs    float64  `json:"avg_ms"`
	Count    int      `json:"count"`
	MaxMs    float64  `json:"max_ms"`
}

// Reporter is a per-playback-session span/event recorder backed by a ring buffer.
type Reporter struct {
	mu        sync.Mutex
	clk       clock.Clock
	capacity  int
	origin    time.Time
	ring      []*Entry
	next      int
	full      bool
	open      map[string]*Entry
	listeners map[int]func()
	listenSeq int

	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithTracer mirrors every closed span and event to an OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Reporter) { r.tracer = t }
}

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(r *Reporter) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// NewReporter creates a reporter whose time origin is now.
func NewReporter(clk clock.Clock, opts ...Option) *Reporter {
	if clk == nil {
		clk = clock.Real{}
	}
	r := &Reporter{
		clk:       clk,
		capacity:  DefaultCapacity,
		listeners: make(map[int]func()),
	}
	for _, o := range opts {
		o(r)
	}
	r.resetLocked()
	return r
}

func (r *Reporter) resetLocked() {
	r.ring = make([]*Entry, r.capacity)
	r.next = 0
	r.full = false
	r.open = make(map[string]*Entry)
	r.origin = r.clk.Now()
}

// Reset drops all entries and open spans and starts a new time origin.
// attrs are attached to every exported span until the next Reset.
func (r *Reporter) Reset(attrs ...attribute.KeyValue) {
	r.mu.Lock()
	r.resetLocked()
	r.attrs = attrs
	r.mu.Unlock()
	r.notify()
}

func (r *Reporter) sinceOrigin(t time.Time) float64 {
	return float64(t.Sub(r.origin).Microseconds()) / 1000
}

// StartSpan opens a span keyed by label. Starting a label that is already open
// replaces the open span; the earlier entry stays in the buffer unfinished.
func (r *Reporter) StartSpan(label string, category Category, meta Meta) {
	r.mu.Lock()
	e := &Entry{
		Label:    label,
		Category: category,
		StartMs:  r.sinceOrigin(r.clk.Now()),
		Meta:     cloneMeta(meta),
	}
	r.open[label] = e
	r.pushLocked(e)
	r.mu.Unlock()
}

// EndSpan closes the open span for label and returns its duration in milliseconds.
// Unknown labels return 0 and record nothing.
func (r *Reporter) EndSpan(label string, meta Meta) float64 {
	r.mu.Lock()
	e, ok := r.open[label]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	delete(r.open, label)
	now := r.clk.Now()
	end := r.sinceOrigin(now)
	d := end - e.StartMs
	e.EndMs = &end
	e.DurationMs = &d
	if len(meta) > 0 {
		if e.Meta == nil {
			e.Meta = make(Meta, len(meta))
		}
		for k, v := range meta {
			e.Meta[k] = v
		}
	}
	exported := *e
	origin, attrs := r.origin, r.attrs
	r.mu.Unlock()

	r.export(exported, origin, attrs, now)
	r.notify()
	return d
}

// Event records a point-in-time entry.
func (r *Reporter) Event(label string, category Category, meta Meta) {
	r.mu.Lock()
	now := r.clk.Now()
	e := &Entry{
		Label:    label,
		Category: category,
		Event:    true,
		StartMs:  r.sinceOrigin(now),
		Meta:     cloneMeta(meta),
	}
	r.pushLocked(e)
	exported := *e
	origin, attrs := r.origin, r.attrs
	r.mu.Unlock()

	r.export(exported, origin, attrs, now)
	r.notify()
}

// IngestBackendTiming expands a server timing breakdown into backend events
// labelled "<operation>/<key>" with the rounded milliseconds as meta "ms".
func (r *Reporter) IngestBackendTiming(operation string, timingMs map[string]float64) {
	keys := make([]string, 0, len(timingMs))
	for k := range timingMs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Event(operation+"/"+k, CategoryBackend, Meta{"ms": math.Round(timingMs[k])})
	}
}

func (r *Reporter) pushLocked(e *Entry) {
	r.ring[r.next] = e
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns a copy of all retained entries, most recent first.
func (r *Reporter) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entriesLocked()
}

func (r *Reporter) entriesLocked() []Entry {
	n := r.next
	if r.full {
		n = r.capacity
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + r.capacity) % r.capacity
		out = append(out, copyEntry(r.ring[idx]))
	}
	return out
}

// Spans returns completed spans, most recent first.
func (r *Reporter) Spans() []Entry {
	all := r.Entries()
	out := all[:0]
	for _, e := range all {
		if e.Completed() {
			out = append(out, e)
		}
	}
	return out
}

// Summary groups completed spans by label in first-seen order.
func (r *Reporter) Summary() []SummaryRow {
	entries := r.Entries()
	type acc struct {
		row   SummaryRow
		total float64
	}
	groups := make(map[string]*acc)
	var order []string
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.Completed() {
			continue
		}
		g, ok := groups[e.Label]
		if !ok {
			g = &acc{row: SummaryRow{Label: e.Label, Category: e.Category}}
			groups[e.Label] = g
			order = append(order, e.Label)
		}
		g.total += *e.DurationMs
		g.row.Count++
		g.row.MaxMs = math.Max(g.row.MaxMs, *e.DurationMs)
	}
	rows := make([]SummaryRow, 0, len(order))
	for _, label := range order {
		g := groups[label]
		g.row.AvgMs = math.Round(g.total / float64(g.row.Count))
		g.row.MaxMs = math.Round(g.row.MaxMs)
		rows = append(rows, g.row)
	}
	return rows
}

// Subscribe registers fn to run after every change. The returned func unsubscribes.
func (r *Reporter) Subscribe(fn func()) func() {
	r.mu.Lock()
	r.listenSeq++
	id := r.listenSeq
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Reporter) notify() {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// export sends e to the tracer. origin and attrs are the values read with e
// under the lock; Reset replaces the attrs slice and never mutates it.
func (r *Reporter) export(e Entry, origin time.Time, attrs []attribute.KeyValue, now time.Time) {
	if r.tracer == nil {
		return
	}
	start := origin.Add(time.Duration(e.StartMs * float64(time.Millisecond)))
	all := append([]attribute.KeyValue{
		attribute.String(LabelKey, e.Label),
		attribute.String(CategoryKey, string(e.Category)),
	}, attrs...)
	all = append(all, metaAttributes(e.Meta)...)

	_, span := r.tracer.Start(context.Background(), e.Label,
		trace.WithTimestamp(start),
		trace.WithAttributes(all...),
	)
	span.End(trace.WithTimestamp(now))
}

func cloneMeta(m Meta) Meta {
	if len(m) == 0 {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyEntry(e *Entry) Entry {
	c := *e
	c.Meta = cloneMeta(e.Meta)
	if e.EndMs != nil {
		v := *e.EndMs
		c.EndMs = &v
	}
	if e.DurationMs != nil {
		v := *e.DurationMs
		c.DurationMs = &v
	}
	return c
}
