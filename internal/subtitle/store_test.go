// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package subtitle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ManuGH/vodplayer/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatedFetcher struct {
	mu      sync.Mutex
	gates   map[int64]chan struct{}
	calls   atomic.Int32
	failFor map[int64]error
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: map[int64]chan struct{}{}, failFor: map[int64]error{}}
}

func (f *gatedFetcher) gate(id int64) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[id] = ch
	return ch
}

func (f *gatedFetcher) FetchSubtitle(ctx context.Context, id int64) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	gate := f.gates[id]
	failure := f.failFor[id]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}
	return []byte(fmt.Sprintf("WEBVTT\n\n00:00:00.000 --> 00:01:00.000\ntrack %d\n", id)), nil
}

func TestStoreLoadAndLookup(t *testing.T) {
	s := NewStore(newGatedFetcher(), nil)
	require.NoError(t, s.Load(context.Background(), 7))

	cue, ok := s.ActiveCueAt(30)
	require.True(t, ok)
	assert.Equal(t, "track 7", cue.Text)
	require.NotNil(t, s.Applied())
	assert.EqualValues(t, 7, *s.Applied())
}

func TestStoreNewerLoadSupersedesInFlight(t *testing.T) {
	f := newGatedFetcher()
	f.gate(1) // A never completes on its own
	s := NewStore(f, nil)

	errA := make(chan error, 1)
	go func() { errA <- s.Load(context.Background(), 1) }()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, timeout, tick)

	require.NoError(t, s.Load(context.Background(), 2))
	assert.ErrorIs(t, <-errA, ErrSuperseded)

	cue, ok := s.ActiveCueAt(1)
	require.True(t, ok)
	assert.Equal(t, "track 2", cue.Text, "only the newest track's cues are displayed")
}

func TestStoreLateOlderCompletionIsDiscarded(t *testing.T) {
	f := newGatedFetcher()
	gateA := f.gate(1)
	s := NewStore(f, nil)

	errA := make(chan error, 1)
	go func() { errA <- s.Load(context.Background(), 1) }()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, timeout, tick)
	require.NoError(t, s.Load(context.Background(), 2))
	close(gateA)

	assert.ErrorIs(t, <-errA, ErrSuperseded)
	cue, _ := s.ActiveCueAt(1)
	assert.Equal(t, "track 2", cue.Text)
}

func TestStoreFailedLoadKeepsPreviousCues(t *testing.T) {
	f := newGatedFetcher()
	f.failFor[9] = errors.New("boom")
	s := NewStore(f, nil)

	require.NoError(t, s.Load(context.Background(), 1))
	require.Error(t, s.Load(context.Background(), 9))

	cue, ok := s.ActiveCueAt(1)
	require.True(t, ok)
	assert.Equal(t, "track 1", cue.Text)
}

func TestStoreCancelledLoadKeepsPreviousCues(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore(f, nil)
	require.NoError(t, s.Load(context.Background(), 1))

	f.gate(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.Load(ctx, 2))

	cue, ok := s.ActiveCueAt(1)
	require.True(t, ok)
	assert.Equal(t, "track 1", cue.Text)
}

func TestStoreClearDropsCuesAndInvalidatesLoad(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore(f, nil)
	require.NoError(t, s.Load(context.Background(), 1))

	gate := f.gate(2)
	errB := make(chan error, 1)
	go func() { errB <- s.Load(context.Background(), 2) }()
	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, timeout, tick)

	s.Clear()
	close(gate)
	assert.ErrorIs(t, <-errB, ErrSuperseded)

	_, ok := s.ActiveCueAt(1)
	assert.False(t, ok)
	assert.Nil(t, s.Applied())
	assert.Zero(t, s.Len())
}

func TestStoreUsesParsedCache(t *testing.T) {
	f := newGatedFetcher()
	parsed := cache.NewMemory[CueSet](8, nil)
	s := NewStore(f, parsed)

	require.NoError(t, s.Load(context.Background(), 3))
	require.NoError(t, s.Load(context.Background(), 4))
	require.NoError(t, s.Load(context.Background(), 3))

	assert.EqualValues(t, 2, f.calls.Load())
	cue, _ := s.ActiveCueAt(0)
	assert.Equal(t, "track 3", cue.Text)
}

func TestStoreStartOrderDecidesWinner(t *testing.T) {
	s := NewStore(newGatedFetcher(), nil)

	loadA := s.Start(context.Background(), 1)
	loadB := s.Start(context.Background(), 2)

	require.NoError(t, loadB())
	assert.ErrorIs(t, loadA(), ErrSuperseded)

	cue, ok := s.ActiveCueAt(1)
	require.True(t, ok)
	assert.Equal(t, "track 2", cue.Text)
}
