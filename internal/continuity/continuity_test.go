// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package continuity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/vodplayer/internal/backend"
	"github.com/ManuGH/vodplayer/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAPI struct {
	mu        sync.Mutex
	progress  []int64
	completed []string
}

func (f *fakeAPI) ReportProgress(_ context.Context, _ string, positionMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, positionMs)
	return nil
}

func (f *fakeAPI) MarkCompleted(_ context.Context, contentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, contentID)
	return nil
}

func (f *fakeAPI) snapshot() ([]int64, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.progress...), append([]string(nil), f.completed...)
}

func newTracker(api API, clk clock.Clock, onNext func(backend.Episode)) *Tracker {
	return NewTracker(api, Config{Clock: clk, OnUpNext: onNext})
}

func TestTimeUpdate_ReportsEveryInterval(t *testing.T) {
	api := &fakeAPI{}
	clk := clock.NewMock(time.Unix(0, 0))
	tr := newTracker(api, clk, nil)
	tr.Begin("m1", 3600)

	_, ok := tr.TimeUpdate(5, false)
	assert.False(t, ok, "interval not elapsed")

	clk.Advance(11 * time.Second)
	_, ok = tr.TimeUpdate(16, true)
	assert.False(t, ok, "never reports while seeking")

	pos, ok := tr.TimeUpdate(16.25, false)
	require.True(t, ok)
	assert.Equal(t, int64(16250), pos)

	_, ok = tr.TimeUpdate(17, false)
	assert.False(t, ok)

	tr.Wait()
	progress, _ := api.snapshot()
	assert.Equal(t, []int64{16250}, progress)
}

func TestTimeUpdate_SkipsZeroPosition(t *testing.T) {
	api := &fakeAPI{}
	clk := clock.NewMock(time.Unix(0, 0))
	tr := newTracker(api, clk, nil)
	tr.Begin("m1", 0)

	clk.Advance(11 * time.Second)
	_, ok := tr.TimeUpdate(0, false)
	assert.False(t, ok)
	tr.Wait()
	progress, _ := api.snapshot()
	assert.Empty(t, progress)
}

func TestEnded_MarksCompletedAndCountsDown(t *testing.T) {
	api := &fakeAPI{}
	clk := clock.NewMock(time.Unix(0, 0))
	var got []backend.Episode
	tr := newTracker(api, clk, func(ep backend.Episode) { got = append(got, ep) })
	tr.Begin("e1", 1200)
	tr.SetNext(&backend.Episode{MediaItemID: "e2"})

	tr.Ended()
	state := tr.State()
	assert.True(t, state.Active)
	assert.Equal(t, DefaultCountdown, state.Remaining)

	clk.Advance(4 * time.Second)
	assert.Equal(t, 6*time.Second, tr.State().Remaining)
	assert.Empty(t, got)

	clk.Advance(6 * time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, "e2", got[0].MediaItemID)
	assert.False(t, tr.State().Active)
	assert.Zero(t, clk.Pending())

	tr.Wait()
	_, completed := api.snapshot()
	assert.Equal(t, []string{"e1"}, completed)
}

func TestCountdownStartsNearEnd(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	tr := newTracker(&fakeAPI{}, clk, nil)
	tr.Begin("e1", 1200)
	tr.SetNext(&backend.Episode{MediaItemID: "e2"})

	tr.TimeUpdate(1100, false)
	assert.False(t, tr.State().Active)
	tr.TimeUpdate(1171, false)
	assert.True(t, tr.State().Active)
	tr.Stop()
	tr.Wait()
}

func TestCancel_SuppressesCountdown(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	fired := 0
	tr := newTracker(&fakeAPI{}, clk, func(backend.Episode) { fired++ })
	tr.Begin("e1", 1200)
	tr.SetNext(&backend.Episode{MediaItemID: "e2"})

	tr.TimeUpdate(1190, false)
	clk.Advance(3 * time.Second)
	tr.Cancel()
	clk.Advance(20 * time.Second)
	tr.Ended()
	clk.Advance(20 * time.Second)

	assert.Zero(t, fired)
	assert.True(t, tr.State().Cancelled)
	tr.Wait()
}

func TestPlayNow_FiresOnce(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	fired := 0
	tr := newTracker(&fakeAPI{}, clk, func(backend.Episode) { fired++ })
	tr.Begin("e1", 1200)
	tr.SetNext(&backend.Episode{MediaItemID: "e2"})

	tr.Ended()
	tr.PlayNow()
	tr.PlayNow()
	clk.Advance(time.Minute)
	assert.Equal(t, 1, fired)
	tr.Wait()
}

func TestNoNextItemNoCountdown(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	tr := newTracker(&fakeAPI{}, clk, func(backend.Episode) { t.Fatal("unexpected up-next") })
	tr.Begin("movie", 5400)
	tr.Ended()
	tr.PlayNow()
	assert.False(t, tr.State().Active)
	assert.Zero(t, clk.Pending())
	tr.Wait()
}

func TestBeginInvalidatesStaleTick(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	var posted []func()
	fired := 0
	tr := NewTracker(&fakeAPI{}, Config{
		Clock:    clk,
		Post:     func(fn func()) { posted = append(posted, fn) },
		OnUpNext: func(backend.Episode) { fired++ },
	})
	tr.Begin("e1", 100)
	tr.SetNext(&backend.Episode{MediaItemID: "e2"})
	tr.Ended()
	clk.Advance(time.Second)
	require.Len(t, posted, 1)

	tr.Begin("e2", 100)
	tr.SetNext(&backend.Episode{MediaItemID: "e3"})
	posted[0]()
	assert.False(t, tr.State().Active)
	assert.Zero(t, fired)
	tr.Wait()
}
