package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shopassist/watchd/internal/watcher"
)

var now = time.Unix(1700000000, 0).UTC()

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func timePtr(t time.Time) *time.Time { return &t }

type fakeRepo struct {
	due []watcher.Watcher
	err error
}

func (r *fakeRepo) FindDue(context.Context, time.Time, time.Duration, int) ([]watcher.Watcher, error) {
	return r.due, r.err
}

func (r *fakeRepo) Get(context.Context, string) (watcher.Watcher, error) {
	return watcher.Watcher{}, errors.New("not implemented")
}

func (r *fakeRepo) List(context.Context) ([]watcher.Watcher, error) { return nil, nil }

func (r *fakeRepo) RecordOutcome(context.Context, string, watcher.CheckOutcome) error {
	return nil
}

type fakeQueue struct {
	mu    sync.Mutex
	items []watcher.QueueItem
	seen  map[string]bool
	err   error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{seen: make(map[string]bool)}
}

func (q *fakeQueue) EnqueueUnique(_ context.Context, item watcher.QueueItem) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return false, q.err
	}
	if q.seen[item.WatcherID] {
		return false, nil
	}
	q.seen[item.WatcherID] = true
	q.items = append(q.items, item)
	return true, nil
}

func (q *fakeQueue) Dequeue(context.Context) (watcher.QueueItem, error) {
	return watcher.QueueItem{}, errors.New("not implemented")
}

func (q *fakeQueue) Done(string) {}

func (q *fakeQueue) ids() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, it := range q.items {
		out = append(out, it.WatcherID)
	}
	return out
}

func TestPassEnqueuesDueWatchers(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{due: []watcher.Watcher{
		{ID: "never", URL: "https://a.example/p", Interval: 5 * time.Minute, Status: watcher.StatusActive},
		{ID: "overdue", URL: "https://b.example/p", Interval: 5 * time.Minute, Status: watcher.StatusActive,
			LastCheckAt: timePtr(now.Add(-10 * time.Minute))},
		{ID: "fresh", URL: "https://c.example/p", Interval: 5 * time.Minute, Status: watcher.StatusActive,
			LastCheckAt: timePtr(now.Add(-2 * time.Minute))},
	}}
	queue := newFakeQueue()
	s := New(Config{}, repo, queue, fixedClock{now}, zaptest.NewLogger(t))

	s.pass(context.Background())
	require.Equal(t, []string{"never", "overdue"}, queue.ids(),
		"watchers inside their interval are not due yet")
}

func TestPassClampsShortIntervalsToFloor(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{due: []watcher.Watcher{
		{ID: "w1", Interval: 10 * time.Second, Status: watcher.StatusActive,
			LastCheckAt: timePtr(now.Add(-30 * time.Second))},
	}}
	queue := newFakeQueue()
	s := New(Config{IntervalFloor: time.Minute}, repo, queue, fixedClock{now}, zaptest.NewLogger(t))

	s.pass(context.Background())
	require.Empty(t, queue.ids(), "a 10s interval is clamped to the 1m floor")
}

func TestPassSurvivesRepoError(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{err: errors.New("db down")}
	queue := newFakeQueue()
	s := New(Config{}, repo, queue, fixedClock{now}, zaptest.NewLogger(t))

	s.pass(context.Background())
	require.Empty(t, queue.ids())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	queue := newFakeQueue()
	s := New(Config{Tick: 10 * time.Millisecond}, repo, queue, fixedClock{now}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestPriorityShortIntervalsRankHigher(t *testing.T) {
	t.Parallel()

	fast := watcher.Watcher{Interval: time.Minute}
	medium := watcher.Watcher{Interval: 5 * time.Minute}
	slow := watcher.Watcher{Interval: time.Hour}

	pFast := Priority(fast, now)
	pMedium := Priority(medium, now)
	pSlow := Priority(slow, now)
	require.Less(t, pFast, pMedium)
	require.Less(t, pMedium, pSlow)
}

func TestPriorityOverdueBoost(t *testing.T) {
	t.Parallel()

	onTime := watcher.Watcher{Interval: 10 * time.Minute, LastCheckAt: timePtr(now.Add(-10 * time.Minute))}
	overdue := watcher.Watcher{Interval: 10 * time.Minute, LastCheckAt: timePtr(now.Add(-30 * time.Minute))}

	require.Less(t, Priority(overdue, now), Priority(onTime, now))

	// Boost is capped: twice-overdue and ten-times-overdue rank the same.
	veryOverdue := watcher.Watcher{Interval: 10 * time.Minute, LastCheckAt: timePtr(now.Add(-100 * time.Minute))}
	require.Equal(t, Priority(overdue, now), Priority(veryOverdue, now))
}

func TestPriorityErrorsDeprioritize(t *testing.T) {
	t.Parallel()

	healthy := watcher.Watcher{Interval: 5 * time.Minute}
	failing := watcher.Watcher{Interval: 5 * time.Minute, ErrorCount: 4}
	require.Greater(t, Priority(failing, now), Priority(healthy, now))
}

func TestPriorityClamped(t *testing.T) {
	t.Parallel()

	urgent := watcher.Watcher{Interval: time.Minute, LastCheckAt: timePtr(now.Add(-time.Hour))}
	require.GreaterOrEqual(t, Priority(urgent, now), minPriority)

	hopeless := watcher.Watcher{Interval: time.Hour, ErrorCount: 50}
	require.LessOrEqual(t, Priority(hopeless, now), maxPriority)
}
