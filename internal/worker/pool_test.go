package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shopassist/watchd/internal/processor"
	qmemory "github.com/shopassist/watchd/internal/queue/memory"
	smemory "github.com/shopassist/watchd/internal/storage/memory"
	"github.com/shopassist/watchd/internal/watcher"
)

type fakeChecker struct {
	mu      sync.Mutex
	checked []string
	err     error
}

func (c *fakeChecker) Check(_ context.Context, w watcher.Watcher) (processor.CheckResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = append(c.checked, w.ID)
	if c.err != nil {
		return processor.CheckResult{Outcome: processor.OutcomeFetchFailed}, c.err
	}
	return processor.CheckResult{Outcome: processor.OutcomeSuccess}, nil
}

func (c *fakeChecker) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.checked))
	copy(out, c.checked)
	return out
}

func TestPoolProcessesQueuedItems(t *testing.T) {
	t.Parallel()

	repo := smemory.NewWatcherStore()
	queue := qmemory.NewQueue(16)
	checker := &fakeChecker{}

	for _, id := range []string{"w1", "w2", "w3"} {
		repo.Put(watcher.Watcher{ID: id, URL: "https://shop.example.com/p/" + id, Status: watcher.StatusActive})
		ok, err := queue.EnqueueUnique(context.Background(), watcher.QueueItem{WatcherID: id})
		require.NoError(t, err)
		require.True(t, ok)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(Config{Workers: 3}, queue, repo, checker, zaptest.NewLogger(t)).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(checker.ids()) == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not shut down")
	}
}

func TestPoolReleasesReservationAfterCheck(t *testing.T) {
	t.Parallel()

	repo := smemory.NewWatcherStore()
	repo.Put(watcher.Watcher{ID: "w1", Status: watcher.StatusActive})
	queue := qmemory.NewQueue(16)
	checker := &fakeChecker{}

	ok, err := queue.EnqueueUnique(context.Background(), watcher.QueueItem{WatcherID: "w1"})
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go New(Config{Workers: 1}, queue, repo, checker, zaptest.NewLogger(t)).Run(ctx)

	require.Eventually(t, func() bool {
		ok, err := queue.EnqueueUnique(context.Background(), watcher.QueueItem{WatcherID: "w1"})
		return err == nil && ok
	}, time.Second, 10*time.Millisecond, "reservation must clear once the check completes")
}

func TestPoolSkipsUnknownWatcher(t *testing.T) {
	t.Parallel()

	repo := smemory.NewWatcherStore()
	queue := qmemory.NewQueue(16)
	checker := &fakeChecker{}

	ok, err := queue.EnqueueUnique(context.Background(), watcher.QueueItem{WatcherID: "ghost"})
	require.NoError(t, err)
	require.True(t, ok)

	repo.Put(watcher.Watcher{ID: "w1", Status: watcher.StatusActive})
	ok, err = queue.EnqueueUnique(context.Background(), watcher.QueueItem{WatcherID: "w1"})
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go New(Config{Workers: 1}, queue, repo, checker, zaptest.NewLogger(t)).Run(ctx)

	require.Eventually(t, func() bool {
		ids := checker.ids()
		return len(ids) == 1 && ids[0] == "w1"
	}, time.Second, 10*time.Millisecond, "deleted watcher is dropped, later items still flow")
}

func TestPoolKeepsRunningAfterCheckError(t *testing.T) {
	t.Parallel()

	repo := smemory.NewWatcherStore()
	queue := qmemory.NewQueue(16)
	checker := &fakeChecker{err: errors.New("fetch blew up")}

	for _, id := range []string{"w1", "w2"} {
		repo.Put(watcher.Watcher{ID: id, Status: watcher.StatusActive})
		ok, err := queue.EnqueueUnique(context.Background(), watcher.QueueItem{WatcherID: id})
		require.NoError(t, err)
		require.True(t, ok)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go New(Config{Workers: 1}, queue, repo, checker, zaptest.NewLogger(t)).Run(ctx)

	require.Eventually(t, func() bool {
		return len(checker.ids()) == 2
	}, time.Second, 10*time.Millisecond)
}
