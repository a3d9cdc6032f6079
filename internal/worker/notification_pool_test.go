package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/helpline/escalation-service/internal/domain"
	"github.com/helpline/escalation-service/internal/notify"
	"github.com/helpline/escalation-service/internal/observability"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []int64
	block chan struct{}
	err   error
	panic bool
}

func (n *recordingNotifier) Channel() string { return "test" }

func (n *recordingNotifier) Notify(ctx context.Context, req domain.HelpRequest, _ domain.Supervisor) error {
	if n.block != nil {
		select {
		case <-n.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n.panic {
		panic("exploded")
	}
	n.mu.Lock()
	n.calls = append(n.calls, req.ID)
	n.mu.Unlock()
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type stalledDialer struct{ release chan struct{} }

func (d *stalledDialer) DialAndSend(...*gomail.Message) error {
	if d.release != nil {
		<-d.release
	}
	return nil
}

func job(id int64) Job {
	return Job{Request: domain.HelpRequest{ID: id}, Supervisor: domain.Supervisor{ID: "sup"}, Level: 1}
}

func TestPoolDeliversAndRecordsHistory(t *testing.T) {
	n := &recordingNotifier{}
	history := notify.NewHistory(10)
	pool := NewNotificationPool(n, history, observability.NewMetrics(), zap.NewNop(), PoolOptions{Workers: 2, QueueSize: 10})
	pool.Start()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, pool.Submit(job(i)))
	}
	require.NoError(t, pool.Stop(context.Background()))

	assert.Equal(t, 5, n.count())
	recent := history.Recent(0)
	require.Len(t, recent, 5)
	for _, rec := range recent {
		assert.True(t, rec.Delivered)
		assert.Equal(t, "test", rec.Channel)
	}
}

func TestPoolRecordsFailures(t *testing.T) {
	n := &recordingNotifier{err: errors.New("unreachable")}
	history := notify.NewHistory(10)
	pool := NewNotificationPool(n, history, nil, nil, PoolOptions{Workers: 1})
	pool.Start()
	require.NoError(t, pool.Submit(job(1)))
	require.NoError(t, pool.Stop(context.Background()))

	recent := history.Recent(1)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Delivered)
	assert.Contains(t, recent[0].Error, "unreachable")
}

func TestPoolRecoversFromPanics(t *testing.T) {
	n := &recordingNotifier{panic: true}
	history := notify.NewHistory(10)
	pool := NewNotificationPool(n, history, nil, nil, PoolOptions{Workers: 1})
	pool.Start()
	require.NoError(t, pool.Submit(job(1)))
	require.NoError(t, pool.Submit(job(2)))
	require.NoError(t, pool.Stop(context.Background()))
	assert.Len(t, history.Recent(0), 2)
}

func TestPoolSubmitIsNonBlocking(t *testing.T) {
	n := &recordingNotifier{block: make(chan struct{})}
	pool := NewNotificationPool(n, nil, nil, nil, PoolOptions{Workers: 1, QueueSize: 1})
	pool.Start()

	// first job occupies the worker, second fills the queue
	require.NoError(t, pool.Submit(job(1)))
	require.Eventually(t, func() bool { return len(pool.queue) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, pool.Submit(job(2)))
	assert.ErrorIs(t, pool.Submit(job(3)), ErrQueueFull)

	close(n.block)
	require.NoError(t, pool.Stop(context.Background()))
	assert.ErrorIs(t, pool.Submit(job(4)), ErrPoolClosed)
}

func TestPoolStopHonoursDeadline(t *testing.T) {
	n := &recordingNotifier{block: make(chan struct{})}
	pool := NewNotificationPool(n, nil, nil, nil, PoolOptions{Workers: 1, QueueSize: 4, Timeout: time.Minute})
	pool.Start()
	require.NoError(t, pool.Submit(job(1)))
	require.NoError(t, pool.Submit(job(2)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Stop(ctx), context.DeadlineExceeded)
	assert.Zero(t, n.count())
}

// stubbornNotifier never looks at its context.
type stubbornNotifier struct{ release chan struct{} }

func (n *stubbornNotifier) Channel() string { return "stubborn" }

func (n *stubbornNotifier) Notify(context.Context, domain.HelpRequest, domain.Supervisor) error {
	<-n.release
	return nil
}

func TestPoolBoundsDeliveriesThatIgnoreContext(t *testing.T) {
	n := &stubbornNotifier{release: make(chan struct{})}
	t.Cleanup(func() { close(n.release) })
	history := notify.NewHistory(10)
	pool := NewNotificationPool(n, history, nil, nil, PoolOptions{Workers: 1, Timeout: 50 * time.Millisecond})
	pool.Start()
	require.NoError(t, pool.Submit(job(1)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	started := time.Now()
	require.NoError(t, pool.Stop(ctx))
	assert.Less(t, time.Since(started), 500*time.Millisecond)

	recent := history.Recent(0)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Delivered)
	assert.Contains(t, recent[0].Error, "delivery abandoned")
}

func TestPoolStopReturnsAtDeadlineWithStalledSMTP(t *testing.T) {
	dialer := &stalledDialer{release: make(chan struct{})}
	t.Cleanup(func() { close(dialer.release) })
	email := notify.NewEmailNotifierWithDialer(dialer, "helpline@example.com")
	pool := NewNotificationPool(email, nil, nil, nil, PoolOptions{Workers: 1, Timeout: time.Minute})
	pool.Start()
	require.NoError(t, pool.Submit(Job{Request: domain.HelpRequest{ID: 1}, Supervisor: domain.Supervisor{ID: "sup", Email: "sup@example.com"}}))
	require.Eventually(t, func() bool { return len(pool.queue) == 0 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	started := time.Now()
	assert.ErrorIs(t, pool.Stop(ctx), context.DeadlineExceeded)
	assert.Less(t, time.Since(started), time.Second)
}

func TestPoolDoesNotMarkSkippedChannelsDelivered(t *testing.T) {
	email := notify.NewEmailNotifierWithDialer(&stalledDialer{}, "helpline@example.com")
	history := notify.NewHistory(10)
	pool := NewNotificationPool(email, history, nil, nil, PoolOptions{Workers: 1})
	pool.Start()
	require.NoError(t, pool.Submit(job(7)))
	require.NoError(t, pool.Stop(context.Background()))

	recent := history.Recent(0)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Delivered)
	assert.Contains(t, recent[0].Error, "no email address")
}
