package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/docrender/backend/internal/domain/document"
)

type recordingHandler struct {
	errs      []error
	calls     int
	exhausted int
	lastErr   error
}

func (h *recordingHandler) Handle(_ context.Context, _ Message) error {
	h.calls++
	if h.calls <= len(h.errs) {
		return h.errs[h.calls-1]
	}
	return nil
}

func (h *recordingHandler) OnExhausted(_ context.Context, _ Message, err error) {
	h.exhausted++
	h.lastErr = err
}

func newTestConsumer(h Handler, maxRetries int) *Consumer {
	return &Consumer{
		opts: ConsumerOptions{
			MaxRetries: maxRetries,
			RetryDelay: time.Millisecond,
		},
		handler: h,
		logger:  zap.NewNop(),
	}
}

func testMessage() kafka.Message {
	return kafka.Message{Key: []byte("c-1"), Value: []byte("{}")}
}

func TestConsumer_ProcessSuccess(t *testing.T) {
	h := &recordingHandler{}
	c := newTestConsumer(h, 3)

	assert.True(t, c.process(context.Background(), testMessage()))
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, 0, h.exhausted)
}

func TestConsumer_ProcessRetriesThenSucceeds(t *testing.T) {
	h := &recordingHandler{errs: []error{
		document.NewError(document.ErrKindPoolTimeout, "no capacity", nil),
		document.NewError(document.ErrKindRenderLoad, "load failed", nil),
	}}
	c := newTestConsumer(h, 3)

	assert.True(t, c.process(context.Background(), testMessage()))
	assert.Equal(t, 3, h.calls)
	assert.Equal(t, 0, h.exhausted)
}

func TestConsumer_ProcessExhausts(t *testing.T) {
	fail := document.NewError(document.ErrKindRenderPDF, "print failed", nil)
	h := &recordingHandler{errs: []error{fail, fail, fail, fail, fail}}
	c := newTestConsumer(h, 2)

	// committed even on exhaustion; the message has gone to dead-letter
	assert.True(t, c.process(context.Background(), testMessage()))
	assert.Equal(t, 3, h.calls) // 1 attempt + 2 retries
	assert.Equal(t, 1, h.exhausted)
	assert.Equal(t, document.ErrKindRenderPDF, document.KindOf(h.lastErr))
}

func TestConsumer_ProcessNonRetryableExhaustsImmediately(t *testing.T) {
	h := &recordingHandler{errs: []error{
		document.NewError(document.ErrKindPoolDisposed, "pool is shut down", nil),
	}}
	c := newTestConsumer(h, 5)

	assert.True(t, c.process(context.Background(), testMessage()))
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, 1, h.exhausted)
}

func TestConsumer_ProcessShutdownLeavesUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &recordingHandler{errs: []error{
		document.NewError(document.ErrKindCancelled, "render cancelled", ctx.Err()),
	}}
	c := newTestConsumer(h, 3)

	assert.False(t, c.process(ctx, testMessage()))
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, 0, h.exhausted)
}

// fakeSource scripts a fixed batch of messages and then blocks like an
// idle topic until the context is cancelled.
type fakeSource struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	next      int
	committed []kafka.Message
}

func (f *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.next < len(f.msgs) {
		m := f.msgs[f.next]
		f.next++
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

type handlerFunc func(ctx context.Context, msg Message) error

func (h handlerFunc) Handle(ctx context.Context, msg Message) error { return h(ctx, msg) }

func (h handlerFunc) OnExhausted(context.Context, Message, error) {}

func TestConsumer_RunProcessesPartitionsInParallel(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		{Partition: 0, Offset: 1, Value: []byte("slow")},
		{Partition: 1, Offset: 1, Value: []byte("fast")},
	}}

	release := make(chan struct{})
	var slowDone atomic.Bool
	overlap := make(chan bool, 1)

	c := &Consumer{
		reader: src,
		opts:   ConsumerOptions{MaxRetries: 1, RetryDelay: time.Millisecond, MaxConcurrent: 2},
		handler: handlerFunc(func(_ context.Context, msg Message) error {
			switch string(msg.Value) {
			case "slow":
				<-release
				slowDone.Store(true)
			case "fast":
				// with one worker the slow message would still be holding
				// the loop here
				overlap <- !slowDone.Load()
				close(release)
			}
			return nil
		}),
		logger: zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case got := <-overlap:
		assert.True(t, got, "fast message waited for the slow one")
	case <-time.After(2 * time.Second):
		t.Fatal("second partition never progressed")
	}

	assert.Eventually(t, func() bool { return src.committedCount() == 2 },
		time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestConsumer_RunSamePartitionStaysSequential(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		{Partition: 0, Offset: 1, Value: []byte("a")},
		{Partition: 0, Offset: 2, Value: []byte("b")},
		{Partition: 0, Offset: 3, Value: []byte("c")},
	}}

	var mu sync.Mutex
	var order []string
	var inFlight, maxInFlight int32

	c := &Consumer{
		reader: src,
		opts:   ConsumerOptions{MaxRetries: 1, RetryDelay: time.Millisecond, MaxConcurrent: 4},
		handler: handlerFunc(func(_ context.Context, msg Message) error {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				seen := atomic.LoadInt32(&maxInFlight)
				if cur <= seen || atomic.CompareAndSwapInt32(&maxInFlight, seen, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, string(msg.Value))
			mu.Unlock()
			atomic.AddInt32(&inFlight, -1)
			return nil
		}),
		logger: zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool { return src.committedCount() == 3 },
		2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxInFlight))

	src.mu.Lock()
	defer src.mu.Unlock()
	offsets := make([]int64, 0, len(src.committed))
	for _, m := range src.committed {
		offsets = append(offsets, m.Offset)
	}
	assert.Equal(t, []int64{1, 2, 3}, offsets)
}

func TestConsumer_RunCommitsOnlyTerminalOutcomes(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		{Partition: 0, Offset: 7, Value: []byte("{}")},
	}}

	h := &recordingHandler{errs: []error{
		document.NewError(document.ErrKindPoolTimeout, "no capacity", nil),
	}}
	c := &Consumer{
		reader:  src,
		opts:    ConsumerOptions{MaxRetries: 2, RetryDelay: time.Millisecond, MaxConcurrent: 2},
		handler: h,
		logger:  zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool { return src.committedCount() == 1 },
		time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	assert.Equal(t, 2, h.calls)
	assert.EqualValues(t, 7, src.committed[0].Offset)
}
