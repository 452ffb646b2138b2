package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"gridalert/internal/config"
)

type recordingSender struct {
	mu      sync.Mutex
	notices []Notice
	gate    chan struct{}
}

func (s *recordingSender) Channel() string { return "recording" }

func (s *recordingSender) Send(_ context.Context, notice Notice) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice)
	return nil
}

func (s *recordingSender) delivered() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notice, len(s.notices))
	copy(out, s.notices)
	return out
}

func newQueueUnderTest(sender ChannelSender, depth int) *Queue {
	dispatcher := &Dispatcher{
		senders: []ChannelSender{sender},
		logger:  testLogger(),
	}
	return NewQueue(dispatcher, depth, testLogger())
}

func TestQueueDeliversInBackground(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	queue := newQueueUnderTest(sender, 8)
	defer func() { _ = queue.Close() }()

	queue.Dispatch(context.Background(), Notice{Action: ActionRaised, AlertID: 1})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := sender.delivered(); len(got) == 1 {
			if got[0].Action != ActionRaised || got[0].AlertID != 1 {
				t.Fatalf("unexpected delivered notice: %+v", got[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("notice never delivered")
}

func TestQueueDispatchDoesNotWaitForSlowChannels(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	sender := &recordingSender{gate: gate}
	queue := newQueueUnderTest(sender, 8)

	// The sender is stuck until the gate opens; enqueueing must still return
	// immediately.
	start := time.Now()
	queue.Dispatch(context.Background(), Notice{Action: ActionRaised, AlertID: 1})
	queue.Dispatch(context.Background(), Notice{Action: ActionAcknowledged, AlertID: 1})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("dispatch blocked on a slow channel for %s", elapsed)
	}

	close(gate)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := len(sender.delivered()); got != 2 {
		t.Fatalf("expected both notices delivered after the channel recovered, got %d", got)
	}
}

func TestQueueCloseDrainsPendingNotices(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	queue := newQueueUnderTest(sender, 8)

	for i := int64(1); i <= 5; i++ {
		queue.Dispatch(context.Background(), Notice{Action: ActionRaised, AlertID: i})
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := len(sender.delivered()); got != 5 {
		t.Fatalf("expected all queued notices delivered on close, got %d", got)
	}

	// Late dispatches after close are dropped, never panic.
	queue.Dispatch(context.Background(), Notice{Action: ActionRaised, AlertID: 99})
	if err := queue.Close(); err != nil {
		t.Fatalf("repeated close: %v", err)
	}
	if got := len(sender.delivered()); got != 5 {
		t.Fatalf("dispatch after close must be dropped, got %d deliveries", got)
	}
}

func TestQueueDropsWhenBufferIsFull(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	sender := &recordingSender{gate: gate}
	queue := newQueueUnderTest(sender, 1)

	// One notice can sit in the worker and one in the buffer; the rest must be
	// dropped without blocking.
	for i := int64(1); i <= 6; i++ {
		queue.Dispatch(context.Background(), Notice{Action: ActionRaised, AlertID: i})
	}

	close(gate)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := len(sender.delivered()); got > 2 {
		t.Fatalf("expected overflow to be dropped, got %d deliveries", got)
	}
}

func TestQueueRejectsNothingWhenRetryIsConfigured(t *testing.T) {
	t.Parallel()

	sender := &countingSender{failUpTo: 2}
	dispatcher := &Dispatcher{
		senders: []ChannelSender{sender},
		retry:   config.RetryConfig{Enabled: true, InitialMS: 1, MaxAttempts: 5},
		logger:  testLogger(),
	}
	queue := NewQueue(dispatcher, 8, testLogger())

	queue.Dispatch(context.Background(), Notice{Action: ActionRaised})
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := sender.calls.Load(); got != 3 {
		t.Fatalf("expected the retry policy to run behind the queue, got %d attempts", got)
	}
}
