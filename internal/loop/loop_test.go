package loop

import (
	"context"
	"testing"
	"time"
)

func TestManualAdvanceOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var got []string
	m.AfterFunc(30*time.Millisecond, func() { got = append(got, "c") })
	m.AfterFunc(10*time.Millisecond, func() {
		got = append(got, "a")
		m.Post(func() { got = append(got, "a-posted") })
	})
	m.AfterFunc(10*time.Millisecond, func() { got = append(got, "b") })
	stopped := m.AfterFunc(20*time.Millisecond, func() { got = append(got, "never") })
	if !stopped.Stop() {
		t.Fatal("expected Stop to report a pending timer")
	}

	m.Advance(25 * time.Millisecond)
	want := []string{"a", "a-posted", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if m.Pending() != 1 {
		t.Errorf("expected 1 pending timer, got %d", m.Pending())
	}

	m.Advance(5 * time.Millisecond)
	if got[len(got)-1] != "c" {
		t.Errorf("expected c to fire at 30ms, got %v", got)
	}
	if m.Now() != time.Unix(0, 0).Add(30*time.Millisecond) {
		t.Errorf("unexpected virtual time %v", m.Now())
	}
}

func TestManualTimerSeesItsOwnTime(t *testing.T) {
	start := time.Unix(100, 0)
	m := NewManual(start)
	var at time.Time
	m.AfterFunc(40*time.Millisecond, func() { at = m.Now() })
	m.Advance(time.Second)
	if want := start.Add(40 * time.Millisecond); !at.Equal(want) {
		t.Errorf("timer ran at %v, want %v", at, want)
	}
}

func TestQueueRun(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	q.Post(func() {})
	q.Post(func() { close(done) }) // buffer is full, held in overflow

	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted function never ran")
	}
	cancel()
	if err := <-errc; err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestQueuePreservesOrderPastBuffer(t *testing.T) {
	q := NewQueue(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const n = 50
	var got []int
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		q.Post(func() { got = append(got, i) })
	}

	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()

	// posts made while the overflow is still draining queue behind it
	q.Post(func() { got = append(got, n) })
	q.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue never drained")
	}
	cancel()
	<-errc

	if len(got) != n+1 {
		t.Fatalf("got %d calls, want %d", len(got), n+1)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("call %d ran as %d: %v", i, v, got)
		}
	}
}
