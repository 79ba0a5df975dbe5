package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type testLogger struct{}

func (testLogger) Infof(string, ...any)  {}
func (testLogger) Errorf(string, ...any) {}

func TestScheduleAtFires(t *testing.T) {
	s := New(time.Second, testLogger{})
	defer s.Stop()

	done := make(chan int64, 1)
	s.ScheduleAt(10*time.Millisecond, 42, func(ctx context.Context, orderID int64) {
		done <- orderID
	})

	select {
	case id := <-done:
		if id != 42 {
			t.Fatalf("orderID = %d, want 42", id)
		}
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestStopCancelsPendingTimers(t *testing.T) {
	s := New(time.Second, testLogger{})

	var fired atomic.Int32
	s.ScheduleAt(50*time.Millisecond, 1, func(ctx context.Context, orderID int64) {
		fired.Add(1)
	})
	s.Stop()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("stopped scheduler must not run callbacks")
	}
}

func TestCallbackContextCarriesTimeout(t *testing.T) {
	s := New(time.Second, testLogger{})
	defer s.Stop()

	done := make(chan bool, 1)
	s.ScheduleAt(time.Millisecond, 1, func(ctx context.Context, orderID int64) {
		_, ok := ctx.Deadline()
		done <- ok
	})

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("callback context must carry a deadline")
		}
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}
