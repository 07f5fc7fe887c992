package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShutdownRunsHooksInReverseOrder(t *testing.T) {
	m := New(time.Second, nil)

	var order []string
	for _, name := range []string{"logger", "tracer", "http"} {
		name := name
		m.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	m.Shutdown()

	want := []string{"http", "tracer", "logger"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("hook %d = %s, want %s", i, order[i], want[i])
		}
	}

	select {
	case <-m.Done():
	default:
		t.Error("Done() not closed after Shutdown")
	}
}

func TestShutdownContinuesAfterError(t *testing.T) {
	m := New(time.Second, nil)
	ran := false
	m.Register("first", func(ctx context.Context) error { ran = true; return nil })
	m.Register("failing", func(ctx context.Context) error { return errors.New("boom") })

	m.Shutdown()
	if !ran {
		t.Error("hook after a failing hook did not run")
	}
}

func TestShutdownRunsOnce(t *testing.T) {
	m := New(time.Second, nil)
	calls := 0
	m.Register("count", func(ctx context.Context) error { calls++; return nil })

	m.Shutdown()
	m.Shutdown()
	if calls != 1 {
		t.Errorf("hook ran %d times, want 1", calls)
	}
}

func TestHooksShareDeadline(t *testing.T) {
	m := New(50*time.Millisecond, nil)
	var err error
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		err = ctx.Err()
		return err
	})

	m.Shutdown()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("hook ctx err = %v, want deadline exceeded", err)
	}
}

func TestWaitReturnsOnContext(t *testing.T) {
	m := New(time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		m.Wait(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after context cancel")
	}
}
