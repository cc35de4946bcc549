package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	c := Fake(epoch)
	if !c.Now().Equal(epoch) {
		t.Fatalf("expected %v, got %v", epoch, c.Now())
	}
	c.Advance(time.Minute)
	if !c.Now().Equal(epoch.Add(time.Minute)) {
		t.Fatalf("expected clock to advance one minute, got %v", c.Now())
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(5 * time.Second)

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		if !got.Equal(epoch.Add(5 * time.Second)) {
			t.Errorf("unexpected fire time %v", got)
		}
	default:
		t.Fatal("expected waiter to fire at deadline")
	}

	if c.PendingCount() != 0 {
		t.Errorf("expected no pending waiters, got %d", c.PendingCount())
	}
}

func TestFakeClockAfterZeroDuration(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("expected immediate fire for zero duration")
	}
}

func TestFakeClockWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})

	go func() {
		<-c.After(time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for goroutine to wake")
	}
}
