package dispatch

import (
	"sync"
	"testing"
)

func TestExecLockMutualExclusion(t *testing.T) {
	locks := NewExecLock()

	if !locks.TryAcquire("check") {
		t.Fatal("first acquisition should succeed")
	}
	if locks.TryAcquire("check") {
		t.Fatal("second acquisition while held should fail")
	}
	if !locks.Held("check") {
		t.Fatal("Held should report the flag")
	}
}

func TestExecLockRelease(t *testing.T) {
	locks := NewExecLock()
	locks.TryAcquire("check")
	locks.Release("check")

	if locks.Held("check") {
		t.Fatal("flag should be clear after release")
	}
	if !locks.TryAcquire("check") {
		t.Fatal("reacquisition after release should succeed")
	}
}

func TestExecLockIndependentCommands(t *testing.T) {
	locks := NewExecLock()
	locks.TryAcquire("check")

	if !locks.TryAcquire("list") {
		t.Fatal("different command should not be blocked")
	}
}

func TestExecLockReleaseUnheld(t *testing.T) {
	locks := NewExecLock()
	locks.Release("never-held")
}

func TestExecLockConcurrentAcquire(t *testing.T) {
	locks := NewExecLock()

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if locks.TryAcquire("check") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("exactly one goroutine should win, got %d", count)
	}
}
