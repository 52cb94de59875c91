package sync2

import (
	"sync"
	"testing"
	"time"
)

func TestSemaphoreBlocksUntilUp(t *testing.T) {
	s := NewSemaphore(0)

	done := make(chan struct{})
	go func() {
		s.Down()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Down returned before Up was called")
	case <-time.After(20 * time.Millisecond):
	}

	s.Up()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Down did not return after Up")
	}
}

func TestSemaphoreCountingProducerConsumer(t *testing.T) {
	s := NewSemaphore(0)
	const n = 20

	var wg sync.WaitGroup
	wg.Add(1)
	var received int
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.Down()
			received++
		}
	}()

	for i := 0; i < n; i++ {
		s.Up()
	}
	wg.Wait()

	if received != n {
		t.Fatalf("received = %d, want %d", received, n)
	}
}
