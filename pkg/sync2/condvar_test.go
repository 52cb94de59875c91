package sync2

import (
	"testing"
	"time"
)

func TestCondvarSignalWakesWaiter(t *testing.T) {
	m := NewSpinMutex()
	c := NewCondvar()

	woken := make(chan struct{})
	m.Lock()
	go func() {
		m.Lock()
		c.Wait(m)
		m.Unlock()
		close(woken)
	}()

	// Give the waiter a chance to register before signaling.
	time.Sleep(20 * time.Millisecond)
	m.Unlock()

	time.Sleep(20 * time.Millisecond)
	c.Signal()

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Signal")
	}
}
