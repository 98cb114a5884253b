package main

import (
	"sync"
	"testing"
)

func TestTrySendOverflowClosesOnce(t *testing.T) {
	c := &Client{
		send: make(chan any, 1),
		id:   "a",
	}

	c.trySend("first")  // fills the buffer
	c.trySend("second") // overflow drops the client

	if msg, ok := <-c.send; !ok || msg != "first" {
		t.Fatalf("buffered message = %v, ok %t", msg, ok)
	}
	if _, ok := <-c.send; ok {
		t.Fatal("send channel not closed after overflow")
	}

	// Neither of these may panic on the closed channel.
	c.trySend("third")
	c.close()
}

func TestTrySendCloseRace(t *testing.T) {
	// Unbuffered channel with no reader: every send overflows, so one
	// goroutine closes the channel while the others are still queueing.
	c := &Client{
		send: make(chan any),
		id:   "a",
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.trySend(j)
			}
		}()
	}
	wg.Wait()

	if _, ok := <-c.send; ok {
		t.Fatal("send channel not closed after overflow")
	}
}
