package queue

import (
	"sync"
	"testing"
)

func TestQueueFIFOSingleProducer(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d rejected on open queue", i)
		}
	}
	for i := 0; i < 100; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d reported closed", i)
		}
		if v != i {
			t.Fatalf("expected %d, got %d", i, v)
		}
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	done := make(chan string)
	go func() {
		v, _ := q.Pop()
		done <- v
	}()
	q.Push("hello")
	if got := <-done; got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
}

func TestQueueCloseDrainsPendingItems(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Close()

	if ok := q.Push(3); ok {
		t.Fatal("push should be rejected after close")
	}

	if v, ok := q.Pop(); !ok || v != 1 {
		t.Fatalf("expected (1, true), got (%d, %t)", v, ok)
	}
	if v, ok := q.Pop(); !ok || v != 2 {
		t.Fatalf("expected (2, true), got (%d, %t)", v, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("pop on closed drained queue should report not ok")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := New[int]()
	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	if q.Len() != producers*perProducer {
		t.Fatalf("expected %d items, got %d", producers*perProducer, q.Len())
	}
}
