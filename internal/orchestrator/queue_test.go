package orchestrator

import (
	"container/heap"
	"fmt"
	"testing"
)

func pushEntry(q *callQueue, callID string, priority int, seq uint64) {
	heap.Push(q, &QueueEntry{CallID: callID, Priority: priority, seq: seq})
}

func TestCallQueue_PopsByPriorityThenFIFO(t *testing.T) {
	var q callQueue
	pushEntry(&q, "low-1", 1, 1)
	pushEntry(&q, "high", 5, 2)
	pushEntry(&q, "low-2", 1, 3)
	pushEntry(&q, "mid", 3, 4)

	want := []string{"high", "mid", "low-1", "low-2"}
	for i, id := range want {
		e := heap.Pop(&q).(*QueueEntry)
		if e.CallID != id {
			t.Fatalf("pop %d: got %q, want %q", i, e.CallID, id)
		}
	}
}

func TestCallQueue_RemovePreservesOrdering(t *testing.T) {
	var q callQueue
	for i := 0; i < 6; i++ {
		pushEntry(&q, fmt.Sprintf("c%d", i), i%3, uint64(i))
	}

	if !q.removeByCallID("c2") {
		t.Fatalf("existing entry not removed")
	}
	if q.removeByCallID("c2") {
		t.Fatalf("second removal of the same entry succeeded")
	}

	// Remaining entries still pop in priority/FIFO order.
	var last *QueueEntry
	for q.Len() > 0 {
		e := heap.Pop(&q).(*QueueEntry)
		if last != nil {
			if e.Priority > last.Priority {
				t.Fatalf("heap order broken: %d after %d", e.Priority, last.Priority)
			}
			if e.Priority == last.Priority && e.seq < last.seq {
				t.Fatalf("FIFO order broken within priority %d", e.Priority)
			}
		}
		last = e
	}
}

func TestCallQueue_Find(t *testing.T) {
	var q callQueue
	pushEntry(&q, "a", 1, 1)
	pushEntry(&q, "b", 2, 2)

	if e, ok := q.find("b"); !ok || e.CallID != "b" {
		t.Fatalf("find failed: %v %v", e, ok)
	}
	if _, ok := q.find("missing"); ok {
		t.Fatalf("found a missing entry")
	}
}
