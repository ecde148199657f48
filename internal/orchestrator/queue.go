package orchestrator

import (
	"container/heap"
	"time"

	"voicebridge/internal/call"
)

// QueueEntry is a call admitted but not yet executing.
type QueueEntry struct {
	CallID      string    `json:"call_id"`
	FromPhone   string    `json:"from_phone,omitempty"`
	ToPhone     string    `json:"to_phone"`
	Mode        call.Mode `json:"call_mode"`
	Priority    int       `json:"priority"`
	EnqueueTime time.Time `json:"enqueue_time"`

	seq uint64 // monotonically increasing, breaks priority ties FIFO
}

// callQueue is a max-heap on priority; equal priorities pop in enqueue
// order. Implements container/heap.
type callQueue []*QueueEntry

func (q callQueue) Len() int { return len(q) }

func (q callQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q callQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *callQueue) Push(x any) { *q = append(*q, x.(*QueueEntry)) }

func (q *callQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// removeByCallID deletes an entry in place, preserving the heap
// invariant. Returns true when the entry was present.
func (q *callQueue) removeByCallID(callID string) bool {
	for i, e := range *q {
		if e.CallID == callID {
			heap.Remove(q, i)
			return true
		}
	}
	return false
}

// find returns the queued entry for callID, if any.
func (q callQueue) find(callID string) (*QueueEntry, bool) {
	for _, e := range q {
		if e.CallID == callID {
			return e, true
		}
	}
	return nil, false
}
