package executor

import (
	"context"
	"sync/atomic"

	"github.com/quintal-io/agentdag/types"
)

type outcome struct {
	result map[string]any
	err    error
}

// queueItem is one queued task plus the machinery to hand the outcome
// back to the submitter. resultCh is buffered so the worker never
// blocks on a submitter that gave up.
type queueItem struct {
	task      *types.Task
	ctx       context.Context
	resultCh  chan outcome
	seq       uint64
	index     int
	cancelled atomic.Bool
}

// taskHeap orders items by descending priority; equal priorities are
// served in submission order.
type taskHeap []*queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
