package scheduler

import (
	"container/heap"

	"twilight-stack/internal/models"
)

type heapEntry struct {
	timer models.ArmedTimer
	seq   uint64
}

// timerHeap implements container/heap.Interface, earliest FireAt first.
// Timers due at the same instant pop in the order they were armed.
type timerHeap []heapEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].timer.FireAt.Equal(h[j].timer.FireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].timer.FireAt.Before(h[j].timer.FireAt)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(heapEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *timerHeap, e heapEntry) {
	heap.Push(h, e)
}

// heapPop removes and returns the earliest entry. Panics if the heap is empty.
func heapPop(h *timerHeap) heapEntry {
	return heap.Pop(h).(heapEntry)
}

// heapRemoveFunc removes every entry whose timer matches and returns how
// many were removed.
func heapRemoveFunc(h *timerHeap, match func(models.ArmedTimer) bool) int {
	kept := (*h)[:0]
	removed := 0
	for _, e := range *h {
		if match(e.timer) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	*h = kept
	if removed > 0 {
		heap.Init(h)
	}
	return removed
}
