package merger

import (
	"container/heap"
)

// Merge unions sorted value lists, one per source, into a single sorted list
// without duplicates. At most limit values are returned; total counts every
// distinct value. limit <= 0 means no limit.
func Merge(sources [][]string, limit int) (merged []string, total int) {
	h := &cursorHeap{}
	for _, values := range sources {
		if len(values) > 0 {
			*h = append(*h, cursor{values: values})
		}
	}
	heap.Init(h)

	merged = make([]string, 0)
	last := ""
	for h.Len() > 0 {
		c := &(*h)[0]
		v := c.values[c.pos]
		if total == 0 || v != last {
			total++
			last = v
			if limit <= 0 || len(merged) < limit {
				merged = append(merged, v)
			}
		}
		c.pos++
		if c.pos == len(c.values) {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return merged, total
}

type cursor struct {
	values []string
	pos    int
}

type cursorHeap []cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	return h[i].values[h[i].pos] < h[j].values[h[j].pos]
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x interface{}) {
	*h = append(*h, x.(cursor))
}

func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
