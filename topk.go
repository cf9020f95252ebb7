package vecstore

import "container/heap"

// TopK collects matches and keeps only the k best by descending score.
// Push order breaks score ties: of two equal-scoring matches, the one
// pushed first ranks higher, so feeding a deterministic scan produces a
// deterministic result. Not safe for concurrent use.
//
// Backends use TopK instead of sorting every scored record; pushing n
// matches costs O(n log k).
type TopK struct {
	k    int
	seq  int
	heap matchHeap
}

// NewTopK creates a collector keeping the k best matches.
func NewTopK(k int) *TopK {
	return &TopK{k: k}
}

// Push offers a match to the collector.
func (t *TopK) Push(m Match) {
	if t.k <= 0 {
		return
	}

	entry := matchEntry{match: m, seq: t.seq}
	t.seq++

	if t.heap.Len() < t.k {
		heap.Push(&t.heap, entry)
		return
	}

	// The root is the worst kept match; displace it when the new match
	// outranks it.
	if entry.outranks(t.heap.entries[0]) {
		t.heap.entries[0] = entry
		heap.Fix(&t.heap, 0)
	}
}

// Sorted drains the collector and returns the kept matches, best first.
// The returned slice is never nil.
func (t *TopK) Sorted() []Match {
	matches := make([]Match, t.heap.Len())
	for i := len(matches) - 1; i >= 0; i-- {
		matches[i] = heap.Pop(&t.heap).(matchEntry).match
	}
	return matches
}

type matchEntry struct {
	match Match
	seq   int
}

// outranks reports whether e sorts before o in the final result. Score
// decides; the push sequence breaks ties, making the relation a strict
// total order.
func (e matchEntry) outranks(o matchEntry) bool {
	if e.match.Score != o.match.Score {
		return e.match.Score > o.match.Score
	}
	return e.seq < o.seq
}

// matchHeap is a min-heap under outranks: the root is the worst kept
// match.
type matchHeap struct {
	entries []matchEntry
}

func (h *matchHeap) Len() int { return len(h.entries) }

func (h *matchHeap) Less(i, j int) bool {
	return h.entries[j].outranks(h.entries[i])
}

func (h *matchHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

func (h *matchHeap) Push(x any) {
	h.entries = append(h.entries, x.(matchEntry))
}

func (h *matchHeap) Pop() any {
	old := h.entries
	n := len(old)
	entry := old[n-1]
	h.entries = old[:n-1]
	return entry
}
