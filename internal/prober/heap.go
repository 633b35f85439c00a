package prober

import (
	"container/heap"

	"github.com/hfmc/hfmc-go/internal/peer"
)

// probeHeap is a min-heap of peers ordered by epoch, least-recently-probed
// first, so no peer is starved regardless of registration order.
type probeHeap []peer.Peer

func (h probeHeap) Len() int            { return len(h) }
func (h probeHeap) Less(i, j int) bool  { return peer.Less(h[i], h[j]) }
func (h probeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *probeHeap) Push(x interface{}) { *h = append(*h, x.(peer.Peer)) }
func (h *probeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newProbeHeap(peers []peer.Peer) *probeHeap {
	h := make(probeHeap, len(peers))
	copy(h, peers)
	heap.Init(&h)
	return &h
}
