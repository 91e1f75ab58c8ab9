package orderbook

import "github.com/mn-exchange/engine/internal/money"

// maxPriceHeap and minPriceHeap give O(1) best-price peek and O(log L) level
// insertion, grounded directly on the teacher's container/heap-based
// MaxPriceHeap/MinPriceHeap in pkg/app/core/orderbook/heap-adjacent code
// (orderbook.go uses the same heap.Interface pattern for bid/ask tracking).
type maxPriceHeap []money.Price

func (h maxPriceHeap) Len() int            { return len(h) }
func (h maxPriceHeap) Less(i, j int) bool  { return h[i] > h[j] }
func (h maxPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxPriceHeap) Push(x interface{}) { *h = append(*h, x.(money.Price)) }
func (h *maxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
func (h maxPriceHeap) Peek() money.Price { return h[0] }

type minPriceHeap []money.Price

func (h minPriceHeap) Len() int            { return len(h) }
func (h minPriceHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h minPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minPriceHeap) Push(x interface{}) { *h = append(*h, x.(money.Price)) }
func (h *minPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
func (h minPriceHeap) Peek() money.Price { return h[0] }
