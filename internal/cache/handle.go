package cache

import (
	"sync/atomic"
	"weak"

	"github.com/aweris/fedfs/internal/merge"
)

// handle is a reference to a cached node that may be reclaimed. Once Load
// reports false it never reports true again.
type handle interface {
	Load() (*merge.FederatedNode, bool)
	release()
}

// strongHandle keeps its node alive until released, which happens when the
// bounded LRU evicts the entry.
type strongHandle struct {
	node atomic.Pointer[merge.FederatedNode]
}

func newStrongHandle(n *merge.FederatedNode) *strongHandle {
	h := &strongHandle{}
	h.node.Store(n)
	return h
}

func (h *strongHandle) Load() (*merge.FederatedNode, bool) {
	n := h.node.Load()
	return n, n != nil
}

func (h *strongHandle) release() { h.node.Store(nil) }

// weakHandle lets the garbage collector reclaim the node once nothing outside
// the cache references it.
type weakHandle struct {
	ptr weak.Pointer[merge.FederatedNode]
}

func newWeakHandle(n *merge.FederatedNode) *weakHandle {
	return &weakHandle{ptr: weak.Make(n)}
}

func (h *weakHandle) Load() (*merge.FederatedNode, bool) {
	n := h.ptr.Value()
	return n, n != nil
}

func (h *weakHandle) release() {}
