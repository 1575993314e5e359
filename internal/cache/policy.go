package cache

import (
	"time"

	"github.com/aweris/fedfs/internal/merge"
)

// Policy decides which federated nodes are cached and for how long.
type Policy interface {
	ShouldCache(node *merge.FederatedNode) bool
	// TTL is the lifetime of a cached node. Zero or negative means entries
	// never expire by time.
	TTL() time.Duration
}

// BasicPolicy caches every node accepted by Filter for TimeToLive.
type BasicPolicy struct {
	TimeToLive time.Duration
	// Filter is optional; nil accepts every node.
	Filter func(node *merge.FederatedNode) bool
}

func (p BasicPolicy) ShouldCache(node *merge.FederatedNode) bool {
	if node == nil {
		return false
	}
	return p.Filter == nil || p.Filter(node)
}

func (p BasicPolicy) TTL() time.Duration { return p.TimeToLive }

// TTLSeconds converts a whole number of seconds, the unit used by
// configuration files, into a TTL.
func TTLSeconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}
