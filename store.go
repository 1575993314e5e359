package fedfs

import (
	"github.com/aweris/fedfs/internal/cache"
	"github.com/aweris/fedfs/internal/graph"
	"github.com/aweris/fedfs/internal/merge"
	"github.com/aweris/fedfs/internal/nodestore"
)

// Re-exported from the internal packages for convenience.
type (
	Name     = graph.Name
	Segment  = graph.Segment
	Path     = graph.Path
	Property = graph.Property

	NodeStore    = nodestore.Store
	Node         = nodestore.Node
	NodeSnapshot = nodestore.NodeSnapshot

	FederatedNode     = merge.FederatedNode
	Contribution      = merge.Contribution
	MergePlan         = merge.MergePlan
	MergeOptions      = merge.Options
	PlaceholderPolicy = merge.PlaceholderPolicy

	CachePolicy     = cache.Policy
	BasicPolicy     = cache.BasicPolicy
	CacheStatistics = cache.Statistics
)

const (
	PlaceholderKeep  = merge.PlaceholderKeep
	PlaceholderYield = merge.PlaceholderYield
)

var (
	// Root is the path of the federated root.
	Root = graph.Root
	// RootID is the identity of the federated root node.
	RootID = merge.RootID
)

var (
	NewName          = graph.NewName
	ParseName        = graph.ParseName
	NewSegment       = graph.NewSegment
	ParsePath        = graph.ParsePath
	MustParsePath    = graph.MustParsePath
	NewProperty      = graph.NewProperty
	NewMultiProperty = graph.NewMultiProperty

	NewNodeStore        = nodestore.New
	DefaultMergeOptions = merge.DefaultOptions
	TTLSeconds          = cache.TTLSeconds
)
