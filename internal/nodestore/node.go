package nodestore

import (
	"github.com/aweris/fedfs/internal/graph"
	"github.com/google/uuid"
)

// Node is a single entry of a Store. Nodes form a tree: every node except
// the root has exactly one parent, and children are kept in order.
//
// All fields are guarded by the owning store's lock; use the accessor
// methods rather than holding on to returned slices.
type Node struct {
	id    uuid.UUID
	name  graph.Name
	index int

	parent     *Node
	children   []*Node
	properties map[graph.Name]graph.Property

	store *Store
}

func newNode(s *Store, id uuid.UUID, name graph.Name) *Node {
	return &Node{
		id:         id,
		name:       name,
		properties: make(map[graph.Name]graph.Property),
		store:      s,
	}
}

// ID returns the identifier assigned at creation. It never changes.
func (n *Node) ID() uuid.UUID {
	return n.id
}

// Name returns the node name.
func (n *Node) Name() graph.Name {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return n.name
}

// Segment returns the node's name together with its current
// same-name-sibling index.
func (n *Node) Segment() graph.Segment {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return n.segment()
}

// Parent returns the parent node, or nil for the root and detached nodes.
func (n *Node) Parent() *Node {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return n.parent
}

// Children returns a copy of the ordered child list.
func (n *Node) Children() []*Node {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return append([]*Node(nil), n.children...)
}

// Path returns the node's current path.
func (n *Node) Path() graph.Path {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return n.path()
}

// Property returns the named property.
func (n *Node) Property(name graph.Name) (graph.Property, bool) {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	p, ok := n.properties[name]
	return p, ok
}

// Properties returns a copy of the property map.
func (n *Node) Properties() map[graph.Name]graph.Property {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return n.copyProperties()
}

func (n *Node) segment() graph.Segment {
	return graph.Segment{Name: n.name, Index: n.index}
}

func (n *Node) path() graph.Path {
	var segments []graph.Segment
	for cur := n; cur.parent != nil; cur = cur.parent {
		segments = append(segments, cur.segment())
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return graph.NewPath(segments...)
}

func (n *Node) copyProperties() map[graph.Name]graph.Property {
	props := make(map[graph.Name]graph.Property, len(n.properties))
	for k, v := range n.properties {
		props[k] = v
	}
	return props
}

// childAt resolves seg against the current child list.
func (n *Node) childAt(seg graph.Segment) (*Node, bool) {
	for _, child := range n.children {
		if child.name == seg.Name && child.index == seg.Index {
			return child, true
		}
	}
	return nil, false
}

// isDescendantOf reports whether n lies in the subtree of ancestor (or is it).
func (n *Node) isDescendantOf(ancestor *Node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// reindex reapplies the same-name-sibling rule to n's children.
func (n *Node) reindex() {
	segments := make([]graph.Segment, len(n.children))
	for i, child := range n.children {
		segments[i] = graph.NewSegment(child.name)
	}
	for i, seg := range graph.RecomputeIndices(segments) {
		n.children[i].index = seg.Index
	}
}
