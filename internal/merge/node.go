package merge

import (
	"github.com/aweris/fedfs/internal/graph"
	"github.com/google/uuid"
)

// RootID is the fixed identity of the federated root node.
var RootID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("fedfs:/"))

// pathNamespace seeds the name-based identities of nodes whose sources do
// not supply a uuid.
var pathNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("fedfs:path"))

// Origin ties a merged child to one contribution that produced it.
type Origin struct {
	Source string
	// Segment is the child as the source reported it, in the source's own
	// index space.
	Segment     graph.Segment
	Placeholder bool
}

// FederatedNode is the merged, externally visible view of one path.
//
// Children and Properties are mutable until the node is handed to a cache;
// after that it must be treated as read-only.
type FederatedNode struct {
	ID       uuid.UUID
	Path     graph.Path
	Children []graph.Segment
	// Origins is parallel to Children.
	Origins    [][]Origin
	Properties map[graph.Name]graph.Property
	Plan       *MergePlan
}

func newFederatedNode(path graph.Path) *FederatedNode {
	return &FederatedNode{
		Path:       path,
		Properties: make(map[graph.Name]graph.Property),
	}
}

// Property returns the named property.
func (n *FederatedNode) Property(name graph.Name) (graph.Property, bool) {
	p, ok := n.Properties[name]
	return p, ok
}

// SetProperty stores p, replacing any property of the same name.
func (n *FederatedNode) SetProperty(p graph.Property) {
	n.Properties[p.Name()] = p
}

func (n *FederatedNode) RemoveProperty(name graph.Name) {
	delete(n.Properties, name)
}

// ChildOrigins returns the origins of the child matching seg exactly; an
// index-less segment only matches an index-less child.
func (n *FederatedNode) ChildOrigins(seg graph.Segment) ([]Origin, bool) {
	for i, child := range n.Children {
		if child == seg {
			return n.Origins[i], true
		}
	}
	return nil, false
}

// ChildPaths returns the absolute path of every child.
func (n *FederatedNode) ChildPaths() []graph.Path {
	out := make([]graph.Path, len(n.Children))
	for i, seg := range n.Children {
		out[i] = n.Path.Child(seg)
	}
	return out
}

// pathID derives a stable identity for path.
func pathID(path graph.Path) uuid.UUID {
	return uuid.NewSHA1(pathNamespace, []byte(path.String()))
}
