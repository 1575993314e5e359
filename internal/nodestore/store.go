// Package nodestore implements an in-memory, path-addressable tree of nodes.
//
// The store is the single owner of the same-name-sibling rule: whenever a
// child list changes, the indices of that list are recomputed from scratch
// with graph.RecomputeIndices. Operations never patch indices by hand.
//
// A Store is safe for concurrent use. Structural updates take one exclusive
// lock for their duration; reads take the shared lock.
package nodestore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aweris/fedfs/internal/graph"
	"github.com/google/uuid"
)

var (
	ErrInvalidArgument = errors.New("nodestore: invalid argument")
	ErrRootNode        = errors.New("nodestore: operation not allowed on the root node")
	ErrForeignNode     = errors.New("nodestore: node belongs to another store")
)

// maxGeneratorAttempts bounds how often a custom IDGenerator may return an
// identifier that was already issued before the store falls back to random
// identifiers.
const maxGeneratorAttempts = 16

// IDGenerator produces node identifiers.
type IDGenerator interface {
	NewID() uuid.UUID
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() uuid.UUID

func (f IDGeneratorFunc) NewID() uuid.UUID { return f() }

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the default random (v4) identifier source.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithRootID fixes the identifier of the root node.
func WithRootID(id uuid.UUID) Option {
	return func(s *Store) { s.rootID = id }
}

// Store is an in-memory node tree.
type Store struct {
	mu sync.RWMutex

	root   *Node
	rootID uuid.UUID
	ids    IDGenerator

	byID   map[uuid.UUID]*Node
	issued map[uuid.UUID]struct{}
}

// New creates a store holding only a root node.
func New(opts ...Option) *Store {
	s := &Store{
		ids:    IDGeneratorFunc(uuid.New),
		byID:   make(map[uuid.UUID]*Node),
		issued: make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	rootID := s.rootID
	if rootID == uuid.Nil {
		rootID = s.generateLocked()
	}
	s.issued[rootID] = struct{}{}
	s.root = newNode(s, rootID, graph.Name{})
	s.byID[rootID] = s.root
	return s
}

// Root returns the root node.
func (s *Store) Root() *Node {
	return s.root
}

// Len returns the number of nodes reachable from the root, root included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// GenerateIdentifier returns an identifier that this store has never issued
// before.
func (s *Store) GenerateIdentifier() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateLocked()
}

func (s *Store) generateLocked() uuid.UUID {
	for range maxGeneratorAttempts {
		if id := s.ids.NewID(); s.claimLocked(id) {
			return id
		}
	}
	for {
		if id := uuid.New(); s.claimLocked(id) {
			return id
		}
	}
}

func (s *Store) claimLocked(id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	if _, used := s.issued[id]; used {
		return false
	}
	s.issued[id] = struct{}{}
	return true
}

// CreateNode appends a new child called name to parent and recomputes the
// sibling indices of parent's children.
func (s *Store) CreateNode(parent *Node, name graph.Name) (*Node, error) {
	if parent == nil {
		return nil, fmt.Errorf("%w: nil parent", ErrInvalidArgument)
	}
	if name.IsZero() {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAttachedLocked(parent); err != nil {
		return nil, err
	}

	node := newNode(s, s.generateLocked(), name)
	node.parent = parent
	parent.children = append(parent.children, node)
	parent.reindex()
	s.byID[node.id] = node
	return node, nil
}

// MoveNode detaches node from its parent and appends it as the last child of
// newParent. Both child lists are reindexed.
func (s *Store) MoveNode(node, newParent *Node) error {
	if node == nil || newParent == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if node == s.root {
		return ErrRootNode
	}
	if err := s.checkAttachedLocked(node); err != nil {
		return err
	}
	if err := s.checkAttachedLocked(newParent); err != nil {
		return err
	}
	if newParent.isDescendantOf(node) {
		return fmt.Errorf("%w: cannot move %s beneath itself", ErrInvalidArgument, node.path())
	}

	oldParent := node.parent
	oldParent.children = deleteChild(oldParent.children, node)
	oldParent.reindex()

	node.parent = newParent
	newParent.children = append(newParent.children, node)
	newParent.reindex()
	return nil
}

// CopyNode duplicates node under newParent with fresh identifiers. With
// recursive set the whole subtree is duplicated, preserving child order and
// properties.
func (s *Store) CopyNode(node, newParent *Node, recursive bool) (*Node, error) {
	if node == nil || newParent == nil {
		return nil, fmt.Errorf("%w: nil node", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if node == s.root {
		return nil, ErrRootNode
	}
	if err := s.checkAttachedLocked(node); err != nil {
		return nil, err
	}
	if err := s.checkAttachedLocked(newParent); err != nil {
		return nil, err
	}

	// Clone before attaching so that copying a node into its own subtree
	// terminates.
	clone := s.cloneLocked(node, recursive)
	clone.parent = newParent
	newParent.children = append(newParent.children, clone)
	newParent.reindex()
	s.indexLocked(clone)
	return clone, nil
}

func (s *Store) cloneLocked(src *Node, recursive bool) *Node {
	dup := newNode(s, s.generateLocked(), src.name)
	dup.properties = src.copyProperties()
	// A copy is a new node; it must not claim the original's identity.
	for name := range dup.properties {
		if graph.IsUUIDName(name) {
			delete(dup.properties, name)
		}
	}
	if !recursive {
		return dup
	}
	dup.children = make([]*Node, 0, len(src.children))
	for _, child := range src.children {
		c := s.cloneLocked(child, true)
		c.parent = dup
		c.index = child.index
		dup.children = append(dup.children, c)
	}
	return dup
}

// RemoveNode detaches node and its subtree from the store and reindexes the
// remaining siblings.
func (s *Store) RemoveNode(node *Node) error {
	if node == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if node == s.root {
		return ErrRootNode
	}
	if err := s.checkAttachedLocked(node); err != nil {
		return err
	}

	parent := node.parent
	parent.children = deleteChild(parent.children, node)
	parent.reindex()
	node.parent = nil
	node.index = 0
	s.unindexLocked(node)
	return nil
}

// GetNode resolves path by matching each segment's name and index against
// the current children. An index that does not exist, including an index on
// a name that is currently unique, does not resolve.
func (s *Store) GetNode(path graph.Path) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getNodeLocked(path)
}

func (s *Store) getNodeLocked(path graph.Path) (*Node, bool) {
	current := s.root
	for i := range path.Len() {
		child, ok := current.childAt(path.Segment(i))
		if !ok {
			return nil, false
		}
		current = child
	}
	return current, true
}

// NodeByID looks a node up by identifier.
func (s *Store) NodeByID(id uuid.UUID) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byID[id]
	return n, ok
}

// SetProperty stores prop on node, replacing any property of the same name.
func (s *Store) SetProperty(node *Node, prop graph.Property) error {
	if node == nil || prop.Name().IsZero() {
		return fmt.Errorf("%w: nil node or unnamed property", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAttachedLocked(node); err != nil {
		return err
	}
	node.properties[prop.Name()] = prop
	return nil
}

// RemoveProperty deletes the named property and reports whether it existed.
func (s *Store) RemoveProperty(node *Node, name graph.Name) (bool, error) {
	if node == nil {
		return false, fmt.Errorf("%w: nil node", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAttachedLocked(node); err != nil {
		return false, err
	}
	_, ok := node.properties[name]
	delete(node.properties, name)
	return ok, nil
}

// NodeSnapshot is an immutable copy of one node's state.
type NodeSnapshot struct {
	ID         uuid.UUID
	Path       graph.Path
	Children   []graph.Segment
	Properties []graph.Property
	Digest     string
}

// Snapshot copies the node at path under a single read lock.
func (s *Store) Snapshot(path graph.Path) (NodeSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.getNodeLocked(path)
	if !ok {
		return NodeSnapshot{}, false
	}

	snap := NodeSnapshot{
		ID:         node.id,
		Path:       node.path(),
		Children:   make([]graph.Segment, len(node.children)),
		Properties: make([]graph.Property, 0, len(node.properties)),
		Digest:     digest(node),
	}
	for i, child := range node.children {
		snap.Children[i] = child.segment()
	}
	for _, p := range node.properties {
		snap.Properties = append(snap.Properties, p)
	}
	sort.Slice(snap.Properties, func(i, j int) bool {
		return snap.Properties[i].Name().String() < snap.Properties[j].Name().String()
	})
	return snap, true
}

func (s *Store) checkAttachedLocked(n *Node) error {
	if n.store != s {
		return ErrForeignNode
	}
	if s.byID[n.id] != n {
		return fmt.Errorf("%w: node %s is not attached", ErrInvalidArgument, n.id)
	}
	return nil
}

func (s *Store) indexLocked(n *Node) {
	s.byID[n.id] = n
	for _, child := range n.children {
		s.indexLocked(child)
	}
}

func (s *Store) unindexLocked(n *Node) {
	delete(s.byID, n.id)
	for _, child := range n.children {
		s.unindexLocked(child)
	}
}

func deleteChild(children []*Node, child *Node) []*Node {
	for i, c := range children {
		if c == child {
			return append(children[:i:i], children[i+1:]...)
		}
	}
	return children
}
