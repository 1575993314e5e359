package fedfs

import (
	"context"
	"fmt"
	"time"

	"github.com/aweris/fedfs/internal/graph"
)

// StoreConnector serves a NodeStore as a writable, revalidating source.
// Every contribution carries the node's identifier as its uuid property and
// the node's content digest as its token.
type StoreConnector struct {
	store *NodeStore
	ttl   time.Duration
	clock func() time.Time
}

// StoreConnectorOption configures a StoreConnector.
type StoreConnectorOption func(*StoreConnector)

// WithContributionTTL makes contributions expire ttl after they are read.
func WithContributionTTL(ttl time.Duration, now func() time.Time) StoreConnectorOption {
	return func(c *StoreConnector) {
		c.ttl = ttl
		if now != nil {
			c.clock = now
		}
	}
}

func NewStoreConnector(store *NodeStore, opts ...StoreConnectorOption) *StoreConnector {
	c := &StoreConnector{store: store, clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying node store.
func (c *StoreConnector) Store() *NodeStore { return c.store }

func (c *StoreConnector) Contribution(_ context.Context, path Path) (Contribution, bool, error) {
	snap, ok := c.store.Snapshot(path)
	if !ok {
		return Contribution{}, false, nil
	}

	props := snap.Properties
	if !hasUUID(props) {
		props = append([]Property{graph.NewProperty(graph.UUIDName, snap.ID)}, props...)
	}

	contrib := Contribution{
		Path:       path,
		Children:   snap.Children,
		Properties: props,
		Token:      snap.Digest,
	}
	if c.ttl > 0 {
		contrib.ExpiresAt = c.clock().Add(c.ttl)
	}
	return contrib, true, nil
}

func (c *StoreConnector) Token(_ context.Context, path Path) (string, bool, error) {
	snap, ok := c.store.Snapshot(path)
	if !ok {
		return "", false, nil
	}
	return snap.Digest, true, nil
}

func (c *StoreConnector) CreateNode(_ context.Context, parent Path, name Name) (Path, error) {
	p, err := c.node(parent)
	if err != nil {
		return Path{}, err
	}
	n, err := c.store.CreateNode(p, name)
	if err != nil {
		return Path{}, err
	}
	return n.Path(), nil
}

func (c *StoreConnector) MoveNode(_ context.Context, node, newParent Path) (Path, error) {
	n, err := c.node(node)
	if err != nil {
		return Path{}, err
	}
	p, err := c.node(newParent)
	if err != nil {
		return Path{}, err
	}
	if err := c.store.MoveNode(n, p); err != nil {
		return Path{}, err
	}
	return n.Path(), nil
}

func (c *StoreConnector) CopyNode(_ context.Context, node, newParent Path, recursive bool) (Path, error) {
	n, err := c.node(node)
	if err != nil {
		return Path{}, err
	}
	p, err := c.node(newParent)
	if err != nil {
		return Path{}, err
	}
	dup, err := c.store.CopyNode(n, p, recursive)
	if err != nil {
		return Path{}, err
	}
	return dup.Path(), nil
}

func (c *StoreConnector) RemoveNode(_ context.Context, node Path) error {
	n, err := c.node(node)
	if err != nil {
		return err
	}
	return c.store.RemoveNode(n)
}

func (c *StoreConnector) SetProperty(_ context.Context, node Path, prop Property) error {
	n, err := c.node(node)
	if err != nil {
		return err
	}
	return c.store.SetProperty(n, prop)
}

func (c *StoreConnector) RemoveProperty(_ context.Context, node Path, name Name) (bool, error) {
	n, err := c.node(node)
	if err != nil {
		return false, err
	}
	return c.store.RemoveProperty(n, name)
}

func (c *StoreConnector) node(path Path) (*Node, error) {
	n, ok := c.store.GetNode(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return n, nil
}

func hasUUID(props []Property) bool {
	for _, p := range props {
		if graph.IsUUIDName(p.Name()) {
			return true
		}
	}
	return false
}

var (
	_ Connector   = (*StoreConnector)(nil)
	_ Revalidator = (*StoreConnector)(nil)
	_ Writer      = (*StoreConnector)(nil)
)
