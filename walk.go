package fedfs

import (
	"context"
	"errors"
)

// SkipChildren may be returned by a WalkFunc to skip the node's subtree.
var SkipChildren = errors.New("fedfs: skip children")

// WalkFunc is called for every node visited by Walk.
type WalkFunc func(node *FederatedNode) error

// Walk visits the federated tree rooted at path depth-first, parents before
// children, in child order.
func (w *Workspace) Walk(ctx context.Context, path Path, fn WalkFunc) error {
	node, err := w.Read(ctx, path)
	if err != nil {
		return err
	}
	if err := fn(node); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	for _, child := range node.ChildPaths() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Walk(ctx, child, fn); err != nil {
			return err
		}
	}
	return nil
}
