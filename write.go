package fedfs

import (
	"context"
	"fmt"
)

// Writes go to the highest-priority writable source that contributes to the
// target path. Each write holds the workspace write lock while the source is
// mutated and the cache invalidated.

// CreateNode adds a child named name under parent and returns its federated
// path.
func (w *Workspace) CreateNode(ctx context.Context, parent Path, name Name) (Path, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	src, wr, local, err := w.writable(ctx, parent)
	if err != nil {
		return Path{}, err
	}
	created, err := wr.CreateNode(ctx, local, name)
	if err != nil {
		return Path{}, fmt.Errorf("create %s under %s: %w", name, parent, err)
	}
	w.invalidate(parent)
	return w.federatedChild(ctx, parent, src.Name, created)
}

// MoveNode re-parents node under newParent. Both must be served by the same
// writable source.
func (w *Workspace) MoveNode(ctx context.Context, node, newParent Path) (Path, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	src, wr, local, err := w.writable(ctx, node)
	if err != nil {
		return Path{}, err
	}
	dst, err := w.localPath(ctx, newParent, src.Name)
	if err != nil {
		return Path{}, err
	}
	moved, err := wr.MoveNode(ctx, local, dst)
	if err != nil {
		return Path{}, fmt.Errorf("move %s to %s: %w", node, newParent, err)
	}
	w.invalidate(node.Parent())
	w.invalidate(newParent)
	return w.federatedChild(ctx, newParent, src.Name, moved)
}

// CopyNode duplicates node under newParent, including its subtree when
// recursive is set.
func (w *Workspace) CopyNode(ctx context.Context, node, newParent Path, recursive bool) (Path, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	src, wr, local, err := w.writable(ctx, node)
	if err != nil {
		return Path{}, err
	}
	dst, err := w.localPath(ctx, newParent, src.Name)
	if err != nil {
		return Path{}, err
	}
	copied, err := wr.CopyNode(ctx, local, dst, recursive)
	if err != nil {
		return Path{}, fmt.Errorf("copy %s to %s: %w", node, newParent, err)
	}
	w.invalidate(newParent)
	return w.federatedChild(ctx, newParent, src.Name, copied)
}

func (w *Workspace) RemoveNode(ctx context.Context, node Path) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, wr, local, err := w.writable(ctx, node)
	if err != nil {
		return err
	}
	if err := wr.RemoveNode(ctx, local); err != nil {
		return fmt.Errorf("remove %s: %w", node, err)
	}
	w.invalidate(node.Parent())
	return nil
}

func (w *Workspace) SetProperty(ctx context.Context, node Path, prop Property) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, wr, local, err := w.writable(ctx, node)
	if err != nil {
		return err
	}
	if err := wr.SetProperty(ctx, local, prop); err != nil {
		return fmt.Errorf("set %s on %s: %w", prop.Name(), node, err)
	}
	w.invalidate(node)
	return nil
}

func (w *Workspace) RemoveProperty(ctx context.Context, node Path, name Name) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, wr, local, err := w.writable(ctx, node)
	if err != nil {
		return false, err
	}
	removed, err := wr.RemoveProperty(ctx, local, name)
	if err != nil {
		return false, fmt.Errorf("remove %s from %s: %w", name, node, err)
	}
	if removed {
		w.invalidate(node)
	}
	return removed, nil
}

// writable finds the source that receives writes for path and the path's
// location inside it. Called with w.mu held for writing.
func (w *Workspace) writable(ctx context.Context, path Path) (Source, Writer, Path, error) {
	if w.closed {
		return Source{}, nil, Path{}, ErrClosed
	}
	node, err := w.read(ctx, path)
	if err != nil {
		return Source{}, nil, Path{}, err
	}
	for _, e := range node.Plan.Entries() {
		if e.Placeholder {
			continue
		}
		src, ok := w.source(e.Source)
		if !ok {
			continue
		}
		if wr, ok := src.Connector.(Writer); ok {
			return src, wr, e.Path, nil
		}
	}
	return Source{}, nil, Path{}, fmt.Errorf("%w: %s", ErrReadOnly, path)
}

// localPath returns where path lives inside source.
func (w *Workspace) localPath(ctx context.Context, path Path, source string) (Path, error) {
	node, err := w.read(ctx, path)
	if err != nil {
		return Path{}, err
	}
	e, ok := node.Plan.Entry(source)
	if !ok || e.Placeholder {
		return Path{}, fmt.Errorf("%w: %s is not served by %s", ErrCrossSource, path, source)
	}
	return e.Path, nil
}

// federatedChild maps a node a source reports at local back to its path in
// the federated tree under parent.
func (w *Workspace) federatedChild(ctx context.Context, parent Path, source string, local Path) (Path, error) {
	node, err := w.read(ctx, parent)
	if err != nil {
		return Path{}, err
	}
	seg, ok := local.Last()
	if !ok {
		return Path{}, fmt.Errorf("%w: %s", ErrNotFound, local)
	}
	for i, child := range node.Children {
		for _, o := range node.Origins[i] {
			if o.Source == source && !o.Placeholder && o.Segment == seg {
				return parent.Child(child), nil
			}
		}
	}
	return Path{}, fmt.Errorf("%w: %s in %s", ErrNotFound, local, source)
}

func (w *Workspace) invalidate(path Path) {
	if n := w.cache.Invalidate(path); n > 0 {
		w.opts.Logger.Debug("invalidated", "workspace", w.name, "path", path.String(), "entries", n)
	}
}
