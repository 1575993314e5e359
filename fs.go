package fedfs

import (
	"context"
	"fmt"
)

// Connector supplies one source's view of its own tree. Paths are relative to
// the source's mount and use the source's own sibling indices.
type Connector interface {
	// Contribution returns the node at path, or false when the source has
	// nothing there.
	Contribution(ctx context.Context, path Path) (Contribution, bool, error)
}

// Revalidator is implemented by connectors that can report the current
// token of a node without building a full contribution.
type Revalidator interface {
	Token(ctx context.Context, path Path) (token string, ok bool, err error)
}

// Writer is implemented by connectors whose tree can be modified. Methods
// returning a path report where the affected node lives afterwards.
type Writer interface {
	CreateNode(ctx context.Context, parent Path, name Name) (Path, error)
	MoveNode(ctx context.Context, node, newParent Path) (Path, error)
	CopyNode(ctx context.Context, node, newParent Path, recursive bool) (Path, error)
	RemoveNode(ctx context.Context, node Path) error
	SetProperty(ctx context.Context, node Path, prop Property) error
	RemoveProperty(ctx context.Context, node Path, name Name) (bool, error)
}

// Source is one contributor to a workspace, mounted at a federated path.
type Source struct {
	Name      string
	Mount     Path
	Connector Connector
}

func (s Source) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSource)
	}
	if s.Connector == nil {
		return fmt.Errorf("%w: %s has no connector", ErrInvalidSource, s.Name)
	}
	for _, seg := range s.Mount.Segments() {
		if seg.HasIndex() {
			return fmt.Errorf("%w: %s mount %s must not use sibling indices", ErrInvalidSource, s.Name, s.Mount)
		}
	}
	return nil
}

// target is where a source is asked for its part of one federated path:
// either a real node at local, or a placeholder bridging to a deeper mount.
type target struct {
	source      Source
	local       Path
	placeholder bool
	child       Segment
}

// mountTarget returns the target of src for a federated path of the given
// depth that lies on the way to src's mount.
func mountTarget(src Source, depth int) target {
	if depth >= src.Mount.Len() {
		return target{source: src, local: Root}
	}
	return target{source: src, placeholder: true, child: src.Mount.Segment(depth)}
}

func (t target) contribute(ctx context.Context) (Contribution, bool, error) {
	if t.placeholder {
		return Contribution{
			Source:      t.source.Name,
			Children:    []Segment{t.child},
			Placeholder: true,
		}, true, nil
	}
	c, ok, err := t.source.Connector.Contribution(ctx, t.local)
	if err != nil || !ok {
		return Contribution{}, false, err
	}
	c.Source = t.source.Name
	c.Path = t.local
	return c, true, nil
}
