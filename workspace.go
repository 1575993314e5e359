package fedfs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/aweris/fedfs/internal/cache"
	"github.com/aweris/fedfs/internal/merge"
)

var tracer = otel.Tracer("github.com/aweris/fedfs")

// Workspace is a federated view over several sources.
//
// Reads go through a cache; a miss gathers contributions from every source
// covering the path, merges them and caches the result. Writes are applied to
// one source and invalidate the affected part of the cache before the write
// lock is released, so no read can cache a node built from the old content.
type Workspace struct {
	name    string
	sources []Source
	opts    *OpenOptions

	cache *cache.WorkspaceCache
	group singleflight.Group

	mu     sync.RWMutex
	closed bool
}

// Open creates a workspace over the configured sources.
func Open(name string, opts ...OpenOption) (*Workspace, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if len(options.Sources) == 0 {
		return nil, ErrNoSources
	}
	seen := make(map[string]struct{}, len(options.Sources))
	for _, src := range options.Sources {
		if err := src.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[src.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, src.Name)
		}
		seen[src.Name] = struct{}{}
	}

	c := cache.New(
		cache.WithClock(options.Clock),
		cache.WithMaxEntries(options.MaxEntries),
		cache.WithWeakReferences(options.WeakRefs),
		cache.WithLogger(options.Logger),
		cache.WithMeterProvider(options.MeterProvider),
	)
	if err := c.Initialize(options.CachePolicy); err != nil {
		return nil, fmt.Errorf("initialize cache: %w", err)
	}

	return &Workspace{
		name:    name,
		sources: append([]Source(nil), options.Sources...),
		opts:    options,
		cache:   c,
	}, nil
}

func (w *Workspace) Name() string { return w.name }

// Sources returns the sources in priority order.
func (w *Workspace) Sources() []Source {
	return append([]Source(nil), w.sources...)
}

// Read returns the federated node at path. The returned node is shared with
// the cache and must not be modified.
func (w *Workspace) Read(ctx context.Context, path Path) (*FederatedNode, error) {
	ctx, span := tracer.Start(ctx, "fedfs.Read", trace.WithAttributes(
		attribute.String("fedfs.workspace", w.name),
		attribute.String("fedfs.path", path.String()),
	))
	defer span.End()

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return nil, ErrClosed
	}
	node, err := w.read(ctx, path)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	return node, nil
}

// read resolves path with w.mu held in either mode.
func (w *Workspace) read(ctx context.Context, path Path) (*FederatedNode, error) {
	if node, ok := w.cache.Get(path); ok {
		if !w.stale(ctx, node) {
			return node, nil
		}
		w.cache.Invalidate(path)
	}

	// The load is shared by every reader of path, so one reader giving up
	// must not fail the others.
	shared := context.WithoutCancel(ctx)
	v, err, _ := w.group.Do(path.String(), func() (any, error) {
		return w.load(shared, path)
	})
	if err != nil {
		return nil, err
	}
	return v.(*FederatedNode), nil
}

// stale reports whether a cached node must be rebuilt because one of its
// contributions expired or, with revalidation on, changed its token.
func (w *Workspace) stale(ctx context.Context, node *FederatedNode) bool {
	if node.Plan == nil {
		return false
	}
	if node.Plan.IsExpired(w.opts.Clock()) {
		return true
	}
	if !w.opts.Revalidate {
		return false
	}
	return node.Plan.IsStale(func(e merge.PlanEntry) bool {
		if e.Placeholder || e.Token == "" {
			return false
		}
		src, ok := w.source(e.Source)
		if !ok {
			return true
		}
		rv, ok := src.Connector.(Revalidator)
		if !ok {
			return false
		}
		token, found, err := rv.Token(ctx, e.Path)
		if err != nil {
			w.opts.Logger.Warn("revalidation failed", "source", e.Source, "path", e.Path.String(), "error", err)
			return true
		}
		return !found || token != e.Token
	})
}

// load builds the node at path from its sources and caches it.
func (w *Workspace) load(ctx context.Context, path Path) (*FederatedNode, error) {
	targets, err := w.targets(ctx, path)
	if err != nil {
		return nil, err
	}

	results := make([]*Contribution, len(targets))
	p := pool.New().WithMaxGoroutines(w.opts.Concurrency).WithContext(ctx).WithCancelOnError()
	for i, t := range targets {
		p.Go(func(ctx context.Context) error {
			c, ok, err := t.contribute(ctx)
			if err != nil {
				return fmt.Errorf("source %s: %w", t.source.Name, err)
			}
			if ok {
				results[i] = &c
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	contributions := make([]Contribution, 0, len(results))
	for _, c := range results {
		if c != nil && !c.IsEmpty() {
			contributions = append(contributions, *c)
		}
	}
	if len(contributions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	node, plan, err := merge.Merge(path, contributions, path.IsRoot(), w.opts.Merge)
	if err != nil {
		return nil, err
	}
	w.cache.Set(node)

	w.opts.Logger.Debug("merged node",
		"workspace", w.name,
		"path", path.String(),
		"sources", plan.Sources(),
		"children", len(node.Children),
	)
	return node, nil
}

// targets lists, in priority order, where each source is asked for its part
// of path. Below the root the parent's merge decides which sources own the
// child and under which local segment.
func (w *Workspace) targets(ctx context.Context, path Path) ([]target, error) {
	if path.IsRoot() {
		out := make([]target, len(w.sources))
		for i, src := range w.sources {
			out[i] = mountTarget(src, 0)
		}
		return out, nil
	}

	parent, err := w.read(ctx, path.Parent())
	if err != nil {
		return nil, err
	}
	last, _ := path.Last()
	origins, ok := parent.ChildOrigins(last)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	var out []target
	for _, src := range w.sources {
		o, ok := originOf(origins, src.Name)
		if !ok {
			continue
		}
		if o.Placeholder {
			out = append(out, mountTarget(src, path.Len()))
			continue
		}
		entry, ok := parent.Plan.Entry(src.Name)
		if !ok || entry.Placeholder {
			continue
		}
		out = append(out, target{source: src, local: entry.Path.Child(o.Segment)})
	}
	return out, nil
}

func originOf(origins []merge.Origin, source string) (merge.Origin, bool) {
	for _, o := range origins {
		if o.Source == source {
			return o, true
		}
	}
	return merge.Origin{}, false
}

func (w *Workspace) source(name string) (Source, bool) {
	for _, src := range w.sources {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}

// Invalidate drops path and everything cached below it.
func (w *Workspace) Invalidate(path Path) int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return 0
	}
	return w.cache.Invalidate(path)
}

func (w *Workspace) Statistics() CacheStatistics {
	return w.cache.GetStatistics()
}

func (w *Workspace) ClearStatistics() {
	w.cache.ClearStatistics()
}

// Close releases the cache. The workspace cannot be used afterwards.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.cache.Close()
}
