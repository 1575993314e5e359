package fedfs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func name(s string) Name { return NewName(s) }

func mustCreate(t *testing.T, s *NodeStore, parent *Node, n string, props ...Property) *Node {
	t.Helper()
	node, err := s.CreateNode(parent, name(n))
	require.NoError(t, err)
	for _, p := range props {
		require.NoError(t, s.SetProperty(node, p))
	}
	return node
}

func mustOpen(t *testing.T, opts ...OpenOption) *Workspace {
	t.Helper()
	ws, err := Open("test", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func mustRead(t *testing.T, ws *Workspace, path string) *FederatedNode {
	t.Helper()
	n, err := ws.Read(context.Background(), MustParsePath(path))
	require.NoError(t, err, path)
	return n
}

func childNames(n *FederatedNode) []string {
	out := make([]string, len(n.Children))
	for i, c := range n.Children {
		out[i] = c.String()
	}
	return out
}

func propValue(t *testing.T, n *FederatedNode, prop string) any {
	t.Helper()
	p, ok := n.Property(name(prop))
	require.True(t, ok, prop)
	return p.Value()
}

type readOnly struct {
	Connector
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestOpenValidatesSources(t *testing.T) {
	_, err := Open("ws")
	assert.ErrorIs(t, err, ErrNoSources)

	conn := NewStoreConnector(NewNodeStore())
	_, err = Open("ws", WithSource("a", Root, conn), WithSource("a", MustParsePath("/m"), conn))
	assert.ErrorIs(t, err, ErrDuplicateSource)

	_, err = Open("ws", WithSource("a", MustParsePath("/m[2]"), conn))
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = Open("ws", WithSource("a", Root, nil))
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestReadSingleSource(t *testing.T) {
	store := NewNodeStore()
	docs := mustCreate(t, store, store.Root(), "docs", NewProperty(name("title"), "Docs"))
	mustCreate(t, store, docs, "page")
	mustCreate(t, store, docs, "page")

	ws := mustOpen(t, WithSource("local", Root, NewStoreConnector(store)))

	root := mustRead(t, ws, "/")
	assert.Equal(t, []string{"docs"}, childNames(root))

	n := mustRead(t, ws, "/docs")
	assert.Equal(t, docs.ID(), n.ID, "identity adopted from the store")
	assert.Equal(t, "Docs", propValue(t, n, "title"))
	assert.Equal(t, []string{"page[1]", "page[2]"}, childNames(n))

	_, err := ws.Read(context.Background(), MustParsePath("/docs/page"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ws.Read(context.Background(), MustParsePath("/missing/deeper"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadSameNameSiblingsAcrossSources(t *testing.T) {
	a, b := NewNodeStore(), NewNodeStore()
	mustCreate(t, a, a.Root(), "x", NewProperty(name("src"), "A"))
	mustCreate(t, b, b.Root(), "x", NewProperty(name("src"), "B"))
	mustCreate(t, b, b.Root(), "y")

	ws := mustOpen(t,
		WithSource("a", Root, NewStoreConnector(a)),
		WithSource("b", Root, NewStoreConnector(b)),
	)

	root := mustRead(t, ws, "/")
	assert.Equal(t, []string{"x[1]", "x[2]", "y"}, childNames(root))
	assert.Equal(t, RootID, root.ID)

	assert.Equal(t, "A", propValue(t, mustRead(t, ws, "/x[1]"), "src"))
	assert.Equal(t, "B", propValue(t, mustRead(t, ws, "/x[2]"), "src"))

	_, err := ws.Read(context.Background(), MustParsePath("/x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadMergesMountedSource(t *testing.T) {
	a, b := NewNodeStore(), NewNodeStore()
	shared := mustCreate(t, a, a.Root(), "shared", NewMultiProperty(name("tags"), "a"))
	mustCreate(t, a, shared, "local")
	mustCreate(t, a, a.Root(), "docs")
	require.NoError(t, b.SetProperty(b.Root(), NewMultiProperty(name("tags"), "a", "b")))
	mustCreate(t, b, b.Root(), "item", NewProperty(name("from"), "b"))

	ws := mustOpen(t,
		WithSource("a", Root, NewStoreConnector(a)),
		WithSource("b", MustParsePath("/shared"), NewStoreConnector(b)),
	)

	root := mustRead(t, ws, "/")
	assert.Equal(t, []string{"shared", "docs"}, childNames(root), "placeholder does not duplicate a real child")

	n := mustRead(t, ws, "/shared")
	assert.Equal(t, []string{"local", "item"}, childNames(n))
	assert.Equal(t, shared.ID(), n.ID, "higher priority identity wins")
	tags, _ := n.Property(name("tags"))
	assert.Equal(t, []any{"a", "b"}, tags.Values())
	assert.Equal(t, []string{"a", "b"}, n.Plan.Sources())

	assert.Equal(t, "b", propValue(t, mustRead(t, ws, "/shared/item"), "from"))
}

func TestReadBridgesDeepMount(t *testing.T) {
	a, b := NewNodeStore(), NewNodeStore()
	mustCreate(t, a, a.Root(), "docs")
	mustCreate(t, b, b.Root(), "item")

	ws := mustOpen(t,
		WithSource("a", Root, NewStoreConnector(a)),
		WithSource("b", MustParsePath("/mnt/b"), NewStoreConnector(b)),
	)

	assert.Equal(t, []string{"docs", "mnt"}, childNames(mustRead(t, ws, "/")))

	mnt := mustRead(t, ws, "/mnt")
	assert.Equal(t, []string{"b"}, childNames(mnt))
	assert.True(t, mnt.Plan.Entries()[0].Placeholder)

	assert.Equal(t, []string{"item"}, childNames(mustRead(t, ws, "/mnt/b")))
	mustRead(t, ws, "/mnt/b/item")
}

func TestReadUsesCache(t *testing.T) {
	store := NewNodeStore()
	mustCreate(t, store, store.Root(), "a")
	ws := mustOpen(t, WithSource("local", Root, NewStoreConnector(store)))

	first := mustRead(t, ws, "/a")
	ws.ClearStatistics()

	second := mustRead(t, ws, "/a")
	assert.Same(t, first, second)
	assert.Equal(t, CacheStatistics{Hits: 1}, ws.Statistics())

	assert.Equal(t, 2, ws.Invalidate(Root))
	third := mustRead(t, ws, "/a")
	assert.NotSame(t, first, third)
}

func TestRevalidation(t *testing.T) {
	store := NewNodeStore()
	a := mustCreate(t, store, store.Root(), "a", NewProperty(name("v"), 1))

	stale := mustOpen(t, WithSource("local", Root, NewStoreConnector(store)))
	fresh := mustOpen(t, WithSource("local", Root, NewStoreConnector(store)), WithRevalidation(true))
	mustRead(t, stale, "/a")
	mustRead(t, fresh, "/a")

	require.NoError(t, store.SetProperty(a, NewProperty(name("v"), 2)))

	assert.Equal(t, 1, propValue(t, mustRead(t, stale, "/a"), "v"))
	assert.Equal(t, 2, propValue(t, mustRead(t, fresh, "/a"), "v"))
}

func TestExpiredContributionReloads(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewNodeStore()
	mustCreate(t, store, store.Root(), "a")

	ws := mustOpen(t,
		WithSource("local", Root, NewStoreConnector(store, WithContributionTTL(10*time.Second, clock.Now))),
		WithClock(clock.Now),
	)

	first := mustRead(t, ws, "/a")
	assert.Same(t, first, mustRead(t, ws, "/a"))

	clock.Advance(11 * time.Second)
	assert.NotSame(t, first, mustRead(t, ws, "/a"))
}

func TestCachePolicyTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewNodeStore()
	ws := mustOpen(t,
		WithSource("local", Root, NewStoreConnector(store)),
		WithCachePolicy(BasicPolicy{TimeToLive: TTLSeconds(5)}),
		WithClock(clock.Now),
	)

	mustRead(t, ws, "/")
	clock.Advance(6 * time.Second)
	ws.ClearStatistics()
	mustRead(t, ws, "/")

	stats := ws.Statistics()
	assert.Equal(t, int64(1), stats.Expirations)
	assert.Equal(t, int64(1), stats.Writes)
}

func TestWritesInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewNodeStore()
	mustCreate(t, store, store.Root(), "docs")
	ws := mustOpen(t, WithSource("local", Root, NewStoreConnector(store)))

	mustRead(t, ws, "/docs")

	p, err := ws.CreateNode(ctx, MustParsePath("/docs"), name("page"))
	require.NoError(t, err)
	assert.Equal(t, "/docs/page", p.String())
	assert.Equal(t, []string{"page"}, childNames(mustRead(t, ws, "/docs")))

	p2, err := ws.CreateNode(ctx, MustParsePath("/docs"), name("page"))
	require.NoError(t, err)
	assert.Equal(t, "/docs/page[2]", p2.String())
	assert.Equal(t, []string{"page[1]", "page[2]"}, childNames(mustRead(t, ws, "/docs")))

	require.NoError(t, ws.SetProperty(ctx, p2, NewProperty(name("title"), "second")))
	assert.Equal(t, "second", propValue(t, mustRead(t, ws, "/docs/page[2]"), "title"))

	removed, err := ws.RemoveProperty(ctx, p2, name("title"))
	require.NoError(t, err)
	assert.True(t, removed)
	_, ok := mustRead(t, ws, "/docs/page[2]").Property(name("title"))
	assert.False(t, ok)

	require.NoError(t, ws.RemoveNode(ctx, MustParsePath("/docs/page[1]")))
	assert.Equal(t, []string{"page"}, childNames(mustRead(t, ws, "/docs")))
	_, err = ws.Read(ctx, MustParsePath("/docs/page[2]"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMoveAndCopy(t *testing.T) {
	ctx := context.Background()
	store := NewNodeStore()
	src := mustCreate(t, store, store.Root(), "src")
	mustCreate(t, store, src, "b")
	dst := mustCreate(t, store, store.Root(), "dst")
	mustCreate(t, store, dst, "b")
	ws := mustOpen(t, WithSource("local", Root, NewStoreConnector(store)))

	mustRead(t, ws, "/src/b")
	mustRead(t, ws, "/dst/b")

	moved, err := ws.MoveNode(ctx, MustParsePath("/src/b"), MustParsePath("/dst"))
	require.NoError(t, err)
	assert.Equal(t, "/dst/b[2]", moved.String())
	assert.Empty(t, mustRead(t, ws, "/src").Children)
	assert.Equal(t, []string{"b[1]", "b[2]"}, childNames(mustRead(t, ws, "/dst")))

	copied, err := ws.CopyNode(ctx, MustParsePath("/dst"), MustParsePath("/src"), true)
	require.NoError(t, err)
	assert.Equal(t, "/src/dst", copied.String())
	assert.Equal(t, []string{"b[1]", "b[2]"}, childNames(mustRead(t, ws, "/src/dst")))
}

func TestWriteGoesToFirstWritableSource(t *testing.T) {
	ctx := context.Background()
	a, b := NewNodeStore(), NewNodeStore()
	mustCreate(t, a, a.Root(), "x")
	mustCreate(t, b, b.Root(), "x")

	ws := mustOpen(t,
		WithSource("a", Root, NewStoreConnector(a)),
		WithSource("b", Root, NewStoreConnector(b)),
	)

	p, err := ws.CreateNode(ctx, Root, name("x"))
	require.NoError(t, err)
	assert.Equal(t, "/x[2]", p.String())
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, []string{"x[1]", "x[2]", "x[3]"}, childNames(mustRead(t, ws, "/")))
}

func TestWriteErrors(t *testing.T) {
	ctx := context.Background()
	a, b := NewNodeStore(), NewNodeStore()
	mustCreate(t, a, a.Root(), "docs")
	mustCreate(t, b, b.Root(), "item")

	ws := mustOpen(t,
		WithSource("a", Root, NewStoreConnector(a)),
		WithSource("b", MustParsePath("/ro"), readOnly{NewStoreConnector(b)}),
	)

	_, err := ws.CreateNode(ctx, MustParsePath("/ro"), name("n"))
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = ws.MoveNode(ctx, MustParsePath("/docs"), MustParsePath("/ro/item"))
	assert.ErrorIs(t, err, ErrCrossSource)

	_, err = ws.CreateNode(ctx, MustParsePath("/missing"), name("n"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWalk(t *testing.T) {
	a, b := NewNodeStore(), NewNodeStore()
	docs := mustCreate(t, a, a.Root(), "docs")
	mustCreate(t, a, docs, "page")
	mustCreate(t, a, a.Root(), "skip")
	mustCreate(t, b, b.Root(), "item")

	ws := mustOpen(t,
		WithSource("a", Root, NewStoreConnector(a)),
		WithSource("b", MustParsePath("/mnt"), NewStoreConnector(b)),
	)

	var visited []string
	err := ws.Walk(context.Background(), Root, func(n *FederatedNode) error {
		visited = append(visited, n.Path.String())
		if n.Path.String() == "/skip" {
			return SkipChildren
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/docs", "/docs/page", "/skip", "/mnt", "/mnt/item"}, visited)
}

func TestCopyGetsNewIdentity(t *testing.T) {
	store := NewNodeStore()
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	mustCreate(t, store, store.Root(), "a", NewProperty(name("uuid"), id.String()))
	ws := mustOpen(t, WithSource("local", Root, NewStoreConnector(store)))

	copied, err := ws.CopyNode(context.Background(), MustParsePath("/a"), Root, false)
	require.NoError(t, err)
	assert.Equal(t, "/a[2]", copied.String())

	original := mustRead(t, ws, "/a[1]")
	dup := mustRead(t, ws, "/a[2]")
	assert.Equal(t, id, original.ID)
	assert.NotEqual(t, original.ID, dup.ID)
}

// blockingConnector holds the first contribution until released.
type blockingConnector struct {
	Connector
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *blockingConnector) Contribution(ctx context.Context, path Path) (Contribution, bool, error) {
	c.once.Do(func() {
		close(c.entered)
		<-c.release
	})
	if err := ctx.Err(); err != nil {
		return Contribution{}, false, err
	}
	return c.Connector.Contribution(ctx, path)
}

func TestSharedReadSurvivesCancelledCaller(t *testing.T) {
	store := NewNodeStore()
	mustCreate(t, store, store.Root(), "a")
	conn := &blockingConnector{
		Connector: NewStoreConnector(store),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	ws := mustOpen(t, WithSource("s", Root, conn))

	ctx, cancel := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := ws.Read(ctx, Root)
		errA <- err
	}()
	<-conn.entered

	errB := make(chan error, 1)
	go func() {
		_, err := ws.Read(context.Background(), Root)
		errB <- err
	}()
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(conn.release)

	require.NoError(t, <-errB)
	require.NoError(t, <-errA)
	assert.Equal(t, []string{"a"}, childNames(mustRead(t, ws, "/")))
}

func TestConcurrentReads(t *testing.T) {
	store := NewNodeStore()
	parent := mustCreate(t, store, store.Root(), "p")
	for range 10 {
		mustCreate(t, store, parent, "c")
	}
	ws := mustOpen(t, WithSource("local", Root, NewStoreConnector(store)), WithConcurrency(2))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := ws.Read(context.Background(), MustParsePath("/p/c[5]"))
			if assert.NoError(t, err) {
				assert.Equal(t, "/p/c[5]", n.Path.String())
			}
		}()
	}
	wg.Wait()
}

func TestClosedWorkspace(t *testing.T) {
	ws, err := Open("ws", WithSource("local", Root, NewStoreConnector(NewNodeStore())))
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())

	_, err = ws.Read(context.Background(), Root)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ws.CreateNode(context.Background(), Root, name("x"))
	assert.ErrorIs(t, err, ErrClosed)
}
