package nodestore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/aweris/fedfs/internal/graph"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func name(s string) graph.Name { return graph.NewName(s) }

func segments(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Segment().String()
	}
	return out
}

func mustCreate(t *testing.T, s *Store, parent *Node, n string) *Node {
	t.Helper()
	node, err := s.CreateNode(parent, name(n))
	require.NoError(t, err)
	return node
}

func TestCreateNodeAssignsSiblingIndices(t *testing.T) {
	s := New()
	root := s.Root()

	a1 := mustCreate(t, s, root, "a")
	assert.Equal(t, "a", a1.Segment().String(), "a unique child carries no index")

	a2 := mustCreate(t, s, root, "a")
	b := mustCreate(t, s, root, "b")
	a3 := mustCreate(t, s, root, "a")

	assert.Equal(t, []string{"a[1]", "a[2]", "b", "a[3]"}, segments(root.Children()))

	for path, want := range map[string]*Node{"/a[1]": a1, "/a[2]": a2, "/a[3]": a3, "/b": b} {
		got, ok := s.GetNode(graph.MustParsePath(path))
		require.True(t, ok, path)
		assert.Same(t, want, got, path)
	}

	_, ok := s.GetNode(graph.MustParsePath("/a"))
	assert.False(t, ok, "index-less segment must not match an indexed sibling")
	_, ok = s.GetNode(graph.MustParsePath("/b[1]"))
	assert.False(t, ok, "unique child has no index 1")
	_, ok = s.GetNode(graph.MustParsePath("/a[4]"))
	assert.False(t, ok)
}

func TestCreateNodeRejectsNilParent(t *testing.T) {
	s := New()
	_, err := s.CreateNode(nil, name("a"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.CreateNode(s.Root(), graph.Name{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRemoveNodeReindexes(t *testing.T) {
	s := New()
	root := s.Root()
	a1 := mustCreate(t, s, root, "a")
	mustCreate(t, s, root, "b")
	a2 := mustCreate(t, s, root, "a")
	require.Equal(t, []string{"a[1]", "b", "a[2]"}, segments(root.Children()))

	require.NoError(t, s.RemoveNode(a1))

	assert.Equal(t, []string{"b", "a"}, segments(root.Children()))
	got, ok := s.GetNode(graph.MustParsePath("/a"))
	require.True(t, ok)
	assert.Same(t, a2, got)

	_, ok = s.NodeByID(a1.ID())
	assert.False(t, ok)
	assert.Nil(t, a1.Parent())
}

func TestRemoveNodeKeepsIndicesContiguous(t *testing.T) {
	s := New()
	root := s.Root()
	var as []*Node
	for range 4 {
		as = append(as, mustCreate(t, s, root, "a"))
	}

	require.NoError(t, s.RemoveNode(as[1]))
	assert.Equal(t, []string{"a[1]", "a[2]", "a[3]"}, segments(root.Children()))
	assert.Equal(t, "/a[2]", as[2].Path().String())
}

func TestRemoveNodeDropsSubtreeFromIndex(t *testing.T) {
	s := New()
	a := mustCreate(t, s, s.Root(), "a")
	b := mustCreate(t, s, a, "b")
	c := mustCreate(t, s, b, "c")
	require.Equal(t, 4, s.Len())

	require.NoError(t, s.RemoveNode(a))

	assert.Equal(t, 1, s.Len())
	_, ok := s.NodeByID(c.ID())
	assert.False(t, ok)
	_, err := s.CreateNode(b, name("x"))
	assert.ErrorIs(t, err, ErrInvalidArgument, "detached nodes cannot be modified")
}

func TestRemoveNodePreconditions(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.RemoveNode(nil), ErrInvalidArgument)
	assert.ErrorIs(t, s.RemoveNode(s.Root()), ErrRootNode)

	other := New()
	n := mustCreate(t, other, other.Root(), "a")
	assert.ErrorIs(t, s.RemoveNode(n), ErrForeignNode)
}

func TestMoveNodeReindexesBothParents(t *testing.T) {
	s := New()
	root := s.Root()
	src := mustCreate(t, s, root, "src")
	dst := mustCreate(t, s, root, "dst")

	a1 := mustCreate(t, s, src, "a")
	moving := mustCreate(t, s, src, "b")
	a2 := mustCreate(t, s, src, "a")
	existing := mustCreate(t, s, dst, "b")
	mustCreate(t, s, dst, "c")

	require.Equal(t, []string{"a[1]", "b", "a[2]"}, segments(src.Children()))

	require.NoError(t, s.MoveNode(moving, dst))

	assert.Equal(t, []string{"b[1]", "c", "b[2]"}, segments(dst.Children()))
	assert.Equal(t, "/dst/b[1]", existing.Path().String())
	assert.Equal(t, "/dst/b[2]", moving.Path().String())
	assert.Same(t, dst, moving.Parent())

	assert.Equal(t, []string{"a[1]", "a[2]"}, segments(src.Children()))
	assert.Equal(t, "/src/a[1]", a1.Path().String())

	require.NoError(t, s.RemoveNode(a2))
	assert.Equal(t, []string{"a"}, segments(src.Children()))
}

func TestMoveNodeSourceLosesIndex(t *testing.T) {
	s := New()
	root := s.Root()
	src := mustCreate(t, s, root, "src")
	dst := mustCreate(t, s, root, "dst")
	x1 := mustCreate(t, s, src, "x")
	mustCreate(t, s, src, "x")

	require.NoError(t, s.MoveNode(x1, dst))

	assert.Equal(t, []string{"x"}, segments(src.Children()))
	assert.Equal(t, []string{"x"}, segments(dst.Children()))
}

func TestMoveNodeWithinSameParentMovesToEnd(t *testing.T) {
	s := New()
	root := s.Root()
	a1 := mustCreate(t, s, root, "a")
	mustCreate(t, s, root, "b")
	a2 := mustCreate(t, s, root, "a")

	require.NoError(t, s.MoveNode(a1, root))

	assert.Equal(t, []string{"b", "a[1]", "a[2]"}, segments(root.Children()))
	assert.Equal(t, "/a[1]", a2.Path().String())
	assert.Equal(t, "/a[2]", a1.Path().String())
}

func TestMoveNodePreconditions(t *testing.T) {
	s := New()
	a := mustCreate(t, s, s.Root(), "a")
	b := mustCreate(t, s, a, "b")

	assert.ErrorIs(t, s.MoveNode(nil, a), ErrInvalidArgument)
	assert.ErrorIs(t, s.MoveNode(a, nil), ErrInvalidArgument)
	assert.ErrorIs(t, s.MoveNode(s.Root(), a), ErrRootNode)
	assert.ErrorIs(t, s.MoveNode(a, b), ErrInvalidArgument)
	assert.ErrorIs(t, s.MoveNode(a, a), ErrInvalidArgument)
}

func TestCopyNode(t *testing.T) {
	s := New()
	root := s.Root()
	a := mustCreate(t, s, root, "a")
	require.NoError(t, s.SetProperty(a, graph.NewProperty(name("title"), "hello")))
	x1 := mustCreate(t, s, a, "x")
	mustCreate(t, s, a, "x")
	require.NoError(t, s.SetProperty(x1, graph.NewMultiProperty(name("tags"), "t1", "t2")))
	mustCreate(t, s, x1, "leaf")
	dst := mustCreate(t, s, root, "dst")

	t.Run("shallow", func(t *testing.T) {
		dup, err := s.CopyNode(a, dst, false)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID(), dup.ID())
		assert.Empty(t, dup.Children())
		p, ok := dup.Property(name("title"))
		require.True(t, ok)
		assert.Equal(t, "hello", p.Value())
	})

	t.Run("drops identity properties", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, s.SetProperty(x1, graph.NewProperty(graph.ParseName("jcr:uuid"), id.String())))

		dup, err := s.CopyNode(x1, dst, true)
		require.NoError(t, err)
		_, ok := dup.Property(graph.ParseName("jcr:uuid"))
		assert.False(t, ok)
		_, ok = dup.Property(name("tags"))
		assert.True(t, ok)

		_, ok = x1.Property(graph.ParseName("jcr:uuid"))
		assert.True(t, ok)
		require.NoError(t, s.RemoveNode(dup))
	})

	t.Run("recursive", func(t *testing.T) {
		dup, err := s.CopyNode(a, dst, true)
		require.NoError(t, err)

		assert.Equal(t, []string{"a[1]", "a[2]"}, segments(dst.Children()))
		assert.Equal(t, []string{"x[1]", "x[2]"}, segments(dup.Children()))

		cx, ok := s.GetNode(graph.MustParsePath("/dst/a[2]/x[1]"))
		require.True(t, ok)
		assert.NotEqual(t, x1.ID(), cx.ID())
		tags, ok := cx.Property(name("tags"))
		require.True(t, ok)
		assert.Equal(t, []any{"t1", "t2"}, tags.Values())

		leaf, ok := s.GetNode(graph.MustParsePath("/dst/a[2]/x[1]/leaf"))
		require.True(t, ok)
		_, indexed := s.NodeByID(leaf.ID())
		assert.True(t, indexed)
	})

	t.Run("into own subtree", func(t *testing.T) {
		before := s.Len()
		_, err := s.CopyNode(a, x1, true)
		require.NoError(t, err)
		// a, x[1], x[2], leaf
		assert.Equal(t, before+4, s.Len())
	})

	_, err := s.CopyNode(root, dst, true)
	assert.ErrorIs(t, err, ErrRootNode)
}

func TestGenerateIdentifierIsUnique(t *testing.T) {
	fixed := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	s := New(WithIDGenerator(IDGeneratorFunc(func() uuid.UUID { return fixed })))

	first := s.GenerateIdentifier()
	second := s.GenerateIdentifier()
	assert.NotEqual(t, first, second)
	assert.NotEqual(t, s.Root().ID(), first)
}

func TestWithRootID(t *testing.T) {
	id := uuid.New()
	s := New(WithRootID(id))
	assert.Equal(t, id, s.Root().ID())
	n, ok := s.NodeByID(id)
	require.True(t, ok)
	assert.Same(t, s.Root(), n)
}

func TestSnapshot(t *testing.T) {
	s := New()
	a := mustCreate(t, s, s.Root(), "a")
	mustCreate(t, s, a, "x")
	mustCreate(t, s, a, "x")
	require.NoError(t, s.SetProperty(a, graph.NewProperty(name("p"), "v")))

	snap, ok := s.Snapshot(graph.MustParsePath("/a"))
	require.True(t, ok)
	assert.Equal(t, a.ID(), snap.ID)
	assert.Equal(t, "/a", snap.Path.String())
	assert.Len(t, snap.Properties, 1)
	assert.Equal(t, "x[1]", snap.Children[0].String())

	before := snap.Digest
	require.NoError(t, s.SetProperty(a, graph.NewProperty(name("p"), "w")))
	after, _ := s.Snapshot(graph.MustParsePath("/a"))
	assert.NotEqual(t, before, after.Digest)

	removed, err := s.RemoveProperty(a, name("p"))
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok = s.Snapshot(graph.MustParsePath("/missing"))
	assert.False(t, ok)
}

func TestConcurrentCreateKeepsIndicesConsistent(t *testing.T) {
	s := New()
	parent := mustCreate(t, s, s.Root(), "p")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateNode(parent, name(fmt.Sprintf("n%d", i%5)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts := make(map[graph.Name][]int)
	for _, child := range parent.Children() {
		seg := child.Segment()
		counts[seg.Name] = append(counts[seg.Name], seg.Index)
	}
	require.Len(t, counts, 5)
	for n, idx := range counts {
		require.Len(t, idx, 10, n.String())
		for i, got := range idx {
			assert.Equal(t, i+1, got, n.String())
		}
	}
}
