// Package graph holds the shared path and property model used by the node
// store, the merge engine and the workspace cache.
package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned when a path string does not follow the
// `/name/name[index]` grammar.
var ErrInvalidPath = errors.New("graph: invalid path")

// Name is a possibly namespaced node or property name.
type Name struct {
	Namespace string
	Local     string
}

// NewName returns a name without namespace.
func NewName(local string) Name {
	return Name{Local: local}
}

// ParseName splits "ns:local" on the first colon. Names without a colon have
// no namespace.
func ParseName(s string) Name {
	if ns, local, ok := strings.Cut(s, ":"); ok {
		return Name{Namespace: ns, Local: local}
	}
	return Name{Local: s}
}

func (n Name) String() string {
	if n.Namespace == "" {
		return n.Local
	}
	return n.Namespace + ":" + n.Local
}

func (n Name) IsZero() bool {
	return n.Local == "" && n.Namespace == ""
}

// Segment is one step of a path. Index is 1-based; zero means the segment
// carries no same-name-sibling index.
type Segment struct {
	Name  Name
	Index int
}

// NewSegment returns an index-less segment.
func NewSegment(name Name) Segment {
	return Segment{Name: name}
}

func (s Segment) HasIndex() bool {
	return s.Index > 0
}

// WithIndex returns a copy of s carrying index i (0 clears it).
func (s Segment) WithIndex(i int) Segment {
	s.Index = i
	return s
}

func (s Segment) String() string {
	if s.Index > 0 {
		return s.Name.String() + "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Name.String()
}

// ParseSegment parses "name" or "name[index]".
func ParseSegment(s string) (Segment, error) {
	if s == "" {
		return Segment{}, fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	open := strings.IndexByte(s, '[')
	if open < 0 {
		if strings.IndexByte(s, ']') >= 0 {
			return Segment{}, fmt.Errorf("%w: unexpected ']' in %q", ErrInvalidPath, s)
		}
		return NewSegment(ParseName(s)), nil
	}
	if open == 0 {
		return Segment{}, fmt.Errorf("%w: missing name in %q", ErrInvalidPath, s)
	}
	if !strings.HasSuffix(s, "]") {
		return Segment{}, fmt.Errorf("%w: unterminated index in %q", ErrInvalidPath, s)
	}
	idx, err := strconv.Atoi(s[open+1 : len(s)-1])
	if err != nil || idx < 1 {
		return Segment{}, fmt.Errorf("%w: bad index in %q", ErrInvalidPath, s)
	}
	return Segment{Name: ParseName(s[:open]), Index: idx}, nil
}

// Path is an immutable sequence of segments from the root. The zero value is
// the root path.
type Path struct {
	segments []Segment
}

// Root is the path of the root node.
var Root = Path{}

// NewPath builds a path from segments.
func NewPath(segments ...Segment) Path {
	if len(segments) == 0 {
		return Root
	}
	return Path{segments: append([]Segment(nil), segments...)}
}

// ParsePath parses `/a/b[2]/c`. The empty string and "/" both denote the root.
func ParsePath(s string) (Path, error) {
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return Root, nil
	}
	parts := strings.Split(s, "/")
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		seg, err := ParseSegment(part)
		if err != nil {
			return Path{}, err
		}
		segments = append(segments, seg)
	}
	return Path{segments: segments}, nil
}

// MustParsePath is ParsePath for literals; it panics on malformed input.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) IsRoot() bool { return len(p.segments) == 0 }
func (p Path) Len() int     { return len(p.segments) }

// Segments returns a copy of the path's segments.
func (p Path) Segments() []Segment {
	return append([]Segment(nil), p.segments...)
}

// Segment returns the i-th segment.
func (p Path) Segment(i int) Segment {
	return p.segments[i]
}

// Last returns the final segment; the root has none.
func (p Path) Last() (Segment, bool) {
	if p.IsRoot() {
		return Segment{}, false
	}
	return p.segments[len(p.segments)-1], true
}

// Parent returns the parent path. The parent of the root is the root.
func (p Path) Parent() Path {
	if len(p.segments) <= 1 {
		return Root
	}
	return Path{segments: p.segments[:len(p.segments)-1:len(p.segments)-1]}
}

// Child returns p extended by seg.
func (p Path) Child(seg Segment) Path {
	segments := make([]Segment, len(p.segments)+1)
	copy(segments, p.segments)
	segments[len(p.segments)] = seg
	return Path{segments: segments}
}

// Join appends every segment of rel to p.
func (p Path) Join(rel Path) Path {
	if rel.IsRoot() {
		return p
	}
	segments := make([]Segment, 0, len(p.segments)+len(rel.segments))
	segments = append(segments, p.segments...)
	segments = append(segments, rel.segments...)
	return Path{segments: segments}
}

func (p Path) Equal(o Path) bool {
	if len(p.segments) != len(o.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != o.segments[i] {
			return false
		}
	}
	return true
}

// IsAtOrBelow reports whether p equals ancestor or lies underneath it.
func (p Path) IsAtOrBelow(ancestor Path) bool {
	if len(p.segments) < len(ancestor.segments) {
		return false
	}
	for i := range ancestor.segments {
		if p.segments[i] != ancestor.segments[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether p is a strict ancestor of other.
func (p Path) IsAncestorOf(other Path) bool {
	return len(p.segments) < len(other.segments) && other.IsAtOrBelow(p)
}

// RelativeTo strips base from the front of p.
func (p Path) RelativeTo(base Path) (Path, bool) {
	if !p.IsAtOrBelow(base) {
		return Path{}, false
	}
	return NewPath(p.segments[len(base.segments):]...), true
}

func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	var b strings.Builder
	for _, seg := range p.segments {
		b.WriteByte('/')
		b.WriteString(seg.String())
	}
	return b.String()
}

// RecomputeIndices applies the same-name-sibling rule to an ordered child
// list: names that occur once carry no index, names that occur k >= 2 times
// are numbered 1..k in list order. The input is not modified.
func RecomputeIndices(children []Segment) []Segment {
	counts := make(map[Name]int, len(children))
	for _, seg := range children {
		counts[seg.Name]++
	}
	seen := make(map[Name]int, len(counts))
	out := make([]Segment, len(children))
	for i, seg := range children {
		if counts[seg.Name] < 2 {
			out[i] = seg.WithIndex(0)
			continue
		}
		seen[seg.Name]++
		out[i] = seg.WithIndex(seen[seg.Name])
	}
	return out
}
