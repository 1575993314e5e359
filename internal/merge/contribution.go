package merge

import (
	"time"

	"github.com/aweris/fedfs/internal/graph"
)

// Contribution is one source's read-only view of a single federated path.
// Slices are shared with the producer and must not be modified.
type Contribution struct {
	Source string
	// Path locates the contribution inside its source. Placeholders have
	// no location.
	Path graph.Path

	// Children in the source's order. Indices are ignored; the merged
	// node's indices are recomputed.
	Children   []graph.Segment
	Properties []graph.Property

	// Placeholder marks a contribution that only bridges structure: the
	// source has no content at Path but has something mounted below it.
	Placeholder bool

	// Token is an opaque revalidation token (a content digest, a version).
	Token string

	// ExpiresAt bounds how long the source considers this contribution
	// valid. The zero time never expires.
	ExpiresAt time.Time
}

// IsEmpty reports whether a real contribution has neither children nor
// properties. Placeholders are never empty.
func (c Contribution) IsEmpty() bool {
	return !c.Placeholder && len(c.Children) == 0 && len(c.Properties) == 0
}

func (c Contribution) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// PlanEntry records one contribution consumed by a merge.
type PlanEntry struct {
	Source      string
	Path        graph.Path
	Token       string
	Placeholder bool
	ExpiresAt   time.Time
}

// MergePlan is the provenance of a federated node: the contributions it was
// built from, in priority order.
type MergePlan struct {
	entries []PlanEntry
}

func newMergePlan(contributions []Contribution) *MergePlan {
	entries := make([]PlanEntry, len(contributions))
	for i, c := range contributions {
		entries[i] = PlanEntry{
			Source:      c.Source,
			Path:        c.Path,
			Token:       c.Token,
			Placeholder: c.Placeholder,
			ExpiresAt:   c.ExpiresAt,
		}
	}
	return &MergePlan{entries: entries}
}

func (p *MergePlan) Len() int { return len(p.entries) }

// Entries returns a copy of the plan's entries.
func (p *MergePlan) Entries() []PlanEntry {
	return append([]PlanEntry(nil), p.entries...)
}

// Sources lists contributing sources in priority order.
func (p *MergePlan) Sources() []string {
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.Source
	}
	return out
}

// Entry returns the entry recorded for source.
func (p *MergePlan) Entry(source string) (PlanEntry, bool) {
	for _, e := range p.entries {
		if e.Source == source {
			return e, true
		}
	}
	return PlanEntry{}, false
}

// Token returns the revalidation token recorded for source.
func (p *MergePlan) Token(source string) (string, bool) {
	e, ok := p.Entry(source)
	return e.Token, ok
}

// IsExpired reports whether any recorded contribution has expired.
func (p *MergePlan) IsExpired(now time.Time) bool {
	for _, e := range p.entries {
		if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
			return true
		}
	}
	return false
}

// IsStale asks stale for every entry and reports whether any of them is no
// longer current. Nothing is re-read here; the callback decides how to check
// a token.
func (p *MergePlan) IsStale(stale func(PlanEntry) bool) bool {
	for _, e := range p.entries {
		if stale(e) {
			return true
		}
	}
	return false
}
