// Package merge combines per-source contributions into federated nodes.
//
// Contributions are processed in priority order, first is highest. Two
// strategies exist: SingleContribution copies its only input, and
// MultiContribution merges children and properties from any number of
// inputs. StrategyFor picks one by contribution count; both produce the
// same result for a single contribution.
package merge

import (
	"errors"
	"fmt"

	"github.com/aweris/fedfs/internal/graph"
	"github.com/google/uuid"
)

var (
	ErrNoContributions          = errors.New("merge: no contributions")
	ErrTooManyContributions     = errors.New("merge: single-contribution strategy given several contributions")
	ErrUnknownPlaceholderPolicy = errors.New("merge: unknown placeholder policy")
)

// PlaceholderPolicy decides what happens when a real contribution offers a
// child whose name a placeholder contribution already produced.
type PlaceholderPolicy int

const (
	// PlaceholderKeep appends the real child as a further same-name sibling.
	PlaceholderKeep PlaceholderPolicy = iota
	// PlaceholderYield lets the real child take over the placeholder's entry,
	// keeping its position.
	PlaceholderYield
)

// ParsePlaceholderPolicy maps "keep" and "yield" to policies.
func ParsePlaceholderPolicy(s string) (PlaceholderPolicy, error) {
	switch s {
	case "", "keep":
		return PlaceholderKeep, nil
	case "yield":
		return PlaceholderYield, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPlaceholderPolicy, s)
}

func (p PlaceholderPolicy) String() string {
	if p == PlaceholderYield {
		return "yield"
	}
	return "keep"
}

// Options tune a merge.
type Options struct {
	// RemoveDuplicates drops a merged property value equal to one already
	// accumulated for the same property.
	RemoveDuplicates bool
	// AdoptUUID takes a node's identity from the first single-valued,
	// parseable "uuid" property found in priority order.
	AdoptUUID    bool
	Placeholders PlaceholderPolicy
}

// DefaultOptions removes duplicates and adopts source identities.
func DefaultOptions() Options {
	return Options{RemoveDuplicates: true, AdoptUUID: true}
}

// Strategy fills node from contributions and attaches a merge plan.
type Strategy interface {
	Merge(node *FederatedNode, contributions []Contribution, isRoot bool) error
}

// StrategyFor returns the single-contribution strategy for exactly one
// contribution and the multi-contribution strategy otherwise.
func StrategyFor(count int, opts Options) Strategy {
	if count == 1 {
		return SingleContribution{Options: opts}
	}
	return MultiContribution{Options: opts}
}

// Merge builds the federated node at path from contributions.
func Merge(path graph.Path, contributions []Contribution, isRoot bool, opts Options) (*FederatedNode, *MergePlan, error) {
	if len(contributions) == 0 {
		return nil, nil, ErrNoContributions
	}
	node := newFederatedNode(path)
	if err := StrategyFor(len(contributions), opts).Merge(node, contributions, isRoot); err != nil {
		return nil, nil, err
	}
	return node, node.Plan, nil
}

// SingleContribution copies one contribution verbatim.
type SingleContribution struct {
	Options Options
}

func (s SingleContribution) Merge(node *FederatedNode, contributions []Contribution, isRoot bool) error {
	switch len(contributions) {
	case 0:
		return ErrNoContributions
	case 1:
	default:
		return fmt.Errorf("%w: %d", ErrTooManyContributions, len(contributions))
	}
	c := contributions[0]

	node.Children = graph.RecomputeIndices(c.Children)
	node.Origins = make([][]Origin, len(c.Children))
	for i, seg := range c.Children {
		node.Origins[i] = []Origin{{Source: c.Source, Segment: seg, Placeholder: c.Placeholder}}
	}

	var id identity
	for _, p := range c.Properties {
		if id.claim(p, isRoot, s.Options.AdoptUUID) {
			continue
		}
		node.Properties[p.Name()] = p
	}

	id.apply(node, isRoot)
	node.Plan = newMergePlan(contributions)
	return nil
}

// MultiContribution merges any number of contributions.
type MultiContribution struct {
	Options Options
}

func (m MultiContribution) Merge(node *FederatedNode, contributions []Contribution, isRoot bool) error {
	if len(contributions) == 0 {
		return ErrNoContributions
	}

	node.Children, node.Origins = m.mergeChildren(contributions)

	var id identity
	for _, c := range contributions {
		for _, p := range c.Properties {
			if id.claim(p, isRoot, m.Options.AdoptUUID) {
				continue
			}
			if existing, ok := node.Properties[p.Name()]; ok {
				p = mergeProperty(existing, p, m.Options.RemoveDuplicates)
			}
			node.Properties[p.Name()] = p
		}
	}

	id.apply(node, isRoot)
	node.Plan = newMergePlan(contributions)
	return nil
}

type childEntry struct {
	name graph.Name
	// placeholder is set while only placeholder contributions produced
	// this entry.
	placeholder bool
	origins     []Origin
}

// mergeChildren appends real children in priority order. A placeholder
// child never adds a name that is already present; its origin joins the
// first child of that name instead, so the mounted source is still
// consulted when that child is read.
func (m MultiContribution) mergeChildren(contributions []Contribution) ([]graph.Segment, [][]Origin) {
	var entries []childEntry

	for _, c := range contributions {
		for _, seg := range c.Children {
			origin := Origin{Source: c.Source, Segment: seg, Placeholder: c.Placeholder}
			if c.Placeholder {
				if i := firstEntry(entries, seg.Name, false); i >= 0 {
					entries[i].origins = append(entries[i].origins, origin)
					continue
				}
				entries = append(entries, childEntry{name: seg.Name, placeholder: true, origins: []Origin{origin}})
				continue
			}
			if m.Options.Placeholders == PlaceholderYield {
				if i := firstEntry(entries, seg.Name, true); i >= 0 {
					entries[i].placeholder = false
					entries[i].origins = append(entries[i].origins, origin)
					continue
				}
			}
			entries = append(entries, childEntry{name: seg.Name, origins: []Origin{origin}})
		}
	}

	segments := make([]graph.Segment, len(entries))
	origins := make([][]Origin, len(entries))
	for i, e := range entries {
		segments[i] = graph.NewSegment(e.name)
		origins[i] = e.origins
	}
	return graph.RecomputeIndices(segments), origins
}

// firstEntry returns the position of the first entry named name, limited to
// placeholder-only entries when placeholderOnly is set.
func firstEntry(entries []childEntry, name graph.Name, placeholderOnly bool) int {
	for i, e := range entries {
		if e.name == name && (!placeholderOnly || e.placeholder) {
			return i
		}
	}
	return -1
}

// identity tracks the uuid adopted while walking contributions.
type identity struct {
	id      uuid.UUID
	adopted bool
}

// claim reports whether p is an identity property that must not be copied
// into the merged property map. The root never takes identity from its
// sources. With adoption on, every valid single-valued uuid property is an
// identity claim and the first one wins.
func (i *identity) claim(p graph.Property, isRoot, adopt bool) bool {
	if !graph.IsUUIDName(p.Name()) {
		return false
	}
	if isRoot {
		return true
	}
	if !adopt || !p.IsSingle() {
		return false
	}
	id, ok := graph.ToUUID(p.Value())
	if !ok {
		return false
	}
	if !i.adopted {
		i.id, i.adopted = id, true
	}
	return true
}

// apply sets the node's identity and forces the explicit uuid property to
// match it.
func (i *identity) apply(node *FederatedNode, isRoot bool) {
	switch {
	case isRoot:
		node.ID = RootID
	case i.adopted:
		node.ID = i.id
	default:
		node.ID = pathID(node.Path)
	}
	node.Properties[graph.UUIDName] = graph.NewProperty(graph.UUIDName, node.ID)
}

// mergeProperty combines two same-named properties. Two single values
// become a two-valued property; otherwise values are concatenated, skipping
// values equal to an already accumulated one when removeDuplicates is set.
func mergeProperty(p1, p2 graph.Property, removeDuplicates bool) graph.Property {
	if p1.IsEmpty() {
		return p2
	}
	if p2.IsEmpty() {
		return p1
	}

	if p1.IsSingle() && p2.IsSingle() {
		v1, v2 := p1.Value(), p2.Value()
		if removeDuplicates && graph.ValuesEqual(v1, v2) {
			return p1
		}
		return graph.NewMultiProperty(p1.Name(), v1, v2)
	}

	values := p1.Values()
	if !removeDuplicates {
		return graph.NewMultiProperty(p1.Name(), append(values, p2.Values()...)...)
	}
	for _, v := range p2.Values() {
		if !containsValue(values, v) {
			values = append(values, v)
		}
	}
	return graph.NewMultiProperty(p1.Name(), values...)
}

func containsValue(values []any, v any) bool {
	for _, existing := range values {
		if graph.ValuesEqual(existing, v) {
			return true
		}
	}
	return false
}
