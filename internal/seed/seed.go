// Package seed loads node trees from YAML files into a node store and
// exports them back.
//
// A seed file describes the root's properties and children:
//
//	properties:
//	  title: Home
//	children:
//	  - name: docs
//	    properties:
//	      tags: [guide, intro]
//	    children:
//	      - name: page
//
// Scalar property values become single-valued properties, lists become
// multi-valued ones. Files ending in .zst are zstd-compressed.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aweris/fedfs/internal/compression"
	"github.com/aweris/fedfs/internal/graph"
	"github.com/aweris/fedfs/internal/nodestore"
)

var validate = validator.New()

// Tree is the root of a seed file.
type Tree struct {
	Properties map[string]any `yaml:"properties,omitempty"`
	Children   []Node         `yaml:"children,omitempty" validate:"dive"`
}

// Node is one non-root node.
type Node struct {
	Name       string         `yaml:"name" validate:"required,excludesall=/[]"`
	Properties map[string]any `yaml:"properties,omitempty"`
	Children   []Node         `yaml:"children,omitempty" validate:"dive"`
}

// Decode parses and validates a YAML seed tree.
func Decode(r io.Reader) (*Tree, error) {
	var t Tree
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := validate.Struct(&t); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return &t, nil
}

// ReadFile decodes the seed at path, decompressing .zst files.
func ReadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, compression.Extension) || compression.IsCompressed(data) {
		c, err := compression.NewCompressor(0)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		if data, err = c.Decompress(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return Decode(bytes.NewReader(data))
}

// WriteFile encodes t to path, compressing when path ends in .zst.
func WriteFile(path string, t *Tree) error {
	var buf bytes.Buffer
	if err := Encode(&buf, t); err != nil {
		return err
	}
	data := buf.Bytes()
	if strings.HasSuffix(path, compression.Extension) {
		c, err := compression.NewCompressor(3)
		if err != nil {
			return err
		}
		defer c.Close()
		data = c.Compress(data)
	}
	return os.WriteFile(path, data, 0644)
}

func Encode(w io.Writer, t *Tree) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode seed: %w", err)
	}
	return enc.Close()
}

// Apply adds the tree below the store's root: root properties are set and
// children are appended after any existing ones.
func (t *Tree) Apply(s *nodestore.Store) error {
	if err := setProperties(s, s.Root(), t.Properties); err != nil {
		return err
	}
	return addChildren(s, s.Root(), t.Children)
}

// Load creates a new store holding the tree.
func (t *Tree) Load(opts ...nodestore.Option) (*nodestore.Store, error) {
	s := nodestore.New(opts...)
	if err := t.Apply(s); err != nil {
		return nil, err
	}
	return s, nil
}

func addChildren(s *nodestore.Store, parent *nodestore.Node, children []Node) error {
	for _, child := range children {
		n, err := s.CreateNode(parent, graph.ParseName(child.Name))
		if err != nil {
			return fmt.Errorf("create %s: %w", child.Name, err)
		}
		if err := setProperties(s, n, child.Properties); err != nil {
			return err
		}
		if err := addChildren(s, n, child.Children); err != nil {
			return err
		}
	}
	return nil
}

func setProperties(s *nodestore.Store, n *nodestore.Node, props map[string]any) error {
	for key, v := range props {
		if err := s.SetProperty(n, ToProperty(graph.ParseName(key), v)); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// ToProperty converts a seed value: lists become multi-valued properties,
// anything else a single value.
func ToProperty(name graph.Name, v any) graph.Property {
	if list, ok := v.([]any); ok {
		return graph.NewMultiProperty(name, list...)
	}
	return graph.NewProperty(name, v)
}

// Export snapshots the subtree of s rooted at path.
func Export(s *nodestore.Store, path graph.Path) (*Tree, error) {
	snap, ok := s.Snapshot(path)
	if !ok {
		return nil, fmt.Errorf("export: no node at %s", path)
	}
	children, err := exportChildren(s, snap)
	if err != nil {
		return nil, err
	}
	return &Tree{Properties: FromProperties(snap.Properties), Children: children}, nil
}

func exportChildren(s *nodestore.Store, parent nodestore.NodeSnapshot) ([]Node, error) {
	var out []Node
	for _, seg := range parent.Children {
		snap, ok := s.Snapshot(parent.Path.Child(seg))
		if !ok {
			// removed concurrently
			continue
		}
		children, err := exportChildren(s, snap)
		if err != nil {
			return nil, err
		}
		out = append(out, Node{
			Name:       seg.Name.String(),
			Properties: FromProperties(snap.Properties),
			Children:   children,
		})
	}
	return out, nil
}

// FromProperties converts properties into their seed form: single values as
// scalars, multi-valued properties as lists.
func FromProperties(props []graph.Property) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for _, p := range props {
		if p.IsMulti() {
			out[p.Name().String()] = p.Values()
		} else {
			out[p.Name().String()] = p.Value()
		}
	}
	return out
}

// SortedKeys returns the property names of m in order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
