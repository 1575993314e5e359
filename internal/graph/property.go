package graph

import (
	"bytes"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// UUIDName is the canonical name of the identity property carried by every
// federated node.
var UUIDName = NewName("uuid")

// IsUUIDName matches identity properties on local name only, so "jcr:uuid"
// and "uuid" both qualify.
func IsUUIDName(n Name) bool {
	return n.Local == UUIDName.Local
}

// Property is a named value list. Single- and multi-valued properties are
// distinct even when a multi-valued property happens to hold one value.
type Property struct {
	name   Name
	values []any
	multi  bool
}

// NewProperty returns a single-valued property.
func NewProperty(name Name, value any) Property {
	return Property{name: name, values: []any{value}}
}

// NewMultiProperty returns a multi-valued property.
func NewMultiProperty(name Name, values ...any) Property {
	return Property{name: name, values: append([]any(nil), values...), multi: true}
}

func (p Property) Name() Name     { return p.name }
func (p Property) Size() int      { return len(p.values) }
func (p Property) IsEmpty() bool  { return len(p.values) == 0 }
func (p Property) IsMulti() bool  { return p.multi }
func (p Property) IsSingle() bool { return !p.multi && len(p.values) == 1 }

// Values returns a copy of the property's values.
func (p Property) Values() []any {
	return append([]any(nil), p.values...)
}

// Value returns the first value, or nil for an empty property.
func (p Property) Value() any {
	if len(p.values) == 0 {
		return nil
	}
	return p.values[0]
}

// Equal compares names, multiplicity and values using ValuesEqual.
func (p Property) Equal(o Property) bool {
	if p.name != o.name || p.multi != o.multi || len(p.values) != len(o.values) {
		return false
	}
	for i := range p.values {
		if !ValuesEqual(p.values[i], o.values[i]) {
			return false
		}
	}
	return true
}

// ValuesEqual is the canonical value comparator used when merging property
// values.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na.equal(nb)
		}
		return false
	}
	switch va := a.(type) {
	case time.Time:
		vb, ok := b.(time.Time)
		return ok && va.Equal(vb)
	case []byte:
		vb, ok := b.([]byte)
		return ok && bytes.Equal(va, vb)
	case uuid.UUID:
		vb, ok := ToUUID(b)
		return ok && va == vb
	}
	if vb, ok := b.(uuid.UUID); ok {
		va, ok := ToUUID(a)
		return ok && va == vb
	}
	return reflect.DeepEqual(a, b)
}

type numKind uint8

const (
	numSigned numKind = iota
	numUnsigned
	numFloat
)

// number holds a numeric value without losing integer precision.
type number struct {
	kind numKind
	i    int64
	u    uint64
	f    float64
}

func (n number) float() float64 {
	switch n.kind {
	case numSigned:
		return float64(n.i)
	case numUnsigned:
		return float64(n.u)
	}
	return n.f
}

// equal compares integers exactly; floats only when either side is one.
func (n number) equal(o number) bool {
	switch {
	case n.kind == numFloat || o.kind == numFloat:
		return n.float() == o.float()
	case n.kind == o.kind:
		return n.i == o.i && n.u == o.u
	case n.kind == numSigned:
		return n.i >= 0 && uint64(n.i) == o.u
	default:
		return o.i >= 0 && uint64(o.i) == n.u
	}
}

func toNumber(v any) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{kind: numSigned, i: int64(n)}, true
	case int8:
		return number{kind: numSigned, i: int64(n)}, true
	case int16:
		return number{kind: numSigned, i: int64(n)}, true
	case int32:
		return number{kind: numSigned, i: int64(n)}, true
	case int64:
		return number{kind: numSigned, i: n}, true
	case uint:
		return number{kind: numUnsigned, u: uint64(n)}, true
	case uint8:
		return number{kind: numUnsigned, u: uint64(n)}, true
	case uint16:
		return number{kind: numUnsigned, u: uint64(n)}, true
	case uint32:
		return number{kind: numUnsigned, u: uint64(n)}, true
	case uint64:
		return number{kind: numUnsigned, u: n}, true
	case float32:
		return number{kind: numFloat, f: float64(n)}, true
	case float64:
		return number{kind: numFloat, f: n}, true
	}
	return number{}, false
}
