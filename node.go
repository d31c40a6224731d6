package arbor

import (
	"bytes"
	"iter"
	"reflect"
	"time"
)

// Node is a part of the intermediate tree that entities are translated into.
// The set of node types is closed: *Leaf, *List and *Map.
type Node interface {
	Kind() NodeKind
	isNode()
}

type NodeKind int

const (
	LeafKind NodeKind = iota + 1
	ListKind
	MapKind
)

func (k NodeKind) String() string {
	switch k {
	case LeafKind:
		return "leaf"
	case ListKind:
		return "list"
	case MapKind:
		return "map"
	default:
		return "invalid"
	}
}

// Leaf holds a terminal value. Values are expected to be one of nil, bool,
// int64, uint64, float64, string, []byte or time.Time; the node model itself
// does not validate them.
type Leaf struct {
	value   any
	indexed bool
}

func NewLeaf(value any, indexed bool) *Leaf {
	return &Leaf{value: value, indexed: indexed}
}

func (*Leaf) Kind() NodeKind { return LeafKind }
func (*Leaf) isNode()        {}

func (n *Leaf) Value() any    { return n.value }
func (n *Leaf) Indexed() bool { return n.indexed }
func (n *Leaf) IsNull() bool  { return n.value == nil }

type List struct {
	items []Node
}

func NewList(items ...Node) *List {
	return &List{items: items}
}

func (*List) Kind() NodeKind { return ListKind }
func (*List) isNode()        {}

func (n *List) Len() int { return len(n.items) }

func (n *List) At(i int) Node { return n.items[i] }

func (n *List) Append(item Node) {
	n.items = append(n.items, item)
}

// All iterates over the items in order.
func (n *List) All() iter.Seq2[int, Node] {
	return func(yield func(int, Node) bool) {
		for i, item := range n.items {
			if !yield(i, item) {
				return
			}
		}
	}
}

// Map maps field names to nodes, preserving insertion order.
type Map struct {
	names  []string
	fields map[string]Node
}

func NewMap() *Map {
	return &Map{fields: make(map[string]Node)}
}

func (*Map) Kind() NodeKind { return MapKind }
func (*Map) isNode()        {}

func (n *Map) Len() int { return len(n.names) }

// Set adds or replaces a field. A replaced field keeps its original position.
func (n *Map) Set(name string, value Node) {
	if n.fields == nil {
		n.fields = make(map[string]Node)
	}
	if _, found := n.fields[name]; !found {
		n.names = append(n.names, name)
	}
	n.fields[name] = value
}

func (n *Map) Has(name string) bool {
	_, found := n.fields[name]
	return found
}

func (n *Map) Lookup(name string) (Node, bool) {
	v, found := n.fields[name]
	return v, found
}

// Field returns the named field, failing with *NotFoundError if it is absent.
func (n *Map) Field(name string) (Node, error) {
	v, found := n.fields[name]
	if !found {
		return nil, &NotFoundError{Field: name}
	}
	return v, nil
}

// Names returns field names in insertion order.
func (n *Map) Names() []string {
	return append([]string(nil), n.names...)
}

func (n *Map) All() iter.Seq2[string, Node] {
	return func(yield func(string, Node) bool) {
		for _, name := range n.names {
			if !yield(name, n.fields[name]) {
				return
			}
		}
	}
}

// Equal reports whether two trees are structurally equal, including field
// order and index flags.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a := a.(type) {
	case *Leaf:
		b, ok := b.(*Leaf)
		return ok && a.indexed == b.indexed && leafValuesEqual(a.value, b.value)
	case *List:
		b, ok := b.(*List)
		if !ok || len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case *Map:
		b, ok := b.(*Map)
		if !ok || len(a.names) != len(b.names) {
			return false
		}
		for i, name := range a.names {
			if b.names[i] != name || !Equal(a.fields[name], b.fields[name]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func leafValuesEqual(a, b any) bool {
	switch a := a.(type) {
	case []byte:
		b, ok := b.([]byte)
		return ok && bytes.Equal(a, b)
	case time.Time:
		b, ok := b.(time.Time)
		return ok && a.Equal(b)
	default:
		return reflect.DeepEqual(a, b)
	}
}
