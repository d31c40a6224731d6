package arbor

import (
	"slices"
)

type sliceTranslator[E any] struct {
	elem Translator[E]
}

// SliceOf translates slices element by element, preserving order. A nil slice
// is saved as a null leaf and an empty one as an empty list, so both survive
// a round trip. Omitted elements are dropped from the list.
func SliceOf[E any](elem Translator[E]) Translator[[]E] {
	return &sliceTranslator[E]{elem}
}

func (tr *sliceTranslator[E]) Empty() []E {
	return []E{}
}

func (tr *sliceTranslator[E]) Load(node Node, ctx *LoadContext) ([]E, error) {
	switch node := node.(type) {
	case *Leaf:
		if node.IsNull() {
			return nil, nil
		}
		// a single value where a list is expected, as stores flatten one-element lists
		v, err := tr.elem.Load(node, ctx)
		if err != nil {
			return nil, atPath(err, Root.Index(0))
		}
		return []E{v}, nil
	case *List:
		result := make([]E, 0, node.Len())
		for i, item := range node.All() {
			v, err := tr.elem.Load(item, ctx)
			if err != nil {
				return nil, atPath(err, Root.Index(i))
			}
			result = append(result, v)
		}
		return result, nil
	default:
		return nil, translationErrf(Root, nil, "expected list node, got %s", describeNode(node))
	}
}

func (tr *sliceTranslator[E]) Save(pojo []E, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	if pojo == nil {
		return Produced(NewLeaf(nil, index)), nil
	}
	list := NewList()
	for i, v := range pojo {
		out, err := tr.elem.Save(v, path.Index(i), index, ctx)
		if err != nil {
			return Omitted, savedAt(err, path.Index(i))
		}
		if !out.IsOmitted() {
			list.Append(out.Node())
		}
	}
	return Produced(list), nil
}

type mapTranslator[V any] struct {
	value Translator[V]
}

// MapOf translates string-keyed maps into map nodes with fields in sorted key
// order. Omitted values are left out.
func MapOf[V any](value Translator[V]) Translator[map[string]V] {
	return &mapTranslator[V]{value}
}

func (tr *mapTranslator[V]) Empty() map[string]V {
	return map[string]V{}
}

func (tr *mapTranslator[V]) Load(node Node, ctx *LoadContext) (map[string]V, error) {
	switch node := node.(type) {
	case *Leaf:
		if node.IsNull() {
			return nil, nil
		}
	case *Map:
		result := make(map[string]V, node.Len())
		for name, child := range node.All() {
			v, err := tr.value.Load(child, ctx)
			if err != nil {
				return nil, atPath(err, Root.Extend(name))
			}
			result[name] = v
		}
		return result, nil
	}
	return nil, translationErrf(Root, nil, "expected map node, got %s", describeNode(node))
}

func (tr *mapTranslator[V]) Save(pojo map[string]V, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	if pojo == nil {
		return Produced(NewLeaf(nil, index)), nil
	}
	keys := make([]string, 0, len(pojo))
	for k := range pojo {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	m := NewMap()
	for _, k := range keys {
		out, err := tr.value.Save(pojo[k], path.Extend(k), index, ctx)
		if err != nil {
			return Omitted, savedAt(err, path.Extend(k))
		}
		if !out.IsOmitted() {
			m.Set(k, out.Node())
		}
	}
	return Produced(m), nil
}

type ptrTranslator[T any] struct {
	inner Translator[T]
}

// PtrOf translates pointers; nil is saved as a null leaf.
func PtrOf[T any](inner Translator[T]) Translator[*T] {
	return &ptrTranslator[T]{inner}
}

func (tr *ptrTranslator[T]) Load(node Node, ctx *LoadContext) (*T, error) {
	if leaf, ok := node.(*Leaf); ok && leaf.IsNull() {
		return nil, nil
	}
	v, err := tr.inner.Load(node, ctx)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (tr *ptrTranslator[T]) Save(pojo *T, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	if pojo == nil {
		return Produced(NewLeaf(nil, index)), nil
	}
	return tr.inner.Save(*pojo, path, index, ctx)
}
