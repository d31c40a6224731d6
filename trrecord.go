package arbor

import (
	"fmt"
)

// RecordTranslator translates a struct (or any record-like value) field by
// field, each field through its own translator.
type RecordTranslator[T any] struct {
	name   string
	fields []*recordField[T]
	byName map[string]*recordField[T]
	strict bool
}

type recordField[T any] struct {
	name     string
	index    indexMarker
	required bool
	save     func(pojo *T, path Path, index bool, ctx *SaveContext) (Outcome, error)
	load     func(node Node, ctx *LoadContext, pojo *T) error
	empty    func(pojo *T)
}

type indexMarker int

const (
	inheritIndex indexMarker = iota
	forceIndex
	forceUnindex
)

func (m indexMarker) apply(index bool) bool {
	switch m {
	case forceIndex:
		return true
	case forceUnindex:
		return false
	default:
		return index
	}
}

type RecordBuilder[T any] struct {
	rec *RecordTranslator[T]
}

// Record defines a record translator. f declares the fields via Field.
func Record[T any](f func(b *RecordBuilder[T])) *RecordTranslator[T] {
	var zero T
	rec := &RecordTranslator[T]{
		name:   fmt.Sprintf("%T", zero),
		byName: make(map[string]*recordField[T]),
	}
	b := &RecordBuilder[T]{rec}
	if f != nil {
		f(b)
	}
	return rec
}

// Strict makes unknown fields in a loaded map node an error. By default they
// are ignored.
func (b *RecordBuilder[T]) Strict() {
	b.rec.strict = true
}

type FieldOption func(opt *fieldOptions)

type fieldOptions struct {
	index    indexMarker
	required bool
}

// Indexed marks the field as indexed regardless of the inherited instruction.
func Indexed() FieldOption {
	return func(opt *fieldOptions) { opt.index = forceIndex }
}

// Unindexed marks the field as not indexed regardless of the inherited
// instruction.
func Unindexed() FieldOption {
	return func(opt *fieldOptions) { opt.index = forceUnindex }
}

// Required makes the absence of the field on load a TranslationError instead
// of loading the empty value.
func Required() FieldOption {
	return func(opt *fieldOptions) { opt.required = true }
}

// Field declares a record field. ref returns a pointer to the field within the
// record; it is used both to read the field on save and to fill it on load.
func Field[T, F any](b *RecordBuilder[T], name string, ref func(pojo *T) *F, tr Translator[F], opts ...FieldOption) {
	var o fieldOptions
	for _, opt := range opts {
		opt(&o)
	}
	if _, dup := b.rec.byName[name]; dup {
		panic(fmt.Errorf("arbor: record %s: duplicate field %q", b.rec.name, name))
	}
	fld := &recordField[T]{
		name:     name,
		index:    o.index,
		required: o.required,
		save: func(pojo *T, path Path, index bool, ctx *SaveContext) (Outcome, error) {
			return tr.Save(*ref(pojo), path, index, ctx)
		},
		load: func(node Node, ctx *LoadContext, pojo *T) error {
			v, err := tr.Load(node, ctx)
			if err != nil {
				return err
			}
			*ref(pojo) = v
			return nil
		},
		empty: func(pojo *T) {
			*ref(pojo) = emptyValueOf(tr)
		},
	}
	b.rec.fields = append(b.rec.fields, fld)
	b.rec.byName[name] = fld
}

func (rec *RecordTranslator[T]) FieldNames() []string {
	names := make([]string, len(rec.fields))
	for i, fld := range rec.fields {
		names[i] = fld.name
	}
	return names
}

func (rec *RecordTranslator[T]) Load(node Node, ctx *LoadContext) (T, error) {
	var result T
	m, ok := node.(*Map)
	if !ok {
		return result, translationErrf(Root, nil, "%s: expected map node, got %s", rec.name, describeNode(node))
	}
	if rec.strict {
		for name := range m.All() {
			if rec.byName[name] == nil {
				return result, translationErrf(Root.Extend(name), nil, "%s has no such field", rec.name)
			}
		}
	}
	for _, fld := range rec.fields {
		child, found := m.Lookup(fld.name)
		if !found {
			if fld.required {
				_, err := m.Field(fld.name)
				return result, translationErrf(Root.Extend(fld.name), err, "required field missing")
			}
			fld.empty(&result)
			continue
		}
		if err := fld.load(child, ctx, &result); err != nil {
			return result, atPath(err, Root.Extend(fld.name))
		}
	}
	return result, nil
}

func (rec *RecordTranslator[T]) Save(pojo T, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	m := NewMap()
	for _, fld := range rec.fields {
		fieldPath := path.Extend(fld.name)
		out, err := fld.save(&pojo, fieldPath, fld.index.apply(index), ctx)
		if err != nil {
			return Omitted, savedAt(err, fieldPath)
		}
		if !out.IsOmitted() {
			m.Set(fld.name, out.Node())
		}
	}
	return Produced(m), nil
}
