package arbor

import (
	"encoding"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"
)

var reflectedTranslators sync.Map

var (
	timeType            = reflect.TypeOf((*time.Time)(nil)).Elem()
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// valueTranslator is the reflection-driven counterpart of Translator, built
// once per type and then reused for every value.
type valueTranslator interface {
	load(node Node, ctx *LoadContext, dst reflect.Value) error
	save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error)
	empty(dst reflect.Value)
}

// Reflect derives a translator for T from its structure and `arbor` struct
// tags:
//
//	Name  string   `arbor:"name"`
//	Notes string   `arbor:",noindex"`
//	Tags  []string `arbor:",omitempty"`
//	Owner string   `arbor:",required,index"`
//	Cache []byte   `arbor:"-"`
//
// Field names default to the Go field name. The translator graph is built on
// first use and cached; unsupported field types panic at that point.
func Reflect[T any]() Translator[T] {
	return reflected[T]{reflectedTranslatorOf(reflect.TypeFor[T]())}
}

type reflected[T any] struct {
	vt valueTranslator
}

func (tr reflected[T]) Load(node Node, ctx *LoadContext) (T, error) {
	var result T
	err := tr.vt.load(node, ctx, reflect.ValueOf(&result).Elem())
	return result, err
}

func (tr reflected[T]) Save(pojo T, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return tr.vt.save(reflect.ValueOf(&pojo).Elem(), path, index, ctx)
}

func (tr reflected[T]) Empty() T {
	var result T
	tr.vt.empty(reflect.ValueOf(&result).Elem())
	return result
}

func reflectedTranslatorOf(typ reflect.Type) valueTranslator {
	if v, ok := reflectedTranslators.Load(typ); ok {
		return v.(valueTranslator)
	}
	rb := reflectBuilder{inProgress: make(map[reflect.Type]*lateBound)}
	vt := rb.translatorOf(typ)
	actual, _ := reflectedTranslators.LoadOrStore(typ, vt)
	return actual.(valueTranslator)
}

type reflectBuilder struct {
	inProgress map[reflect.Type]*lateBound
}

// lateBound stands in for a translator whose type is still being built, which
// happens with recursive types.
type lateBound struct {
	vt valueTranslator
}

func (lb *lateBound) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	return lb.vt.load(node, ctx, dst)
}
func (lb *lateBound) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return lb.vt.save(v, path, index, ctx)
}
func (lb *lateBound) empty(dst reflect.Value) { lb.vt.empty(dst) }

func (rb *reflectBuilder) translatorOf(typ reflect.Type) valueTranslator {
	if v, ok := reflectedTranslators.Load(typ); ok {
		return v.(valueTranslator)
	}
	if lb := rb.inProgress[typ]; lb != nil {
		return lb
	}

	switch {
	case typ == timeType:
		return typedValue[time.Time]{Time()}
	case typ.Kind() == reflect.Slice && typ.Elem().Kind() == reflect.Uint8:
		return bytesValue{}
	case typ.Kind() != reflect.Pointer && typ.Implements(textMarshalerType) && reflect.PointerTo(typ).Implements(textUnmarshalerType):
		return textValue{}
	}

	switch typ.Kind() {
	case reflect.String:
		return stringValue{}
	case reflect.Bool:
		return boolValue{}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intValue{}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return uintValue{}
	case reflect.Float32, reflect.Float64:
		return floatValue{}
	case reflect.Pointer:
		lb := &lateBound{}
		rb.inProgress[typ] = lb
		lb.vt = &ptrValue{elem: rb.translatorOf(typ.Elem())}
		delete(rb.inProgress, typ)
		return lb.vt
	case reflect.Slice:
		lb := &lateBound{}
		rb.inProgress[typ] = lb
		lb.vt = &sliceValue{typ: typ, elem: rb.translatorOf(typ.Elem())}
		delete(rb.inProgress, typ)
		return lb.vt
	case reflect.Map:
		if typ.Key().Kind() != reflect.String {
			panic(fmt.Errorf("arbor: %v: only string-keyed maps are supported", typ))
		}
		lb := &lateBound{}
		rb.inProgress[typ] = lb
		lb.vt = &mapValue{typ: typ, elem: rb.translatorOf(typ.Elem())}
		delete(rb.inProgress, typ)
		return lb.vt
	case reflect.Struct:
		lb := &lateBound{}
		rb.inProgress[typ] = lb
		lb.vt = rb.structTranslatorOf(typ)
		delete(rb.inProgress, typ)
		return lb.vt
	default:
		panic(fmt.Errorf("arbor: unsupported type %v", typ))
	}
}

type structValue struct {
	typ    reflect.Type
	fields []*structField
}

type structField struct {
	name      string
	index     []int
	marker    indexMarker
	omitEmpty bool
	required  bool
	vt        valueTranslator
}

func (rb *reflectBuilder) structTranslatorOf(typ reflect.Type) *structValue {
	sv := &structValue{typ: typ}
	seen := make(map[string]bool)
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("arbor")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = sf.Name
		}
		if seen[name] {
			panic(fmt.Errorf("arbor: %v: duplicate field name %q", typ, name))
		}
		seen[name] = true

		fld := &structField{
			name:  name,
			index: sf.Index,
			vt:    rb.translatorOf(sf.Type),
		}
		for _, opt := range strings.Split(opts, ",") {
			switch opt {
			case "":
			case "index":
				fld.marker = forceIndex
			case "noindex":
				fld.marker = forceUnindex
			case "omitempty":
				fld.omitEmpty = true
			case "required":
				fld.required = true
			default:
				panic(fmt.Errorf("arbor: %v.%s: unknown tag option %q", typ, sf.Name, opt))
			}
		}
		sv.fields = append(sv.fields, fld)
	}
	return sv
}

func (sv *structValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	m, ok := node.(*Map)
	if !ok {
		return translationErrf(Root, nil, "%v: expected map node, got %s", sv.typ, describeNode(node))
	}
	for _, fld := range sv.fields {
		fv := dst.FieldByIndex(fld.index)
		child, found := m.Lookup(fld.name)
		if !found {
			if fld.required {
				_, err := m.Field(fld.name)
				return translationErrf(Root.Extend(fld.name), err, "required field missing")
			}
			fld.vt.empty(fv)
			continue
		}
		if err := fld.vt.load(child, ctx, fv); err != nil {
			return atPath(err, Root.Extend(fld.name))
		}
	}
	return nil
}

func (sv *structValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	m := NewMap()
	for _, fld := range sv.fields {
		fv := v.FieldByIndex(fld.index)
		if fld.omitEmpty && isEmptyValue(fv) {
			continue
		}
		fieldPath := path.Extend(fld.name)
		out, err := fld.vt.save(fv, fieldPath, fld.marker.apply(index), ctx)
		if err != nil {
			return Omitted, savedAt(err, fieldPath)
		}
		if !out.IsOmitted() {
			m.Set(fld.name, out.Node())
		}
	}
	return Produced(m), nil
}

func (sv *structValue) empty(dst reflect.Value) {
	dst.SetZero()
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.String:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}

type ptrValue struct {
	elem valueTranslator
}

func (pv *ptrValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	if leaf, ok := node.(*Leaf); ok && leaf.IsNull() {
		dst.SetZero()
		return nil
	}
	ptr := reflect.New(dst.Type().Elem())
	if err := pv.elem.load(node, ctx, ptr.Elem()); err != nil {
		return err
	}
	dst.Set(ptr)
	return nil
}

func (pv *ptrValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	if v.IsNil() {
		return Produced(NewLeaf(nil, index)), nil
	}
	return pv.elem.save(v.Elem(), path, index, ctx)
}

func (pv *ptrValue) empty(dst reflect.Value) { dst.SetZero() }

type sliceValue struct {
	typ  reflect.Type
	elem valueTranslator
}

func (sv *sliceValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	switch node := node.(type) {
	case *Leaf:
		if node.IsNull() {
			dst.SetZero()
			return nil
		}
		result := reflect.MakeSlice(sv.typ, 1, 1)
		if err := sv.elem.load(node, ctx, result.Index(0)); err != nil {
			return atPath(err, Root.Index(0))
		}
		dst.Set(result)
		return nil
	case *List:
		result := reflect.MakeSlice(sv.typ, node.Len(), node.Len())
		for i, item := range node.All() {
			if err := sv.elem.load(item, ctx, result.Index(i)); err != nil {
				return atPath(err, Root.Index(i))
			}
		}
		dst.Set(result)
		return nil
	default:
		return translationErrf(Root, nil, "expected list node, got %s", describeNode(node))
	}
}

func (sv *sliceValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	if v.IsNil() {
		return Produced(NewLeaf(nil, index)), nil
	}
	list := NewList()
	for i := 0; i < v.Len(); i++ {
		out, err := sv.elem.save(v.Index(i), path.Index(i), index, ctx)
		if err != nil {
			return Omitted, savedAt(err, path.Index(i))
		}
		if !out.IsOmitted() {
			list.Append(out.Node())
		}
	}
	return Produced(list), nil
}

func (sv *sliceValue) empty(dst reflect.Value) {
	dst.Set(reflect.MakeSlice(sv.typ, 0, 0))
}

type mapValue struct {
	typ  reflect.Type
	elem valueTranslator
}

func (mv *mapValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	switch node := node.(type) {
	case *Leaf:
		if node.IsNull() {
			dst.SetZero()
			return nil
		}
	case *Map:
		result := reflect.MakeMapWithSize(mv.typ, node.Len())
		for name, child := range node.All() {
			ev := reflect.New(mv.typ.Elem()).Elem()
			if err := mv.elem.load(child, ctx, ev); err != nil {
				return atPath(err, Root.Extend(name))
			}
			result.SetMapIndex(reflect.ValueOf(name).Convert(mv.typ.Key()), ev)
		}
		dst.Set(result)
		return nil
	}
	return translationErrf(Root, nil, "expected map node, got %s", describeNode(node))
}

func (mv *mapValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	if v.IsNil() {
		return Produced(NewLeaf(nil, index)), nil
	}
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(a.String(), b.String())
	})
	m := NewMap()
	for _, k := range keys {
		name := k.String()
		out, err := mv.elem.save(v.MapIndex(k), path.Extend(name), index, ctx)
		if err != nil {
			return Omitted, savedAt(err, path.Extend(name))
		}
		if !out.IsOmitted() {
			m.Set(name, out.Node())
		}
	}
	return Produced(m), nil
}

func (mv *mapValue) empty(dst reflect.Value) {
	dst.Set(reflect.MakeMap(mv.typ))
}

// typedValue adapts a Translator of an exact type to the reflection world.
type typedValue[T any] struct {
	tr Translator[T]
}

func (tv typedValue[T]) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	v, err := tv.tr.Load(node, ctx)
	if err != nil {
		return err
	}
	dst.Set(reflect.ValueOf(v))
	return nil
}

func (tv typedValue[T]) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return tv.tr.Save(v.Interface().(T), path, index, ctx)
}

func (tv typedValue[T]) empty(dst reflect.Value) { dst.SetZero() }

type stringValue struct{}

func (stringValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	s, err := stringTranslator{}.Load(node, ctx)
	if err != nil {
		return err
	}
	dst.SetString(s)
	return nil
}

func (stringValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(v.String(), index)), nil
}

func (stringValue) empty(dst reflect.Value) { dst.SetZero() }

type boolValue struct{}

func (boolValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	b, err := boolTranslator{}.Load(node, ctx)
	if err != nil {
		return err
	}
	dst.SetBool(b)
	return nil
}

func (boolValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(v.Bool(), index)), nil
}

func (boolValue) empty(dst reflect.Value) { dst.SetZero() }

type intValue struct{}

func (intValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	n, err := intTranslator[int64]{}.Load(node, ctx)
	if err != nil {
		return err
	}
	if dst.OverflowInt(n) {
		return translationErrf(Root, nil, "%d overflows %v", n, dst.Type())
	}
	dst.SetInt(n)
	return nil
}

func (intValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(v.Int(), index)), nil
}

func (intValue) empty(dst reflect.Value) { dst.SetZero() }

type uintValue struct{}

func (uintValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	n, err := uintTranslator[uint64]{}.Load(node, ctx)
	if err != nil {
		return err
	}
	if dst.OverflowUint(n) {
		return translationErrf(Root, nil, "%d overflows %v", n, dst.Type())
	}
	dst.SetUint(n)
	return nil
}

func (uintValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(v.Uint(), index)), nil
}

func (uintValue) empty(dst reflect.Value) { dst.SetZero() }

type floatValue struct{}

func (floatValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	f, err := floatTranslator[float64]{}.Load(node, ctx)
	if err != nil {
		return err
	}
	dst.SetFloat(f)
	return nil
}

func (floatValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(v.Float(), index)), nil
}

func (floatValue) empty(dst reflect.Value) { dst.SetZero() }

type bytesValue struct{}

func (bytesValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	b, err := bytesTranslator{}.Load(node, ctx)
	if err != nil {
		return err
	}
	if b == nil {
		dst.SetZero()
	} else {
		dst.SetBytes(b)
	}
	return nil
}

func (bytesValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return bytesTranslator{}.Save(v.Bytes(), path, index, ctx)
}

func (bytesValue) empty(dst reflect.Value) { dst.SetZero() }

type textValue struct{}

func (textValue) load(node Node, ctx *LoadContext, dst reflect.Value) error {
	leaf, err := leafOf(node)
	if err != nil {
		return err
	}
	switch v := leaf.value.(type) {
	case nil:
		dst.SetZero()
		return nil
	case string:
		if err := dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v)); err != nil {
			return translationErrf(Root, err, "cannot parse %v", dst.Type())
		}
		return nil
	default:
		return unexpectedLeaf(leaf, "string")
	}
}

func (textValue) save(v reflect.Value, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return Omitted, translationErrf(path, err, "cannot marshal %v", v.Type())
	}
	return Produced(NewLeaf(string(b), index)), nil
}

func (textValue) empty(dst reflect.Value) { dst.SetZero() }
