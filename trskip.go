package arbor

type skipTranslator[T any] struct {
	inner Translator[T]
	pred  func(v T) bool
}

// SkipIf wraps inner so that values matching pred are omitted on save.
// Loading is delegated unchanged.
func SkipIf[T any](inner Translator[T], pred func(v T) bool) Translator[T] {
	return &skipTranslator[T]{inner, pred}
}

func (tr *skipTranslator[T]) Empty() T {
	return emptyValueOf(tr.inner)
}

func (tr *skipTranslator[T]) Load(node Node, ctx *LoadContext) (T, error) {
	return tr.inner.Load(node, ctx)
}

func (tr *skipTranslator[T]) Save(pojo T, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	if tr.pred(pojo) {
		return Omitted, nil
	}
	return tr.inner.Save(pojo, path, index, ctx)
}

// SkipIfZero omits the zero value of T.
func SkipIfZero[T comparable](inner Translator[T]) Translator[T] {
	return SkipIf(inner, func(v T) bool {
		var zero T
		return v == zero
	})
}

// SkipIfNil omits nil pointers.
func SkipIfNil[T any](inner Translator[*T]) Translator[*T] {
	return SkipIf(inner, func(v *T) bool { return v == nil })
}

// SkipIfEmpty omits nil and empty slices. Loading an absent field gives an
// empty slice.
func SkipIfEmpty[E any](inner Translator[[]E]) Translator[[]E] {
	return SkipIf(inner, func(v []E) bool { return len(v) == 0 })
}

// SkipIfEmptyMap omits nil and empty maps.
func SkipIfEmptyMap[V any](inner Translator[map[string]V]) Translator[map[string]V] {
	return SkipIf(inner, func(v map[string]V) bool { return len(v) == 0 })
}
