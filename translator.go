package arbor

// Translator converts between values of type T and tree nodes. Translators
// for composite types are assembled from translators of their parts.
type Translator[T any] interface {
	// Load reconstructs a value from node. A nil/zero result is a legitimate
	// value; checking for an absent node is the caller's job. Load must not
	// modify node.
	Load(node Node, ctx *LoadContext) (T, error)

	// Save converts pojo into a node. path only qualifies errors. index is the
	// indexing instruction inherited from the caller. Returning Omitted asks
	// the parent to leave the value out entirely.
	Save(pojo T, path Path, index bool, ctx *SaveContext) (Outcome, error)
}

// Emptier is implemented by translators whose values have a meaningful empty
// form (an empty slice rather than nil, say). Records use it for absent fields.
type Emptier[T any] interface {
	Empty() T
}

// Outcome is the result of Translator.Save: either a produced node or the
// decision to omit the value.
type Outcome struct {
	node Node
}

// Omitted is the outcome of a value that must not be persisted.
var Omitted = Outcome{}

func Produced(node Node) Outcome {
	if node == nil {
		panic("arbor: Produced(nil)")
	}
	return Outcome{node}
}

func (o Outcome) IsOmitted() bool { return o.node == nil }

// Node returns the produced node, or nil if the value was omitted.
func (o Outcome) Node() Node { return o.node }

// SaveRoot saves pojo as a top-level value with a fresh SaveContext and runs
// the deferred save actions.
func SaveRoot[T any](tr Translator[T], pojo T, index bool) (Outcome, error) {
	ctx := NewSaveContext(index)
	out, err := tr.Save(pojo, Root, index, ctx)
	if err != nil {
		return Omitted, savedAt(err, Root)
	}
	if err := ctx.runDeferred(); err != nil {
		return Omitted, err
	}
	return out, nil
}

// LoadRoot loads a top-level value with a fresh LoadContext and runs the
// deferred load actions against the assembled result.
func LoadRoot[T any](tr Translator[T], node Node) (T, error) {
	ctx := NewLoadContext()
	return loadRootIn(tr, node, ctx)
}

func loadRootIn[T any](tr Translator[T], node Node, ctx *LoadContext) (T, error) {
	v, err := tr.Load(node, ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := ctx.finish(v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func emptyValueOf[T any](tr Translator[T]) T {
	if e, ok := tr.(Emptier[T]); ok {
		return e.Empty()
	}
	var zero T
	return zero
}

func describeNode(node Node) string {
	if node == nil {
		return "<absent>"
	}
	return node.Kind().String()
}
