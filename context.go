package arbor

// SaveContext carries state across a single top-level save operation, which
// may span several entities of a batch. It must not be shared between
// concurrently running operations.
type SaveContext struct {
	// DefaultIndex is the indexing instruction handed to root translators.
	DefaultIndex bool

	key      Key
	deferred []func() error
}

func NewSaveContext(defaultIndex bool) *SaveContext {
	return &SaveContext{DefaultIndex: defaultIndex}
}

// Key returns the key of the entity currently being saved, or the zero Key
// outside of an engine-driven save.
func (ctx *SaveContext) Key() Key {
	return ctx.key
}

// Defer registers f to run once the whole tree (the whole batch, when driven
// by an Engine) has been built.
func (ctx *SaveContext) Defer(f func() error) {
	ctx.deferred = append(ctx.deferred, f)
}

func (ctx *SaveContext) runDeferred() error {
	for len(ctx.deferred) > 0 {
		f := ctx.deferred[0]
		ctx.deferred = ctx.deferred[1:]
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

// LoadContext carries state across a single top-level load operation.
type LoadContext struct {
	key      Key
	done     bool
	deferred []func(root any) error
}

func NewLoadContext() *LoadContext {
	return &LoadContext{}
}

// Key returns the key of the entity being loaded, if known.
func (ctx *LoadContext) Key() Key {
	return ctx.key
}

// Defer registers f to run after the root object has been fully assembled.
// Actions run in registration order, exactly once; f receives the root.
func (ctx *LoadContext) Defer(f func(root any) error) {
	ctx.deferred = append(ctx.deferred, f)
}

func (ctx *LoadContext) finish(root any) error {
	if ctx.done {
		panic("arbor: LoadContext reused after completion")
	}
	ctx.done = true
	for len(ctx.deferred) > 0 {
		f := ctx.deferred[0]
		ctx.deferred = ctx.deferred[1:]
		if err := f(root); err != nil {
			return err
		}
	}
	return nil
}
