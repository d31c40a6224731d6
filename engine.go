package arbor

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Engine translates batches of entities to and from trees and hands them to
// a Backend, one Submit call per batch.
//
// All batch methods return immediately. Translation happens synchronously
// inside the call, so a translation failure is already settled in the
// returned result and nothing is sent to the backend. Backend work proceeds
// in the background and is awaited by the result's Now.
//
// A batch with nothing to do (no entities, no keys, or only entities whose
// root translator omitted them) never reaches the backend, and its result is
// resolved on return.
type Engine struct {
	backend    Backend
	schema     *Schema
	logf       func(format string, args ...any)
	verbose    bool
	tracer     trace.Tracer
	newKeyName func() string
}

type Options struct {
	Logf    func(format string, args ...any)
	Verbose bool

	// Tracer receives one span per backend batch. Defaults to a no-op tracer.
	Tracer trace.Tracer

	// NewKeyName names entities of AutoKey kinds. Defaults to random UUIDs.
	NewKeyName func() string
}

func (opt *Options) withDefaults() {
	if opt.Logf == nil {
		opt.Logf = func(format string, args ...any) {}
	}
	if opt.Tracer == nil {
		opt.Tracer = noop.NewTracerProvider().Tracer("arbor")
	}
	if opt.NewKeyName == nil {
		opt.NewKeyName = uuid.NewString
	}
}

func New(backend Backend, schema *Schema, opt Options) *Engine {
	if backend == nil {
		panic("arbor: nil backend")
	}
	opt.withDefaults()
	return &Engine{
		backend:    backend,
		schema:     schema,
		logf:       opt.Logf,
		verbose:    opt.Verbose,
		tracer:     opt.Tracer,
		newKeyName: opt.NewKeyName,
	}
}

func (eng *Engine) Schema() *Schema {
	return eng.schema
}

func (eng *Engine) Backend() Backend {
	return eng.backend
}

// Save translates and writes entities, which must be pointers to registered
// kinds. The result maps the key of every written entity to the entity.
// Entities the root translator omits are neither written nor reported.
// Saving the same key twice in a batch writes the last version, or nothing if
// the last version is omitted. Names assigned to AutoKey entities are cleared
// again when the batch fails.
func (eng *Engine) Save(ctx context.Context, entities ...any) *Deferred[map[Key]any] {
	if len(entities) == 0 {
		return Resolved(map[Key]any{})
	}
	writes, saved, err := eng.translateForSave(entities)
	if err != nil {
		if eng.verbose {
			eng.logf("arbor: SAVE batch of %d aborted: %v", len(entities), err)
		}
		return Failed[map[Key]any](err)
	}
	if len(writes) == 0 {
		return Resolved(saved)
	}

	ctx, span := eng.startSpan(ctx, OpSave, len(writes), kindNamesOfWrites(writes))
	async := eng.backend.SubmitWrites(ctx, writes)
	observe(span, async)
	return Defer(func() (map[Key]any, error) {
		if _, err := async.Wait(); err != nil {
			return nil, &BackendError{OpSave, len(writes), err}
		}
		return saved, nil
	})
}

func (eng *Engine) translateForSave(entities []any) (writes []Write, saved map[Key]any, err error) {
	sctx := NewSaveContext(true)
	writes = make([]Write, 0, len(entities))
	positions := make(map[Key]int, len(entities))
	saved = make(map[Key]any, len(entities))

	// auto-assigned names are taken back if the batch fails
	var unname []func()
	defer func() {
		if err != nil {
			for _, f := range unname {
				f()
			}
		}
	}()

	for i, entity := range entities {
		kind, err := eng.schema.KindOf(entity)
		if err != nil {
			return nil, nil, fmt.Errorf("arbor: entity %d: %w", i, err)
		}
		ev := reflect.ValueOf(entity)
		if ev.IsNil() {
			return nil, nil, fmt.Errorf("arbor: entity %d: nil %v", i, ev.Type())
		}

		name := kind.keyName(ev)
		if name == "" {
			if !kind.autoKey {
				return nil, nil, &EntityError{kind.Key(""), ErrEmptyKey}
			}
			name = eng.newKeyName()
			kind.setKeyName(ev, name)
			unname = append(unname, func() { kind.setKeyName(ev, "") })
		}
		key := kind.Key(name)

		sctx.key = key
		sctx.DefaultIndex = kind.defaultIndex
		out, err := kind.save(entity, sctx)
		if err != nil {
			return nil, nil, &EntityError{key, err}
		}
		pos, dup := positions[key]
		if out.IsOmitted() {
			if eng.verbose {
				eng.logf("arbor: SAVE %v omitted", key)
			}
			if dup {
				writes[pos].Node = nil
				delete(saved, key)
			}
			continue
		}
		if eng.verbose {
			eng.logf("arbor: SAVE %v => %s", key, loggableEntity(kind, out.Node()))
		}

		if dup {
			writes[pos].Node = out.Node()
		} else {
			positions[key] = len(writes)
			writes = append(writes, Write{key, out.Node()})
		}
		saved[key] = entity
	}

	sctx.key = Key{}
	if err := sctx.runDeferred(); err != nil {
		return nil, nil, err
	}
	// a key whose last version was omitted is not written at all
	writes = slices.DeleteFunc(writes, func(w Write) bool { return w.Node == nil })
	return writes, saved, nil
}

// SaveEntities is the typed form of Engine.Save.
func SaveEntities[T any](ctx context.Context, eng *Engine, entities []*T) *Deferred[map[Key]*T] {
	args := make([]any, len(entities))
	for i, e := range entities {
		args[i] = e
	}
	return mapEager(eng.Save(ctx, args...), func(saved map[Key]any) (map[Key]*T, error) {
		result := make(map[Key]*T, len(saved))
		for k, e := range saved {
			result[k] = e.(*T)
		}
		return result, nil
	})
}

// Delete removes the entities with the given keys. Deleting a key twice, or
// deleting an absent entity, is not an error.
func (eng *Engine) Delete(ctx context.Context, keys ...Key) *Deferred[struct{}] {
	if len(keys) == 0 {
		return Resolved(struct{}{})
	}
	unique, err := uniqueKeys(keys)
	if err != nil {
		return Failed[struct{}](err)
	}
	if eng.verbose {
		for _, k := range unique {
			eng.logf("arbor: DELETE %v", k)
		}
	}

	ctx, span := eng.startSpan(ctx, OpDelete, len(unique), kindNamesOfKeys(unique))
	async := eng.backend.SubmitDeletes(ctx, unique)
	observe(span, async)
	return Defer(func() (struct{}, error) {
		if _, err := async.Wait(); err != nil {
			return struct{}{}, &BackendError{OpDelete, len(unique), err}
		}
		return struct{}{}, nil
	})
}

// DeleteEntities deletes entities by their keys.
func (eng *Engine) DeleteEntities(ctx context.Context, entities ...any) *Deferred[struct{}] {
	keys := make([]Key, len(entities))
	for i, entity := range entities {
		k, err := eng.schema.KeyOf(entity)
		if err != nil {
			return Failed[struct{}](fmt.Errorf("arbor: entity %d: %w", i, err))
		}
		keys[i] = k
	}
	return eng.Delete(ctx, keys...)
}

// load fetches and translates entities of kind. Each distinct key is read
// and translated once.
func (eng *Engine) load(ctx context.Context, kind *Kind, keys []Key) *Deferred[map[Key]any] {
	if len(keys) == 0 {
		return Resolved(map[Key]any{})
	}
	unique, err := uniqueKeys(keys)
	if err != nil {
		return Failed[map[Key]any](err)
	}
	for _, k := range unique {
		if k.Kind != kind.name {
			return Failed[map[Key]any](&EntityError{k, fmt.Errorf("not a key of kind %s", kind.name)})
		}
	}

	ctx, span := eng.startSpan(ctx, OpLoad, len(unique), []string{kind.name})
	async := eng.backend.SubmitReads(ctx, unique)
	observe(span, async)
	return Defer(func() (map[Key]any, error) {
		nodes, err := async.Wait()
		if err != nil {
			return nil, &BackendError{OpLoad, len(unique), err}
		}
		if len(nodes) != len(unique) {
			return nil, &BackendError{OpLoad, len(unique), fmt.Errorf("got %d nodes", len(nodes))}
		}
		result := make(map[Key]any, len(unique))
		for i, node := range nodes {
			key := unique[i]
			if eng.verbose {
				eng.logf("arbor: LOAD %v => %s", key, loggableEntity(kind, node))
			}
			if node == nil {
				continue
			}
			entity, err := eng.loadEntity(kind, key, node)
			if err != nil {
				return nil, &EntityError{key, err}
			}
			result[key] = entity
		}
		return result, nil
	})
}

func (eng *Engine) loadEntity(kind *Kind, key Key, node Node) (any, error) {
	lctx := NewLoadContext()
	lctx.key = key
	entity, err := kind.load(node, lctx)
	if err != nil {
		return nil, err
	}
	kind.setKeyName(reflect.ValueOf(entity), key.Name)
	if err := lctx.finish(entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// LoadList loads entities by key, positionally: the i-th item belongs to
// keys[i] and is nil if there is no such entity. Duplicate keys yield the
// same entity at each of their positions.
func LoadList[T any](ctx context.Context, eng *Engine, keys []Key) *ListView[*T] {
	kind, err := eng.schema.KindOf((*T)(nil))
	if err != nil {
		return AsList[*T](Failed[[]*T](err))
	}
	return AsList[*T](mapEager(eng.load(ctx, kind, keys), func(loaded map[Key]any) ([]*T, error) {
		result := make([]*T, len(keys))
		for i, k := range keys {
			if e, ok := loaded[k]; ok {
				result[i] = e.(*T)
			}
		}
		return result, nil
	}))
}

// LoadMap loads entities by key. Absent entities have no entry.
func LoadMap[T any](ctx context.Context, eng *Engine, keys []Key) *MapView[Key, *T] {
	kind, err := eng.schema.KindOf((*T)(nil))
	if err != nil {
		return AsMap[Key, *T](Failed[map[Key]*T](err))
	}
	return AsMap[Key, *T](mapEager(eng.load(ctx, kind, keys), func(loaded map[Key]any) (map[Key]*T, error) {
		result := make(map[Key]*T, len(loaded))
		for k, e := range loaded {
			result[k] = e.(*T)
		}
		return result, nil
	}))
}

// LoadEntities reloads entities by their keys, returning fresh copies.
func LoadEntities[T any](ctx context.Context, eng *Engine, entities []*T) *MapView[Key, *T] {
	kind, err := eng.schema.KindOf((*T)(nil))
	if err != nil {
		return AsMap[Key, *T](Failed[map[Key]*T](err))
	}
	keys := make([]Key, len(entities))
	for i, e := range entities {
		keys[i] = kind.KeyOf(e)
	}
	return LoadMap[T](ctx, eng, keys)
}

// Load loads a single entity by key name. The value is nil if it does not
// exist.
func Load[T any](ctx context.Context, eng *Engine, name string) *Deferred[*T] {
	kind, err := eng.schema.KindOf((*T)(nil))
	if err != nil {
		return Failed[*T](err)
	}
	key := kind.Key(name)
	return mapEager(eng.load(ctx, kind, []Key{key}), func(loaded map[Key]any) (*T, error) {
		if e, ok := loaded[key]; ok {
			return e.(*T), nil
		}
		return nil, nil
	})
}

func uniqueKeys(keys []Key) ([]Key, error) {
	seen := make(map[Key]struct{}, len(keys))
	unique := make([]Key, 0, len(keys))
	for _, k := range keys {
		if !k.IsComplete() {
			return nil, &EntityError{k, ErrEmptyKey}
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	return unique, nil
}

// mapEager is Then that stays resolved when r already is.
func mapEager[T, U any](r *Deferred[T], f func(v T) (U, error)) *Deferred[U] {
	if !r.IsResolved() {
		return Then[T, U](r, f)
	}
	v, err := r.Now()
	if err != nil {
		return Failed[U](err)
	}
	u, err := f(v)
	if err != nil {
		return Failed[U](err)
	}
	return Resolved(u)
}

func (eng *Engine) startSpan(ctx context.Context, op Op, n int, kinds []string) (context.Context, trace.Span) {
	return eng.tracer.Start(ctx, "arbor."+op.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("arbor.op", op.String()),
			attribute.Int("arbor.batch_size", n),
			attribute.StringSlice("arbor.kinds", kinds),
		))
}

// observe ends span when a finishes, whether or not anybody waits for it.
func observe[T any](span trace.Span, a *Async[T]) {
	go func() {
		if _, err := a.Wait(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
}

func kindNamesOfWrites(writes []Write) []string {
	var kinds []string
	for _, w := range writes {
		if !slices.Contains(kinds, w.Key.Kind) {
			kinds = append(kinds, w.Key.Kind)
		}
	}
	return kinds
}

func kindNamesOfKeys(keys []Key) []string {
	var kinds []string
	for _, k := range keys {
		if !slices.Contains(kinds, k.Kind) {
			kinds = append(kinds, k.Kind)
		}
	}
	return kinds
}
