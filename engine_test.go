package arbor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestEngine_EmptyBatchesSkipBackend(t *testing.T) {
	eng, store := setup(t)

	saved := eng.Save(bg())
	deepEqual(t, saved.IsResolved(), true)
	deepEqual(t, len(saved.Must()), 0)

	del := eng.Delete(bg())
	deepEqual(t, del.IsResolved(), true)

	list := LoadList[Widget](bg(), eng, nil)
	deepEqual(t, list.Len(), 0)

	m := LoadMap[Widget](bg(), eng, []Key{})
	deepEqual(t, m.Len(), 0)

	typed := SaveEntities[Widget](bg(), eng, nil)
	deepEqual(t, typed.IsResolved(), true)

	hidden := eng.Save(bg(), &Secret{ID: "s1", Hidden: true})
	deepEqual(t, hidden.IsResolved(), true)
	deepEqual(t, len(hidden.Must()), 0)

	noBackendCalls(t, store)
}

func TestEngine_SaveLoad(t *testing.T) {
	eng, store := setup(t)

	w1 := &Widget{ID: "w1", Name: "foo", Count: 5}
	w2 := &Widget{ID: "w2", Name: "bar", Tags: []string{"x"}, Notes: "n"}
	saved := eng.Save(bg(), w1, w2).Must()
	deepEqual(t, saved, map[Key]any{NewKey("Widget", "w1"): w1, NewKey("Widget", "w2"): w2})

	got := Load[Widget](bg(), eng, "w1").Must()
	deepEqual(t, got, &Widget{ID: "w1", Name: "foo", Count: 5, Tags: []string{}})
	if got == w1 {
		t.Errorf("Load returned the saved pointer, wanted a fresh copy")
	}
	isnil(t, Load[Widget](bg(), eng, "nope").Must())

	st := store.Stats()
	deepEqual(t, st.WriteBatches, uint64(1))
	deepEqual(t, st.EntitiesWritten, uint64(2))
	deepEqual(t, st.ReadBatches, uint64(2))
}

func TestEngine_LoadListIsPositional(t *testing.T) {
	eng, store := setup(t)
	eng.Save(bg(), &Widget{ID: "w1", Name: "one"}, &Widget{ID: "w2", Name: "two"}).Must()

	w1, w2, missing := NewKey("Widget", "w1"), NewKey("Widget", "w2"), NewKey("Widget", "w3")
	list := LoadList[Widget](bg(), eng, []Key{w1, missing, w2, w1})

	deepEqual(t, list.Len(), 4)
	deepEqual(t, list.At(0).Name, "one")
	isnil(t, list.At(1))
	deepEqual(t, list.At(2).Name, "two")
	if list.At(3) != list.At(0) {
		t.Errorf("duplicate keys loaded distinct entities")
	}

	m := LoadMap[Widget](bg(), eng, []Key{w1, missing, w2, w1})
	deepEqual(t, m.Len(), 2)
	deepEqual(t, m.Has(missing), false)

	st := store.Stats()
	deepEqual(t, st.ReadBatches, uint64(2))
	deepEqual(t, st.EntitiesRead, uint64(6))
}

func TestEngine_LoadEntities(t *testing.T) {
	eng, _ := setup(t)
	orig := []*Widget{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}
	SaveEntities(bg(), eng, orig).Must()

	orig[0].Name = "changed"
	m := LoadEntities(bg(), eng, []*Widget{orig[0], {ID: "zzz"}})
	got, ok := m.Get(NewKey("Widget", "a"))
	deepEqual(t, ok, true)
	deepEqual(t, got.Name, "A")
	deepEqual(t, m.Len(), 1)
}

func TestEngine_DuplicateSavesWriteLastVersion(t *testing.T) {
	eng, store := setup(t)
	first := &Widget{ID: "a", Count: 1}
	second := &Widget{ID: "a", Count: 2}
	saved := eng.Save(bg(), first, &Widget{ID: "b"}, second).Must()

	if saved[NewKey("Widget", "a")] != second {
		t.Errorf("saved map holds %v, wanted the last version", saved[NewKey("Widget", "a")])
	}
	deepEqual(t, store.Stats().EntitiesWritten, uint64(2))
	deepEqual(t, Load[Widget](bg(), eng, "a").Must().Count, 2)
}

func TestEngine_Delete(t *testing.T) {
	eng, store := setup(t)
	w := &Widget{ID: "w1", Name: "foo"}
	eng.Save(bg(), w, &Widget{ID: "w2"}).Must()

	k := NewKey("Widget", "w1")
	eng.Delete(bg(), k, k, NewKey("Widget", "absent"), NewKey("Gadget", "absent")).Must()
	deepEqual(t, store.Stats().EntitiesDeleted, uint64(3))
	isnil(t, Load[Widget](bg(), eng, "w1").Must())

	eng.DeleteEntities(bg(), &Widget{ID: "w2"}).Must()
	isnil(t, Load[Widget](bg(), eng, "w2").Must())

	_, err := eng.Delete(bg(), NewKey("Widget", "")).Now()
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("err = %v, wanted ErrEmptyKey", err)
	}
	_, err = eng.DeleteEntities(bg(), &struct{ ID string }{"x"}).Now()
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, wanted ErrUnknownKind", err)
	}
}

func TestEngine_OmittedEntitiesAreNotWritten(t *testing.T) {
	eng, store := setup(t)
	saved := eng.Save(bg(), &Secret{ID: "s1", Hidden: true}, &Secret{ID: "s2", Body: "b"}).Must()
	deepEqual(t, len(saved), 1)
	if _, ok := saved[NewKey("Secret", "s2")]; !ok {
		t.Errorf("saved = %v, wanted Secret/s2", saved)
	}
	deepEqual(t, store.Stats().EntitiesWritten, uint64(1))

	list := LoadList[Secret](bg(), eng, []Key{NewKey("Secret", "s1"), NewKey("Secret", "s2")})
	isnil(t, list.At(0))
	deepEqual(t, list.At(1).Body, "b")
}

func TestEngine_DefaultIndexPerKind(t *testing.T) {
	eng, store := setup(t)
	eng.Save(bg(),
		&Widget{ID: "w", Name: "n", Notes: "x"},
		&Gadget{ID: "g", Title: "t", Created: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
	).Must()

	nodes := must(store.SubmitReads(bg(), []Key{NewKey("Widget", "w"), NewKey("Gadget", "g")}).Wait())

	w := nodes[0].(*Map)
	deepEqual(t, must(w.Field("name")).(*Leaf).Indexed(), true)
	deepEqual(t, must(w.Field("notes")).(*Leaf).Indexed(), false)
	g := nodes[1].(*Map)
	deepEqual(t, must(g.Field("Title")).(*Leaf).Indexed(), false)
	deepEqual(t, must(g.Field("Created")).(*Leaf).Indexed(), false)
}

func TestEngine_AutoKey(t *testing.T) {
	eng, _ := setup(t)
	n := &Note{Text: "hello"}
	saved := eng.Save(bg(), n).Must()
	if n.ID == "" {
		t.Fatalf("key name not assigned")
	}
	if saved[NewKey("Note", n.ID)] != n {
		t.Errorf("saved = %v", saved)
	}
	deepEqual(t, Load[Note](bg(), eng, n.ID).Must().Text, "hello")

	var seq int
	eng = New(NewMemStore(StoreOptions{}), testSchema(), Options{
		NewKeyName: func() string { seq++; return "note" + string(rune('0'+seq)) },
	})
	a, b := &Note{}, &Note{ID: "fixed"}
	eng.Save(bg(), a, b).Must()
	deepEqual(t, a.ID, "note1")
	deepEqual(t, b.ID, "fixed")
}

func TestEngine_AutoKeyClearedWhenBatchFails(t *testing.T) {
	eng, store := setup(t)
	n := &Note{Text: "x"}
	_, err := eng.Save(bg(), n, &Widget{Name: "no key"}).Now()
	if !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("err = %v, wanted ErrEmptyKey", err)
	}
	deepEqual(t, n.ID, "")
	noBackendCalls(t, store)

	eng.Save(bg(), n).Must()
	if n.ID == "" {
		t.Errorf("key name not assigned on retry")
	}
}

func TestEngine_DuplicateSaveLastOmitted(t *testing.T) {
	eng, store := setup(t)
	saved := eng.Save(bg(),
		&Secret{ID: "s", Body: "first"},
		&Secret{ID: "s", Hidden: true},
		&Secret{ID: "t", Body: "kept"},
	).Must()
	deepEqual(t, len(saved), 1)
	if _, ok := saved[NewKey("Secret", "t")]; !ok {
		t.Errorf("saved = %v, wanted Secret/t", saved)
	}
	deepEqual(t, store.Stats().EntitiesWritten, uint64(1))
	isnil(t, Load[Secret](bg(), eng, "s").Must())

	saved = eng.Save(bg(), &Secret{ID: "s", Hidden: true}, &Secret{ID: "s", Body: "again"}).Must()
	deepEqual(t, len(saved), 1)
	deepEqual(t, Load[Secret](bg(), eng, "s").Must().Body, "again")
}

func TestEngine_SaveFailsFast(t *testing.T) {
	eng, store := setup(t)

	_, err := eng.Save(bg(), &Widget{ID: "ok"}, &Widget{Name: "no key"}).Now()
	var ee *EntityError
	if !errors.As(err, &ee) || !errors.Is(err, ErrEmptyKey) {
		t.Errorf("err = %v, wanted EntityError with ErrEmptyKey", err)
	}

	_, err = eng.Save(bg(), &Widget{ID: "ok"}, Widget{ID: "by value"}).Now()
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, wanted ErrUnknownKind", err)
	}

	_, err = eng.Save(bg(), &Widget{ID: "ok"}, (*Widget)(nil)).Now()
	if err == nil {
		t.Errorf("nil entity accepted")
	}

	noBackendCalls(t, store)
	isnil(t, Load[Widget](bg(), eng, "ok").Must())
}

type Crate struct {
	ID    string
	Items []string
}

var errBadItem = errors.New("bad item")

type pickyString struct{}

func (pickyString) Load(node Node, ctx *LoadContext) (string, error) {
	return String().Load(node, ctx)
}

func (pickyString) Save(pojo string, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	if pojo == "bad" {
		return Omitted, translationErrf(path, errBadItem, "refused")
	}
	return String().Save(pojo, path, index, ctx)
}

func TestEngine_TranslationErrorCarriesPath(t *testing.T) {
	scm := NewSchema()
	DefineKind[Crate](scm, "Crate", func(b *KindBuilder[Crate]) {
		b.Translator(Record(func(b *RecordBuilder[Crate]) {
			Field(b, "items", func(v *Crate) *[]string { return &v.Items }, SliceOf[string](pickyString{}))
		}))
	})
	store := NewMemStore(StoreOptions{})
	eng := New(store, scm, Options{Logf: t.Logf, Verbose: testing.Verbose()})

	_, err := eng.Save(bg(),
		&Crate{ID: "c1", Items: []string{"fine"}},
		&Crate{ID: "c2", Items: []string{"a", "b", "bad"}},
	).Now()
	if !errors.Is(err, errBadItem) {
		t.Fatalf("err = %v, wanted errBadItem", err)
	}
	deepEqual(t, err.Error(), "arbor: Crate/c2: items[2]: refused: bad item")
	noBackendCalls(t, store)
}

func TestEngine_LoadErrors(t *testing.T) {
	eng, store := setup(t)

	type unregistered struct{ ID string }
	_, err := LoadList[unregistered](bg(), eng, []Key{NewKey("x", "y")}).Snapshot()
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, wanted ErrUnknownKind", err)
	}

	_, err = LoadMap[Widget](bg(), eng, []Key{NewKey("Gadget", "g")}).Snapshot()
	var ee *EntityError
	if !errors.As(err, &ee) || ee.Key != NewKey("Gadget", "g") {
		t.Errorf("err = %v, wanted EntityError for Gadget/g", err)
	}

	_, err = LoadList[Widget](bg(), eng, []Key{NewKey("Widget", "")}).Snapshot()
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("err = %v, wanted ErrEmptyKey", err)
	}
	noBackendCalls(t, store)

	// a stored tree that does not fit the type
	bad := NewMap()
	bad.Set("count", NewLeaf("many", false))
	must(store.SubmitWrites(bg(), []Write{{NewKey("Widget", "bad"), bad}}).Wait())
	_, err = Load[Widget](bg(), eng, "bad").Now()
	if !errors.As(err, &ee) || !strings.Contains(err.Error(), "count: ") {
		t.Errorf("err = %v, wanted EntityError at count", err)
	}
}

type failingBackend struct {
	err error
}

func (b failingBackend) SubmitWrites(ctx context.Context, writes []Write) *Async[struct{}] {
	return Completed(struct{}{}, b.err)
}

func (b failingBackend) SubmitDeletes(ctx context.Context, keys []Key) *Async[struct{}] {
	return Completed(struct{}{}, b.err)
}

func (b failingBackend) SubmitReads(ctx context.Context, keys []Key) *Async[[]Node] {
	return Completed[[]Node](nil, b.err)
}

func TestEngine_BackendFailures(t *testing.T) {
	eng := New(failingBackend{errBoom}, testSchema(), Options{})

	var be *BackendError
	_, err := eng.Save(bg(), &Widget{ID: "a"}).Now()
	if !errors.As(err, &be) || be.Op != OpSave || be.N != 1 || !errors.Is(err, errBoom) {
		t.Errorf("save err = %v", err)
	}
	_, err = eng.Delete(bg(), NewKey("Widget", "a")).Now()
	if !errors.As(err, &be) || be.Op != OpDelete {
		t.Errorf("delete err = %v", err)
	}
	_, err = Load[Widget](bg(), eng, "a").Now()
	if !errors.As(err, &be) || be.Op != OpLoad {
		t.Errorf("load err = %v", err)
	}

	ctx, cancel := context.WithCancel(bg())
	cancel()
	eng2, _ := setup(t)
	_, err = eng2.Save(ctx, &Widget{ID: "a"}).Now()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, wanted context.Canceled", err)
	}
}

func TestEngine_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(bg())

	eng := New(NewMemStore(StoreOptions{}), testSchema(), Options{Tracer: tp.Tracer("test")})
	eng.Save(bg(), &Widget{ID: "a"}, &Gadget{ID: "b"}, &Widget{ID: "c"}).Must()
	eng.Save(bg()).Must()

	spans := waitForSpans(t, rec, 1)
	span := spans[0]
	deepEqual(t, span.Name(), "arbor.save")
	deepEqual(t, span.SpanKind(), trace.SpanKindClient)
	attrs := make(map[string]any)
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	deepEqual(t, attrs["arbor.op"], any("save"))
	deepEqual(t, attrs["arbor.batch_size"], any(int64(3)))
	deepEqual(t, attrs["arbor.kinds"], any([]string{"Widget", "Gadget"}))
}

func waitForSpans(t *testing.T, rec *tracetest.SpanRecorder, n int) []sdktrace.ReadOnlySpan {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		spans := rec.Ended()
		if len(spans) >= n {
			return spans
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d ended spans, wanted %d", len(spans), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngine_VerboseLogging(t *testing.T) {
	type Password struct {
		ID   string `arbor:"-"`
		Hash string
	}
	scm := testSchema()
	DefineKind[Password](scm, "Password", func(b *KindBuilder[Password]) {
		b.SuppressContentWhenLogging()
	})

	var mu sync.Mutex
	var lines []string
	eng := New(NewMemStore(StoreOptions{}), scm, Options{
		Verbose: true,
		Logf: func(format string, args ...any) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, strings.TrimSpace(fmt.Sprintf(format, args...)))
		},
	})
	eng.Save(bg(), &Widget{ID: "w", Name: "foo"}, &Password{ID: "p", Hash: "secret"}).Must()

	mu.Lock()
	defer mu.Unlock()
	deepEqual(t, lines, []string{
		`arbor: SAVE Widget/w => {"name":"foo","count":0,"notes":""}`,
		`arbor: SAVE Password/p => <suppressed>`,
	})
}
