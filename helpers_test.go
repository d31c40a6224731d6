package arbor

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"
)

type (
	Widget struct {
		ID    string   `arbor:"-"`
		Name  string   `arbor:"name"`
		Count int      `arbor:"count"`
		Tags  []string `arbor:"tags,omitempty"`
		Notes string   `arbor:"notes,noindex"`
	}

	Gadget struct {
		ID      string `arbor:"-"`
		Title   string
		Created time.Time
	}

	// Secret is omitted entirely when Hidden is set.
	Secret struct {
		ID     string
		Hidden bool
		Body   string
	}

	Note struct {
		ID   string `arbor:"-"`
		Text string
	}
)

var errBoom = errors.New("boom")

func testSchema() *Schema {
	scm := NewSchema()
	DefineKind[Widget](scm, "Widget", nil)
	DefineKind[Gadget](scm, "Gadget", func(b *KindBuilder[Gadget]) {
		b.Unindexed()
	})
	DefineKind[Secret](scm, "Secret", func(b *KindBuilder[Secret]) {
		b.Translator(SkipIf(Reflect[Secret](), func(s Secret) bool { return s.Hidden }))
	})
	DefineKind[Note](scm, "Note", func(b *KindBuilder[Note]) {
		b.AutoKey()
	})
	return scm
}

func setup(t testing.TB) (*Engine, *Store) {
	t.Helper()
	store := NewMemStore(StoreOptions{})
	t.Cleanup(func() { store.Close() })
	eng := New(store, testSchema(), Options{
		Logf:    t.Logf,
		Verbose: testing.Verbose(),
	})
	return eng, store
}

func setupBolt(t testing.TB) *Store {
	t.Helper()

	dbFile := must(os.CreateTemp("", "arbor_test_*.db"))
	t.Logf("DB: %s", dbFile.Name())
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store := must(OpenBolt(dbFile.Name(), StoreOptions{
		IsTesting: true,
		Logf:      t.Logf,
	}))
	t.Cleanup(func() { store.Close() })
	return store
}

func noBackendCalls(t testing.TB, store *Store) {
	t.Helper()
	if st := store.Stats(); st.Batches() != 0 {
		t.Fatalf("** backend got %d batches (%+v), wanted none", st.Batches(), st)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func nodeEqual(t testing.TB, a, e Node) {
	if !Equal(a, e) {
		t.Helper()
		t.Errorf("** got:\n%s\nwanted:\n%s", DumpTree(a), DumpTree(e))
	}
}

func bg() context.Context {
	return context.Background()
}
