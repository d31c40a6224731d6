package arbor

import (
	"errors"
	"reflect"
	"testing"
)

func TestStore_Bolt(t *testing.T) {
	store := setupBolt(t)
	eng := New(store, testSchema(), Options{Logf: t.Logf, Verbose: testing.Verbose()})

	eng.Save(bg(), &Widget{ID: "w1", Name: "foo", Count: 5}, &Widget{ID: "w2", Name: "bar"}).Must()
	got := Load[Widget](bg(), eng, "w1").Must()
	deepEqual(t, got.Name, "foo")
	deepEqual(t, got.Count, 5)

	ks := must(store.KindStats("Widget"))
	deepEqual(t, ks.Entities, 2)
	if ks.DataSize <= 0 || ks.DataAlloc < ks.DataSize {
		t.Errorf("DataSize = %d, DataAlloc = %d", ks.DataSize, ks.DataAlloc)
	}
	deepEqual(t, must(store.KindStats("Gadget")), KindStats{})

	eng.Delete(bg(), NewKey("Widget", "w1")).Must()
	isnil(t, Load[Widget](bg(), eng, "w1").Must())
	deepEqual(t, must(store.KindStats("Widget")).Entities, 1)

	if store.Bolt() == nil {
		t.Errorf("Bolt() = nil")
	}
	deepEqual(t, store.ReaderCount.Load(), int64(0))
	deepEqual(t, store.WriterCount.Load(), int64(0))
}

func TestStore_Closed(t *testing.T) {
	for name, store := range map[string]*Store{
		"mem":  NewMemStore(StoreOptions{}),
		"bolt": setupBolt(t),
	} {
		t.Run(name, func(t *testing.T) {
			ensure(store.Close())
			_, err := store.SubmitReads(bg(), []Key{NewKey("Widget", "a")}).Wait()
			if !errors.Is(err, ErrClosed) {
				t.Errorf("err = %v, wanted ErrClosed", err)
			}
		})
	}
}

func TestStore_MemIsolation(t *testing.T) {
	store := NewMemStore(StoreOptions{})
	defer store.Close()
	k := NewKey("Widget", "a")

	must(store.SubmitWrites(bg(), []Write{{k, NewLeaf("v1", false)}}).Wait())
	before := must(store.SubmitReads(bg(), []Key{k}).Wait())
	must(store.SubmitWrites(bg(), []Write{{k, NewLeaf("v2", false)}}).Wait())
	after := must(store.SubmitReads(bg(), []Key{k, NewKey("Gadget", "a")}).Wait())

	nodeEqual(t, before[0], NewLeaf("v1", false))
	nodeEqual(t, after[0], NewLeaf("v2", false))
	if after[1] != nil {
		t.Errorf("absent entity read as %s", Dump(after[1]))
	}
	deepEqual(t, must(store.KindStats("Widget")).Entities, 1)
}

func TestOp_String(t *testing.T) {
	deepEqual(t, OpSave.String(), "save")
	deepEqual(t, OpDelete.String(), "delete")
	deepEqual(t, OpLoad.String(), "load")
	deepEqual(t, OpNone.String(), "none")
	deepEqual(t, Op(9).String(), "invalid op 9")
	deepEqual(t, Write{NewKey("Widget", "a"), NewLeaf(int64(1), true)}.String(), "Widget/a => 1")
}

func TestSchema(t *testing.T) {
	scm := testSchema()
	deepEqual(t, len(scm.Kinds()), 4)
	deepEqual(t, scm.KindNamed("widget").Name(), "Widget")
	deepEqual(t, scm.KindByEntityType(reflect.TypeFor[*Gadget]()).Name(), "Gadget")
	deepEqual(t, KindFor[Note](scm).String(), "Note")
	deepEqual(t, KindFor[Widget](scm).EntityType(), reflect.TypeFor[Widget]())
	deepEqual(t, must(scm.KeyOf(&Widget{ID: "x"})), NewKey("Widget", "x"))

	if _, err := scm.KindOf(&struct{ ID string }{}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, wanted ErrUnknownKind", err)
	}
}

func TestSchema_InvalidDefinitionsPanic(t *testing.T) {
	type noKey struct{ N int }
	type privateKey struct{ id string }
	tests := map[string]func(){
		"duplicate name": func() { DefineKind[Note](testSchema(), "widget", nil) },
		"duplicate type": func() { DefineKind[Widget](testSchema(), "Other", nil) },
		"int key":        func() { DefineKind[noKey](NewSchema(), "NoKey", nil) },
		"unexported key": func() { DefineKind[privateKey](NewSchema(), "Private", nil) },
		"not a struct":   func() { DefineKind[string](NewSchema(), "Str", nil) },
		"empty name":     func() { DefineKind[Widget](NewSchema(), "", nil) },
		"unknown type":   func() { KindFor[noKey](testSchema()) },
	}
	for name, f := range tests {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic")
				}
			}()
			f()
		})
	}
}
