package arbor

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"iter"
	"maps"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// ListView is a read-only list over a Result. Every read resolves the result
// first and panics if resolution failed; use Snapshot to get the error
// instead.
//
// Encoding a ListView (JSON, msgpack, gob) encodes a plain snapshot of its
// items, so the receiving side gets an ordinary resolved list.
type ListView[E any] struct {
	r Result[[]E]
}

func AsList[E any](r Result[[]E]) *ListView[E] {
	return &ListView[E]{r}
}

func (v *ListView[E]) result() Result[[]E] {
	if v.r == nil {
		panic("arbor: zero ListView, construct it with AsList or decode into it")
	}
	return v.r
}

func (v *ListView[E]) items() []E {
	return must(v.result().Now())
}

// Result returns the underlying result.
func (v *ListView[E]) Result() Result[[]E] {
	return v.r
}

func (v *ListView[E]) Len() int {
	return len(v.items())
}

func (v *ListView[E]) At(i int) E {
	return v.items()[i]
}

func (v *ListView[E]) All() iter.Seq2[int, E] {
	return func(yield func(int, E) bool) {
		for i, item := range v.items() {
			if !yield(i, item) {
				return
			}
		}
	}
}

// Snapshot resolves the view and returns a copy of its items.
func (v *ListView[E]) Snapshot() ([]E, error) {
	items, err := v.result().Now()
	if err != nil {
		return nil, err
	}
	return slices.Clone(items), nil
}

func (v *ListView[E]) transportable() ([]E, error) {
	items, err := v.Snapshot()
	if err != nil {
		return nil, &NotTransportableError{What: "list view", Err: err}
	}
	return items, nil
}

func (v *ListView[E]) MarshalJSON() ([]byte, error) {
	items, err := v.transportable()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, &NotTransportableError{What: "list view", Err: err}
	}
	return raw, nil
}

func (v *ListView[E]) UnmarshalJSON(raw []byte) error {
	var items []E
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	v.r = Resolved(items)
	return nil
}

func (v *ListView[E]) EncodeMsgpack(enc *msgpack.Encoder) error {
	items, err := v.transportable()
	if err != nil {
		return err
	}
	if err := enc.Encode(items); err != nil {
		return &NotTransportableError{What: "list view", Err: err}
	}
	return nil
}

func (v *ListView[E]) DecodeMsgpack(dec *msgpack.Decoder) error {
	var items []E
	if err := dec.Decode(&items); err != nil {
		return err
	}
	v.r = Resolved(items)
	return nil
}

func (v *ListView[E]) GobEncode() ([]byte, error) {
	items, err := v.transportable()
	if err != nil {
		return nil, err
	}
	return gobSnapshot("list view", items)
}

func (v *ListView[E]) GobDecode(raw []byte) error {
	var items []E
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&items); err != nil {
		return err
	}
	v.r = Resolved(items)
	return nil
}

// MapView is the map counterpart of ListView.
type MapView[K comparable, V any] struct {
	r Result[map[K]V]
}

func AsMap[K comparable, V any](r Result[map[K]V]) *MapView[K, V] {
	return &MapView[K, V]{r}
}

func (v *MapView[K, V]) result() Result[map[K]V] {
	if v.r == nil {
		panic("arbor: zero MapView, construct it with AsMap or decode into it")
	}
	return v.r
}

func (v *MapView[K, V]) entries() map[K]V {
	return must(v.result().Now())
}

func (v *MapView[K, V]) Result() Result[map[K]V] {
	return v.r
}

func (v *MapView[K, V]) Len() int {
	return len(v.entries())
}

func (v *MapView[K, V]) Get(k K) (V, bool) {
	val, ok := v.entries()[k]
	return val, ok
}

func (v *MapView[K, V]) Has(k K) bool {
	_, ok := v.entries()[k]
	return ok
}

// Keys returns the keys in no particular order.
func (v *MapView[K, V]) Keys() []K {
	return slices.Collect(maps.Keys(v.entries()))
}

func (v *MapView[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for k, val := range v.entries() {
			if !yield(k, val) {
				return
			}
		}
	}
}

func (v *MapView[K, V]) Snapshot() (map[K]V, error) {
	entries, err := v.result().Now()
	if err != nil {
		return nil, err
	}
	return maps.Clone(entries), nil
}

func (v *MapView[K, V]) transportable() (map[K]V, error) {
	entries, err := v.Snapshot()
	if err != nil {
		return nil, &NotTransportableError{What: "map view", Err: err}
	}
	return entries, nil
}

func (v *MapView[K, V]) MarshalJSON() ([]byte, error) {
	entries, err := v.transportable()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, &NotTransportableError{What: "map view", Err: err}
	}
	return raw, nil
}

func (v *MapView[K, V]) UnmarshalJSON(raw []byte) error {
	var entries map[K]V
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	v.r = Resolved(entries)
	return nil
}

func (v *MapView[K, V]) EncodeMsgpack(enc *msgpack.Encoder) error {
	entries, err := v.transportable()
	if err != nil {
		return err
	}
	if err := enc.Encode(entries); err != nil {
		return &NotTransportableError{What: "map view", Err: err}
	}
	return nil
}

func (v *MapView[K, V]) DecodeMsgpack(dec *msgpack.Decoder) error {
	var entries map[K]V
	if err := dec.Decode(&entries); err != nil {
		return err
	}
	v.r = Resolved(entries)
	return nil
}

func (v *MapView[K, V]) GobEncode() ([]byte, error) {
	entries, err := v.transportable()
	if err != nil {
		return nil, err
	}
	return gobSnapshot("map view", entries)
}

func (v *MapView[K, V]) GobDecode(raw []byte) error {
	var entries map[K]V
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entries); err != nil {
		return err
	}
	v.r = Resolved(entries)
	return nil
}

func gobSnapshot(what string, snapshot any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		return nil, &NotTransportableError{What: what, Err: err}
	}
	return buf.Bytes(), nil
}
