package arbor

import (
	"errors"
	"testing"
	"time"
)

func sampleTree() Node {
	m := NewMap()
	m.Set("s", NewLeaf("hello", true))
	m.Set("i", NewLeaf(int64(-42), false))
	m.Set("u", NewLeaf(uint64(1<<63), true))
	m.Set("f", NewLeaf(2.5, false))
	m.Set("b", NewLeaf(true, false))
	m.Set("n", NewLeaf(nil, true))
	m.Set("raw", NewLeaf([]byte{0, 1, 2}, false))
	m.Set("empty", NewLeaf([]byte{}, false))
	m.Set("t", NewLeaf(time.Date(2024, 2, 29, 12, 0, 0, 123, time.UTC), true))
	m.Set("list", NewList(NewLeaf("a", true), NewList(), NewMap()))
	return m
}

func TestEncodeNode_RoundTrip(t *testing.T) {
	node := sampleTree()
	data := must(EncodeNode(nil, node))
	nodeEqual(t, must(DecodeNode(data)), node)

	prefixed := must(EncodeNode([]byte("xx"), node))
	deepEqual(t, string(prefixed[:2]), "xx")
	nodeEqual(t, must(DecodeNode(prefixed[2:])), node)
}

func TestEncodeNode_PreservesLeafTypes(t *testing.T) {
	node := must(DecodeNode(must(EncodeNode(nil, sampleTree())))).(*Map)
	for name, want := range map[string]any{
		"i":     int64(-42),
		"u":     uint64(1 << 63),
		"f":     2.5,
		"empty": []byte{},
	} {
		leaf := must(node.Field(name)).(*Leaf)
		deepEqual(t, leaf.Value(), want)
	}
}

func TestDecodeNode_Invalid(t *testing.T) {
	good := must(EncodeNode(nil, sampleTree()))
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", good[:len(good)-1]},
		{"trailing", append(append([]byte{}, good...), 0xc0)},
		{"not an array", []byte{0xa1, 'x'}},
		{"unknown tag", []byte{0x91, 0x07}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNode(tt.data)
			var de *DataError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, wanted DataError", err)
			}
		})
	}
}

func TestDecodeNode_DuplicateFields(t *testing.T) {
	// [2, "a", leaf, "a", leaf]
	leaf := must(EncodeNode(nil, NewLeaf(nil, false)))
	data := []byte{0x95, 0x02, 0xa1, 'a'}
	data = append(data, leaf...)
	data = append(data, 0xa1, 'a')
	data = append(data, leaf...)
	if _, err := DecodeNode(data); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValue_RoundTrip(t *testing.T) {
	node := sampleTree()
	raw := must(EncodeValue(node))
	nodeEqual(t, must(DecodeValue(raw)), node)

	tests := []struct {
		name string
		raw  []byte
	}{
		{"short", raw[:2]},
		{"bad version", append([]byte{0x02}, raw[1:]...)},
		{"bad flags", append([]byte{0x11}, raw[1:]...)},
		{"size mismatch", raw[:len(raw)-1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeValue(tt.raw)
			var de *DataError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, wanted DataError", err)
			}
		})
	}
}

func TestMarshalNodeJSON(t *testing.T) {
	m := NewMap()
	m.Set("z", NewLeaf(int64(1), false))
	m.Set("a", NewList(NewLeaf("x", false), NewLeaf(nil, false)))
	m.Set("m", NewMap())
	deepEqual(t, string(must(MarshalNodeJSON(m))), `{"z":1,"a":["x",null],"m":{}}`)
	deepEqual(t, Dump(nil), "<none>")
}

func TestDumpTree(t *testing.T) {
	m := NewMap()
	m.Set("name", NewLeaf("foo", true))
	m.Set("tags", NewList(NewLeaf("a", false)))
	want := "{2}\n  name: \"foo\"*\n  tags: [1]\n    0: \"a\"\n"
	deepEqual(t, DumpTree(m), want)
}
