package arbor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Node wire format (msgpack):
//
//	leaf: [0, indexed, vtag, value]
//	list: [1, item...]
//	map:  [2, name, node, name, node...]
//
// vtag pins the leaf value type so that a decoded leaf holds exactly the Go
// type it was saved with.
const (
	nodeTagLeaf = 0
	nodeTagList = 1
	nodeTagMap  = 2
)

const (
	vtagNull = iota
	vtagBool
	vtagInt
	vtagUint
	vtagFloat
	vtagString
	vtagBytes
	vtagTime
)

// EncodeNode appends the binary encoding of node to buf.
func EncodeNode(buf []byte, node Node) ([]byte, error) {
	bb := bytesBuilder{buf}
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bb, nil)
	err := encodeNode(enc, node)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return bb.Buf, nil
}

func encodeNode(enc *msgpack.Encoder, node Node) error {
	switch node := node.(type) {
	case *Leaf:
		ensure(enc.EncodeArrayLen(4))
		ensure(enc.EncodeInt(nodeTagLeaf))
		ensure(enc.EncodeBool(node.indexed))
		return encodeLeafValue(enc, node.value)
	case *List:
		ensure(enc.EncodeArrayLen(1 + node.Len()))
		ensure(enc.EncodeInt(nodeTagList))
		for _, item := range node.All() {
			if err := encodeNode(enc, item); err != nil {
				return err
			}
		}
		return nil
	case *Map:
		ensure(enc.EncodeArrayLen(1 + 2*node.Len()))
		ensure(enc.EncodeInt(nodeTagMap))
		for name, child := range node.All() {
			ensure(enc.EncodeString(name))
			if err := encodeNode(enc, child); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("arbor: cannot encode node %T", node)
	}
}

func encodeLeafValue(enc *msgpack.Encoder, v any) error {
	switch v := v.(type) {
	case nil:
		ensure(enc.EncodeInt(vtagNull))
		return enc.EncodeNil()
	case bool:
		ensure(enc.EncodeInt(vtagBool))
		return enc.EncodeBool(v)
	case int64:
		ensure(enc.EncodeInt(vtagInt))
		return enc.EncodeInt(v)
	case uint64:
		ensure(enc.EncodeInt(vtagUint))
		return enc.EncodeUint(v)
	case float64:
		ensure(enc.EncodeInt(vtagFloat))
		return enc.EncodeFloat64(v)
	case string:
		ensure(enc.EncodeInt(vtagString))
		return enc.EncodeString(v)
	case []byte:
		ensure(enc.EncodeInt(vtagBytes))
		return enc.EncodeBytes(v)
	case time.Time:
		ensure(enc.EncodeInt(vtagTime))
		return enc.EncodeTime(v)
	default:
		return fmt.Errorf("arbor: cannot encode leaf value %T", v)
	}
}

// DecodeNode decodes a node produced by EncodeNode. The whole input must be
// consumed.
func DecodeNode(data []byte) (Node, error) {
	r := bytes.NewReader(data)
	dec := msgpack.GetDecoder()
	dec.ResetDict(r, nil)
	node, err := decodeNode(dec)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, dataErrf(data, len(data)-r.Len(), err, "invalid node")
	}
	if r.Len() != 0 {
		return nil, dataErrf(data, len(data)-r.Len(), nil, "invalid node: %d trailing bytes", r.Len())
	}
	return node, nil
}

func decodeNode(dec *msgpack.Decoder) (Node, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("node array of length %d", n)
	}
	tag, err := dec.DecodeInt()
	if err != nil {
		return nil, err
	}
	switch tag {
	case nodeTagLeaf:
		if n != 4 {
			return nil, fmt.Errorf("leaf array of length %d", n)
		}
		indexed, err := dec.DecodeBool()
		if err != nil {
			return nil, err
		}
		v, err := decodeLeafValue(dec)
		if err != nil {
			return nil, err
		}
		return NewLeaf(v, indexed), nil
	case nodeTagList:
		list := &List{items: make([]Node, 0, n-1)}
		for i := 1; i < n; i++ {
			item, err := decodeNode(dec)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i-1, err)
			}
			list.Append(item)
		}
		return list, nil
	case nodeTagMap:
		if n%2 != 1 {
			return nil, fmt.Errorf("map array of length %d", n)
		}
		m := NewMap()
		for i := 1; i < n; i += 2 {
			name, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			child, err := decodeNode(dec)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if m.Has(name) {
				return nil, fmt.Errorf("duplicate field %q", name)
			}
			m.Set(name, child)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown node tag %d", tag)
	}
}

func decodeLeafValue(dec *msgpack.Decoder) (any, error) {
	vtag, err := dec.DecodeInt()
	if err != nil {
		return nil, err
	}
	switch vtag {
	case vtagNull:
		return nil, dec.DecodeNil()
	case vtagBool:
		return dec.DecodeBool()
	case vtagInt:
		return dec.DecodeInt64()
	case vtagUint:
		return dec.DecodeUint64()
	case vtagFloat:
		return dec.DecodeFloat64()
	case vtagString:
		return dec.DecodeString()
	case vtagBytes:
		b, err := dec.DecodeBytes()
		if b == nil && err == nil {
			b = []byte{}
		}
		return b, err
	case vtagTime:
		t, err := dec.DecodeTime()
		return t.UTC(), err
	default:
		return nil, fmt.Errorf("unknown leaf value tag %d", vtag)
	}
}

// MarshalNodeJSON renders node as JSON, keeping map fields in node order.
// Index flags are not represented.
func MarshalNodeJSON(node Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeNodeJSON(&buf, node); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNodeJSON(buf *bytes.Buffer, node Node) error {
	switch node := node.(type) {
	case *Leaf:
		raw, err := json.Marshal(node.value)
		if err != nil {
			return err
		}
		buf.Write(raw)
	case *List:
		buf.WriteByte('[')
		for i, item := range node.All() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNodeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Map:
		buf.WriteByte('{')
		first := true
		for name, child := range node.All() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			buf.Write(must(json.Marshal(name)))
			buf.WriteByte(':')
			if err := writeNodeJSON(buf, child); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("arbor: cannot render node %T", node)
	}
	return nil
}
