package arbor

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Key identifies a persisted entity: its kind plus a name unique within the
// kind. Keys are comparable and usable as map keys.
type Key struct {
	Kind string
	Name string
}

func NewKey(kind, name string) Key {
	return Key{kind, name}
}

func (k Key) IsZero() bool {
	return k.Kind == "" && k.Name == ""
}

// IsComplete reports whether both parts are set.
func (k Key) IsComplete() bool {
	return k.Kind != "" && k.Name != ""
}

func (k Key) String() string {
	return k.Kind + "/" + k.Name
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	kind, name, ok := strings.Cut(string(text), "/")
	if !ok || kind == "" || name == "" {
		return fmt.Errorf("arbor: invalid key %q", text)
	}
	k.Kind, k.Name = kind, name
	return nil
}

func ParseKey(s string) (Key, error) {
	var k Key
	err := k.UnmarshalText([]byte(s))
	return k, err
}

// Raw encodes the key as a tuple of its parts, which unlike String is
// unambiguous for names containing slashes.
func (k Key) Raw() []byte {
	return tuple{[]byte(k.Kind), []byte(k.Name)}.encode(nil)
}

func ParseRawKey(raw []byte) (Key, error) {
	tup, err := decodeTuple(raw)
	if err != nil {
		return Key{}, err
	}
	if len(tup) != 2 {
		return Key{}, dataErrf(raw, 0, nil, "invalid key: %d components, wanted 2", len(tup))
	}
	return Key{string(tup[0]), string(tup[1])}, nil
}

// tuple format: el1 el2 ... elN len1 len2 ... lenN-1  n
type tuple [][]byte

func decodeTuple(raw []byte) (tuple, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	c, raw, err := decodeRuvarint(raw)
	if err != nil || c == 0 {
		return nil, err
	}

	lens := make([]uint32, c)
	for i := int(c) - 2; i >= 0; i-- {
		if len(raw) == 0 {
			return nil, fmt.Errorf("invalid tuple: missing length of element %d", i)
		}
		lens[i], raw, err = decodeRuvarint(raw)
		if err != nil {
			return nil, err
		}
	}

	var explicitLen uint64
	for i := uint32(0); i < c-1; i++ {
		explicitLen += uint64(lens[i])
	}
	if explicitLen > uint64(len(raw)) {
		return nil, fmt.Errorf("invalid tuple: sum of explicit lens %d is greater than total data len %d", explicitLen, len(raw))
	}

	starts := make([]uint32, c+1)
	for i := uint32(0); i < c-1; i++ {
		starts[i+1] = starts[i] + lens[i]
	}
	starts[c] = uint32(len(raw))

	tup := make(tuple, c)
	for i := uint32(0); i < c; i++ {
		tup[i] = raw[starts[i]:starts[i+1]]
	}
	return tup, nil
}

func (tup tuple) encode(buf []byte) []byte {
	for _, el := range tup {
		buf = appendRaw(buf, el)
	}
	for _, el := range tup[:len(tup)-1] {
		buf = appendRuvarint(buf, uint32(len(el)))
	}
	return appendRuvarint(buf, uint32(len(tup)))
}

// Reverse Uvarint is just byte-reversed Uvarint, for right-to-left reading
func appendRuvarint(buf []byte, v uint32) []byte {
	var vb [binary.MaxVarintLen32]byte
	vn := binary.PutUvarint(vb[:], uint64(v))
	off, buf := grow(buf, vn)
	for i, b := range vb[:vn] {
		buf[off+vn-i-1] = b
	}
	return buf
}

func decodeRuvarint(buf []byte) (uint32, []byte, error) {
	var vb [binary.MaxVarintLen32]byte
	n := len(buf)
	c := min(n, binary.MaxVarintLen32)
	for i := 0; i < c; i++ {
		vb[i] = buf[n-i-1]
	}
	v, vn := binary.Uvarint(vb[:c])
	if vn <= 0 || v > 1<<32-1 {
		return 0, nil, fmt.Errorf("invalid ruvarint in %x", buf)
	}
	return uint32(v), buf[:n-vn], nil
}
