package arbor

const (
	valueFormatVer1      = 1
	valueFormatVerLatest = valueFormatVer1
)

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3

	vfVerMask       = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1          = vfVerBit0
	vfSupportedMask = vfVerMask
	vfDefault       = vfVer1

	minValueSize = 3
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

// EncodeValue produces the stored form of node for byte-oriented backends:
// a header (flags, data size) followed by the EncodeNode bytes.
//
// Header:
//  1. Flags (uvarint), the low 4 bits holding the format version.
//  2. Data size (uvarint).
func EncodeValue(node Node) ([]byte, error) {
	data, err := EncodeNode(nil, node)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(data)+16)
	buf = appendUvarint(buf, uint64(vfDefault))
	buf = appendUvarint(buf, uint64(len(data)))
	return appendRaw(buf, data), nil
}

// DecodeValue reverses EncodeValue.
func DecodeValue(raw []byte) (Node, error) {
	if len(raw) < minValueSize {
		return nil, dataErrf(raw, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}
	d := makeByteDecoder(raw)

	v, err := d.Uvarint()
	if err != nil {
		return nil, err
	}
	flags := valueFlags(v)
	if (flags &^ vfSupportedMask) != 0 {
		return nil, dataErrf(raw, 0, nil, "invalid value: unsupported flags %x", v)
	}
	if flags.ver() != vfVer1 {
		return nil, dataErrf(raw, 0, nil, "invalid value: unsupported format version %d", flags.ver())
	}

	size, err := d.Uvarinti()
	if err != nil {
		return nil, err
	}
	if size != len(d.Buf) {
		return nil, dataErrf(raw, d.Off(), nil, "invalid value: got %d bytes of data, expected %d bytes", len(d.Buf), size)
	}
	data := must(d.Raw(size))
	return DecodeNode(data)
}
