package arbor

import (
	"encoding"
	"fmt"
	"math"
	"time"
)

type (
	IntegerValue interface {
		~int | ~int8 | ~int16 | ~int32 | ~int64
	}
	UnsignedValue interface {
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
	}
	FloatValue interface {
		~float32 | ~float64
	}
)

func leafOf(node Node) (*Leaf, error) {
	leaf, ok := node.(*Leaf)
	if !ok {
		return nil, translationErrf(Root, nil, "expected leaf node, got %s", describeNode(node))
	}
	return leaf, nil
}

func unexpectedLeaf(leaf *Leaf, wanted string) error {
	return translationErrf(Root, nil, "expected %s value, got %T", wanted, leaf.value)
}

type stringTranslator struct{}

// String translates strings. A null leaf loads as "".
func String() Translator[string] { return stringTranslator{} }

func (stringTranslator) Load(node Node, ctx *LoadContext) (string, error) {
	leaf, err := leafOf(node)
	if err != nil {
		return "", err
	}
	switch v := leaf.value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", unexpectedLeaf(leaf, "string")
	}
}

func (stringTranslator) Save(pojo string, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(pojo, index)), nil
}

type boolTranslator struct{}

func Bool() Translator[bool] { return boolTranslator{} }

func (boolTranslator) Load(node Node, ctx *LoadContext) (bool, error) {
	leaf, err := leafOf(node)
	if err != nil {
		return false, err
	}
	switch v := leaf.value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, unexpectedLeaf(leaf, "bool")
	}
}

func (boolTranslator) Save(pojo bool, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(pojo, index)), nil
}

type intTranslator[T IntegerValue] struct{}

// Int translates signed integers, stored as int64 leaves. Loading accepts any
// numeric leaf that fits T exactly.
func Int[T IntegerValue]() Translator[T] { return intTranslator[T]{} }

func (intTranslator[T]) Load(node Node, ctx *LoadContext) (T, error) {
	leaf, err := leafOf(node)
	if err != nil {
		return 0, err
	}
	var r T
	switch v := leaf.value.(type) {
	case nil:
		return 0, nil
	case int64:
		r = T(v)
		if int64(r) != v {
			return 0, translationErrf(Root, nil, "%d overflows %T", v, r)
		}
	case uint64:
		r = T(v)
		if v > math.MaxInt64 || int64(r) != int64(v) {
			return 0, translationErrf(Root, nil, "%d overflows %T", v, r)
		}
	case float64:
		r = T(v)
		if float64(r) != v {
			return 0, translationErrf(Root, nil, "%v is not representable as %T", v, r)
		}
	default:
		return 0, unexpectedLeaf(leaf, "integer")
	}
	return r, nil
}

func (intTranslator[T]) Save(pojo T, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(int64(pojo), index)), nil
}

type uintTranslator[T UnsignedValue] struct{}

// Uint translates unsigned integers, stored as uint64 leaves.
func Uint[T UnsignedValue]() Translator[T] { return uintTranslator[T]{} }

func (uintTranslator[T]) Load(node Node, ctx *LoadContext) (T, error) {
	leaf, err := leafOf(node)
	if err != nil {
		return 0, err
	}
	var r T
	switch v := leaf.value.(type) {
	case nil:
		return 0, nil
	case uint64:
		r = T(v)
		if uint64(r) != v {
			return 0, translationErrf(Root, nil, "%d overflows %T", v, r)
		}
	case int64:
		r = T(v)
		if v < 0 || uint64(r) != uint64(v) {
			return 0, translationErrf(Root, nil, "%d overflows %T", v, r)
		}
	case float64:
		r = T(v)
		if v < 0 || float64(r) != v {
			return 0, translationErrf(Root, nil, "%v is not representable as %T", v, r)
		}
	default:
		return 0, unexpectedLeaf(leaf, "unsigned integer")
	}
	return r, nil
}

func (uintTranslator[T]) Save(pojo T, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(uint64(pojo), index)), nil
}

type floatTranslator[T FloatValue] struct{}

func Float[T FloatValue]() Translator[T] { return floatTranslator[T]{} }

func (floatTranslator[T]) Load(node Node, ctx *LoadContext) (T, error) {
	leaf, err := leafOf(node)
	if err != nil {
		return 0, err
	}
	switch v := leaf.value.(type) {
	case nil:
		return 0, nil
	case float64:
		return T(v), nil
	case int64:
		return T(v), nil
	case uint64:
		return T(v), nil
	default:
		return 0, unexpectedLeaf(leaf, "float")
	}
}

func (floatTranslator[T]) Save(pojo T, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(float64(pojo), index)), nil
}

type bytesTranslator struct{}

// Bytes translates byte slices. A nil slice is saved as a null leaf.
func Bytes() Translator[[]byte] { return bytesTranslator{} }

func (bytesTranslator) Load(node Node, ctx *LoadContext) ([]byte, error) {
	leaf, err := leafOf(node)
	if err != nil {
		return nil, err
	}
	switch v := leaf.value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return append([]byte{}, v...), nil
	default:
		return nil, unexpectedLeaf(leaf, "bytes")
	}
}

func (bytesTranslator) Save(pojo []byte, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	if pojo == nil {
		return Produced(NewLeaf(nil, index)), nil
	}
	return Produced(NewLeaf(append([]byte{}, pojo...), index)), nil
}

type timeTranslator struct{}

// Time translates time.Time values, normalized to UTC. Loading also accepts
// RFC 3339 strings, which is how string-typed stores hand times back.
func Time() Translator[time.Time] { return timeTranslator{} }

func (timeTranslator) Load(node Node, ctx *LoadContext) (time.Time, error) {
	leaf, err := leafOf(node)
	if err != nil {
		return time.Time{}, err
	}
	switch v := leaf.value.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v.UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, translationErrf(Root, err, "invalid time")
		}
		return t.UTC(), nil
	default:
		return time.Time{}, unexpectedLeaf(leaf, "time")
	}
}

func (timeTranslator) Save(pojo time.Time, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	return Produced(NewLeaf(pojo.UTC(), index)), nil
}

type textTranslator[T encoding.TextMarshaler, PT interface {
	*T
	encoding.TextUnmarshaler
}] struct{}

// Text translates values that marshal themselves to text, stored as strings.
func Text[T encoding.TextMarshaler, PT interface {
	*T
	encoding.TextUnmarshaler
}]() Translator[T] {
	return textTranslator[T, PT]{}
}

func (textTranslator[T, PT]) Load(node Node, ctx *LoadContext) (T, error) {
	var r T
	leaf, err := leafOf(node)
	if err != nil {
		return r, err
	}
	switch v := leaf.value.(type) {
	case nil:
		return r, nil
	case string:
		if err := PT(&r).UnmarshalText([]byte(v)); err != nil {
			return r, translationErrf(Root, err, "cannot parse %T", r)
		}
		return r, nil
	default:
		return r, unexpectedLeaf(leaf, "string")
	}
}

func (textTranslator[T, PT]) Save(pojo T, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	b, err := pojo.MarshalText()
	if err != nil {
		return Omitted, translationErrf(path, err, "cannot marshal %T", pojo)
	}
	return Produced(NewLeaf(string(b), index)), nil
}

type rawTranslator struct{}

// Raw passes leaf values through untouched. Saving a value that is not a
// supported leaf type fails.
func Raw() Translator[any] { return rawTranslator{} }

func (rawTranslator) Load(node Node, ctx *LoadContext) (any, error) {
	leaf, err := leafOf(node)
	if err != nil {
		return nil, err
	}
	return leaf.value, nil
}

func (rawTranslator) Save(pojo any, path Path, index bool, ctx *SaveContext) (Outcome, error) {
	if !isLeafValue(pojo) {
		return Omitted, translationErrf(path, nil, "unsupported leaf value type %T", pojo)
	}
	return Produced(NewLeaf(pojo, index)), nil
}

func isLeafValue(v any) bool {
	switch v.(type) {
	case nil, bool, int64, uint64, float64, string, []byte, time.Time:
		return true
	default:
		return false
	}
}

func formatLeafValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case []byte:
		return fmt.Sprintf("0x%x", v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
