package schema

import (
	"bytes"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrTypeMismatch is returned when a value or its stored bytes do not match
// the declared type of a field.
var ErrTypeMismatch = errors.New("field type mismatch")

type Kind uint8

const (
	KindAny Kind = iota
	KindInt
	KindFloat
	KindString
	KindBytes
	KindBool
)

// DataType encodes and decodes the payload of a single field. Payloads are
// msgpack values.
type DataType interface {
	Name() string
	Kind() Kind
	Encode(v any) ([]byte, error)
	Decode(raw []byte) (any, error)
}

var (
	Int    DataType = intType{}
	Float  DataType = floatType{}
	String DataType = stringType{}
	Bytes  DataType = bytesType{}
	Bool   DataType = boolType{}
	Any    DataType = anyType{}
)

var builtins = []DataType{Int, Float, String, Bytes, Bool, Any}

// TypeByName returns the built-in type with the given name.
func TypeByName(name string) (DataType, bool) {
	for _, t := range builtins {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

func mismatch(t DataType, v any) error {
	return errors.Wrapf(ErrTypeMismatch, "cannot store %T in %s field", v, t.Name())
}

func encodeWith(fn func(*msgpack.Encoder) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := fn(msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeWith runs fn over raw and requires that it consumes every byte.
func decodeWith(t DataType, raw []byte, fn func(*msgpack.Decoder) (any, error)) (any, error) {
	r := bytes.NewReader(raw)
	v, err := fn(msgpack.NewDecoder(r))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode %s", t.Name()), ErrTypeMismatch)
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(ErrTypeMismatch, "decode %s: %d trailing bytes", t.Name(), r.Len())
	}
	return v, nil
}

type intType struct{}

func (intType) Name() string { return "int" }
func (intType) Kind() Kind   { return KindInt }

func (t intType) Encode(v any) ([]byte, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, mismatch(t, v)
		}
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return nil, mismatch(t, v)
		}
		n = int64(x)
	default:
		return nil, mismatch(t, v)
	}
	return encodeWith(func(e *msgpack.Encoder) error { return e.EncodeInt(n) })
}

func (t intType) Decode(raw []byte) (any, error) {
	return decodeWith(t, raw, func(d *msgpack.Decoder) (any, error) { return d.DecodeInt64() })
}

type floatType struct{}

func (floatType) Name() string { return "float" }
func (floatType) Kind() Kind   { return KindFloat }

func (t floatType) Encode(v any) ([]byte, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		return nil, mismatch(t, v)
	}
	return encodeWith(func(e *msgpack.Encoder) error { return e.EncodeFloat64(f) })
}

func (t floatType) Decode(raw []byte) (any, error) {
	return decodeWith(t, raw, func(d *msgpack.Decoder) (any, error) { return d.DecodeFloat64() })
}

type stringType struct{}

func (stringType) Name() string { return "string" }
func (stringType) Kind() Kind   { return KindString }

func (t stringType) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, mismatch(t, v)
	}
	return encodeWith(func(e *msgpack.Encoder) error { return e.EncodeString(s) })
}

func (t stringType) Decode(raw []byte) (any, error) {
	return decodeWith(t, raw, func(d *msgpack.Decoder) (any, error) { return d.DecodeString() })
}

type bytesType struct{}

func (bytesType) Name() string { return "bytes" }
func (bytesType) Kind() Kind   { return KindBytes }

func (t bytesType) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, mismatch(t, v)
	}
	return encodeWith(func(e *msgpack.Encoder) error { return e.EncodeBytes(b) })
}

func (t bytesType) Decode(raw []byte) (any, error) {
	return decodeWith(t, raw, func(d *msgpack.Decoder) (any, error) { return d.DecodeBytes() })
}

type boolType struct{}

func (boolType) Name() string { return "bool" }
func (boolType) Kind() Kind   { return KindBool }

func (t boolType) Encode(v any) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, mismatch(t, v)
	}
	return encodeWith(func(e *msgpack.Encoder) error { return e.EncodeBool(b) })
}

func (t boolType) Decode(raw []byte) (any, error) {
	return decodeWith(t, raw, func(d *msgpack.Decoder) (any, error) { return d.DecodeBool() })
}

// anyType stores whatever msgpack can represent. Map keys are sorted so
// equal values encode to equal bytes.
type anyType struct{}

func (anyType) Name() string { return "any" }
func (anyType) Kind() Kind   { return KindAny }

func (t anyType) Encode(v any) ([]byte, error) {
	b, err := encodeWith(func(e *msgpack.Encoder) error {
		e.SetSortMapKeys(true)
		return e.Encode(v)
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode any"), ErrTypeMismatch)
	}
	return b, nil
}

func (t anyType) Decode(raw []byte) (any, error) {
	return decodeWith(t, raw, func(d *msgpack.Decoder) (any, error) { return d.DecodeInterfaceLoose() })
}
