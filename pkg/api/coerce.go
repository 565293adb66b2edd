package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/freyjadoc/pkg/schema"
)

// DecodeFields parses a JSON object of field name to value. Numbers are
// kept as json.Number so they can be converted by the declared field kind.
func DecodeFields(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.Wrap(err, "request body must be a JSON object")
	}
	if fields == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	return fields, nil
}

func kindMismatch(f schema.Field, v interface{}) error {
	return errors.Wrapf(schema.ErrTypeMismatch, "field %s: cannot use JSON %T as %s", f.Name, v, f.Type.Name())
}

// coerce converts a decoded JSON value to the Go type f.Type encodes.
func coerce(f schema.Field, v interface{}) (interface{}, error) {
	switch f.Type.Kind() {
	case schema.KindInt:
		n, ok := v.(json.Number)
		if !ok {
			return nil, kindMismatch(f, v)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, kindMismatch(f, v)
		}
		return i, nil
	case schema.KindFloat:
		n, ok := v.(json.Number)
		if !ok {
			return nil, kindMismatch(f, v)
		}
		x, err := n.Float64()
		if err != nil {
			return nil, kindMismatch(f, v)
		}
		return x, nil
	case schema.KindString, schema.KindBool:
		return v, nil
	case schema.KindBytes:
		s, ok := v.(string)
		if !ok {
			return nil, kindMismatch(f, v)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.Wrapf(schema.ErrTypeMismatch, "field %s: bytes must be base64: %v", f.Name, err)
		}
		return b, nil
	default:
		return normalize(v), nil
	}
}

// normalize replaces json.Number inside arbitrary JSON with int64 or
// float64.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]interface{}:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case []interface{}:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	default:
		return v
	}
}
