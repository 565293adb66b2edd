package api

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/freyjadoc/pkg/document"
	"github.com/ssargent/freyjadoc/pkg/schema"
)

func TestDecodeFields(t *testing.T) {
	fields, err := DecodeFields([]byte(`{"a": 1, "b": "x", "c": null}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("1"), fields["a"])
	assert.Equal(t, "x", fields["b"])
	assert.Contains(t, fields, "c")

	for _, body := range []string{``, `null`, `[]`, `"str"`, `{`} {
		_, err := DecodeFields([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestCoerce(t *testing.T) {
	st := noteType()
	field := func(name string) schema.Field {
		f, err := st.Field(name)
		require.NoError(t, err)
		return f
	}

	testCases := []struct {
		field string
		in    interface{}
		want  interface{}
	}{
		{"stars", json.Number("12"), int64(12)},
		{"score", json.Number("2.5"), 2.5},
		{"score", json.Number("3"), 3.0},
		{"title", "hello", "hello"},
		{"pinned", false, false},
		{"attachment", "AQID", []byte{1, 2, 3}},
		{"meta", map[string]interface{}{"n": json.Number("7"), "f": json.Number("0.5"), "l": []interface{}{json.Number("1")}},
			map[string]interface{}{"n": int64(7), "f": 0.5, "l": []interface{}{int64(1)}}},
	}
	for _, tc := range testCases {
		t.Run(tc.field, func(t *testing.T) {
			got, err := coerce(field(tc.field), tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := coerce(field("stars"), "12")
	assert.True(t, errors.Is(err, schema.ErrTypeMismatch))
	_, err = coerce(field("score"), true)
	assert.True(t, errors.Is(err, schema.ErrTypeMismatch))
}

func TestApplyFieldsAndFieldValues(t *testing.T) {
	v := document.NewStructValue(noteType())
	fields, err := DecodeFields([]byte(`{"title": "t", "stars": 3, "pinned": true}`))
	require.NoError(t, err)
	require.NoError(t, ApplyFields(v, fields))

	all, err := FieldValues(v)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"title": "t", "stars": int64(3), "pinned": true}, all)

	some, err := FieldValues(v, "stars", "body")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"stars": int64(3)}, some)

	remove, err := DecodeFields([]byte(`{"stars": null}`))
	require.NoError(t, err)
	require.NoError(t, ApplyFields(v, remove))
	all, err = FieldValues(v)
	require.NoError(t, err)
	assert.NotContains(t, all, "stars")

	_, err = FieldValues(v, "missing")
	assert.True(t, errors.Is(err, schema.ErrFieldNotDeclared))
}
