package schema

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/freyjadoc/pkg/compression"
	"github.com/ssargent/freyjadoc/pkg/fieldindex"
)

func bookType(t *testing.T) *StructType {
	t.Helper()
	st, err := NewStructType("book",
		Field{ID: 1, Name: "title", Type: String},
		Field{ID: 2, Name: "pages", Type: Int},
		Field{ID: 5, Name: "rating", Type: Float},
	)
	require.NoError(t, err)
	return st
}

func TestStructTypeLookup(t *testing.T) {
	st := bookType(t)

	assert.Equal(t, "book", st.Name())
	assert.True(t, st.HasField("pages"))
	assert.False(t, st.HasField("isbn"))

	f, err := st.Field("rating")
	require.NoError(t, err)
	assert.Equal(t, fieldindex.FieldID(5), f.ID)

	_, err = st.Field("isbn")
	assert.True(t, errors.Is(err, ErrFieldNotDeclared))

	byID, ok := st.FieldByID(2)
	require.True(t, ok)
	assert.Equal(t, "pages", byID.Name)

	_, ok = st.FieldByID(3)
	assert.False(t, ok)

	assert.True(t, st.Owns(f))
	assert.False(t, st.Owns(Field{ID: 5, Name: "rating", Type: Int}))
	assert.False(t, st.Owns(Field{ID: 9, Name: "other", Type: Int}))
}

func TestStructTypeRejectsDuplicates(t *testing.T) {
	_, err := NewStructType("x", Field{ID: 1, Name: "a", Type: Int}, Field{ID: 1, Name: "b", Type: Int})
	assert.Error(t, err)

	_, err = NewStructType("x", Field{ID: 1, Name: "a", Type: Int}, Field{ID: 2, Name: "a", Type: Int})
	assert.Error(t, err)

	_, err = NewStructType("x", Field{ID: 1, Name: "a"})
	assert.Error(t, err)

	assert.Panics(t, func() { MustStructType("x", Field{ID: 1}) })
}

func TestDataTypeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		typ  DataType
		in   any
		want any
	}{
		{"int", Int, 42, int64(42)},
		{"negative int", Int, int64(-7), int64(-7)},
		{"uint8", Int, uint8(200), int64(200)},
		{"float", Float, 2.5, 2.5},
		{"float from int", Float, 3, 3.0},
		{"string", String, "héllo", "héllo"},
		{"empty string", String, "", ""},
		{"bytes", Bytes, []byte{0, 1, 2}, []byte{0, 1, 2}},
		{"bool", Bool, true, true},
		{"any map", Any, map[string]any{"a": "b"}, map[string]any{"a": "b"}},
		{"any int", Any, 12, int64(12)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.typ.Encode(tc.in)
			require.NoError(t, err)
			got, err := tc.typ.Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDataTypeEncodeRejectsWrongGoType(t *testing.T) {
	_, err := Int.Encode("12")
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	_, err = Int.Encode(uint64(1) << 63)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	_, err = String.Encode(12)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	_, err = Bool.Encode("true")
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	_, err = Bytes.Encode("abc")
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestDataTypeDecodeRejectsWrongLayout(t *testing.T) {
	str, err := String.Encode("not a number")
	require.NoError(t, err)

	_, err = Int.Decode(str)
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	num, err := Int.Encode(5)
	require.NoError(t, err)
	_, err = Int.Decode(append(num, 0x01))
	assert.True(t, errors.Is(err, ErrTypeMismatch), "trailing bytes")

	_, err = Bool.Decode(num)
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	_, err = String.Decode(nil)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestTypeByName(t *testing.T) {
	for _, name := range []string{"int", "float", "string", "bytes", "bool", "any"} {
		typ, ok := TypeByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, typ.Name())
	}
	_, ok := TypeByName("tensor")
	assert.False(t, ok)
}

func TestFieldSets(t *testing.T) {
	st := bookType(t)

	assert.True(t, AllFields.Contains(99))
	assert.False(t, NoFields.Contains(1))

	l := NewFieldList(1, 5)
	assert.True(t, l.Contains(5))
	assert.False(t, l.Contains(2))

	named, err := FieldNames(st, "title", "pages")
	require.NoError(t, err)
	assert.True(t, named.Contains(1))
	assert.True(t, named.Contains(2))
	assert.False(t, named.Contains(5))

	_, err = FieldNames(st, "title", "isbn")
	assert.True(t, errors.Is(err, ErrFieldNotDeclared))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Version:         3,
		Type:            "book",
		Compression:     compression.Zstd,
		UncompressedLen: 300,
		DataLen:         120,
		Fields: []FieldSize{
			{ID: 1, Size: 100},
			{ID: 70000, Size: 150},
			{ID: 2, Size: 50},
		},
	}
	buf := AppendHeader([]byte{}, h)
	buf = append(buf, 0xAA, 0xBB)

	got, n, err := ReadHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf)-2, n)
	assert.Equal(t, h, got)

	entries, err := fieldindex.Index(int(got.UncompressedLen), got.Scan())
	require.NoError(t, err)
	assert.Equal(t, fieldindex.EntryMap{
		{ID: 1, Range: fieldindex.Range{Offset: 0, Length: 100}},
		{ID: 70000, Range: fieldindex.Range{Offset: 100, Length: 150}},
		{ID: 2, Range: fieldindex.Range{Offset: 250, Length: 50}},
	}, entries)
}

func TestHeaderSizesExceedingPayloadAreCorrupt(t *testing.T) {
	h := Header{UncompressedLen: 10, DataLen: 10, Fields: []FieldSize{{ID: 1, Size: 8}, {ID: 2, Size: 8}}}
	got, _, err := ReadHeader(AppendHeader(nil, h))
	require.NoError(t, err)

	_, err = fieldindex.Index(int(got.UncompressedLen), got.Scan())
	assert.True(t, errors.Is(err, fieldindex.ErrCorruption))
}

func TestReadHeaderTruncated(t *testing.T) {
	full := AppendHeader(nil, Header{Version: 1, Type: "book", UncompressedLen: 4, DataLen: 4, Fields: []FieldSize{{ID: 1, Size: 4}}})
	for i := 0; i < len(full); i++ {
		_, _, err := ReadHeader(full[:i])
		require.Error(t, err, "prefix %d", i)
		assert.True(t, errors.Is(err, fieldindex.ErrCorruption))
	}
}

func TestReadHeaderTypeNameBeyondData(t *testing.T) {
	buf := AppendHeader(nil, Header{Version: 1, Type: "book"})
	buf[1] = 200 // type name length

	_, _, err := ReadHeader(buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fieldindex.ErrCorruption))
}
