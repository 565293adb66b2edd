package blob

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/freyjadoc/pkg/compression"
)

func TestBinaryRoundTrip(t *testing.T) {
	input := sampleText(3000)
	for _, typ := range allTypes {
		t.Run(typ.String(), func(t *testing.T) {
			v := New(1234567890123)
			require.NoError(t, v.Set(input, len(input), compression.NewConfig(typ, 0)))

			frame, err := v.MarshalBinary()
			require.NoError(t, err)
			assert.Len(t, frame, headerSize+v.Size()+4)

			var got Value
			require.NoError(t, got.UnmarshalBinary(frame))
			assert.Equal(t, v, got)

			frame[headerSize] ^= 0xFF
			assert.Equal(t, v.Bytes(), got.Bytes(), "payload is copied out of the frame")

			out, ok, err := got.Decompressed()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, input, out)
		})
	}
}

func TestBinaryEmptyValue(t *testing.T) {
	v := New(8)
	frame, err := v.MarshalBinary()
	require.NoError(t, err)

	var got Value
	require.NoError(t, got.UnmarshalBinary(frame))
	assert.True(t, got.Empty())
	assert.Equal(t, uint64(8), got.SyncToken())
}

func TestBinaryBadFrames(t *testing.T) {
	v := New(1)
	require.NoError(t, v.SetUncompressed([]byte("payload"), 7))
	frame, err := v.MarshalBinary()
	require.NoError(t, err)

	testCases := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"short", frame[:10]},
		{"truncated", frame[:len(frame)-1]},
		{"flipped token", flip(frame, 5)},
		{"flipped payload", flip(frame, headerSize+1)},
		{"flipped crc", flip(frame, 0)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got Value
			err := got.UnmarshalBinary(tc.frame)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBadFrame))
		})
	}
}

func flip(b []byte, i int) []byte {
	out := append([]byte(nil), b...)
	out[i] ^= 0x01
	return out
}
