package paging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), ID: "item-42"}
	out, err := Decode(in.Encode())
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode("not base64!!!")
	assert.Error(t, err)

	_, err = Decode("bm90IGpzb24")
	assert.Error(t, err)
}

func TestDecode_MissingPosition(t *testing.T) {
	_, err := Decode(Cursor{}.Encode())
	assert.Error(t, err)
}
