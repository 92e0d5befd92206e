package filex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadPhoto_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	require.False(t, PhotoExists(dir, "rec-1"))

	require.NoError(t, WritePhoto(dir, "rec-1", []byte("jpeg-bytes")))
	require.True(t, PhotoExists(dir, "rec-1"))

	got, err := ReadPhoto(dir, "rec-1")
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-bytes"), got)
}

func TestPhotoPath_KeyedByRecordID(t *testing.T) {
	p1 := PhotoPath("/cache", "abc")
	p2 := PhotoPath("/cache", "abc")
	require.Equal(t, p1, p2)
	require.Contains(t, p1, "abc")
}

func TestReadPhoto_Missing(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadPhoto(dir, "nope")
	require.Error(t, err)
}
