package artifacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	require.NoError(t, s.Write("pkg", "1.0.0", []byte("archive bytes")))

	data, err := s.Read("pkg", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("archive bytes"), data)
}

func TestReadMissing(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	_, err := s.Read("pkg", "1.0.0")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLastWriteWins(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	require.NoError(t, s.Write("pkg", "1.0.0", []byte("first")))
	require.NoError(t, s.Write("pkg", "1.0.0", []byte("second")))

	data, err := s.Read("pkg", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pkg-1.0.0-pre.zip", Key("pkg", "1.0.0-pre"))
}
