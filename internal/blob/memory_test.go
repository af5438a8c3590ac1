package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("/api/files/")

	require.NoError(t, m.Put(ctx, "assets/u1/a1/logo.png", strings.NewReader("png-bytes"), 9, "image/png"))

	rc, info, err := m.Get(ctx, "assets/u1/a1/logo.png")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, "image/png", info.ContentType)

	assert.Equal(t, "/api/files/assets/u1/a1/logo.png", m.URL("assets/u1/a1/logo.png"))
}

func TestMemoryMissing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("")

	require.NoError(t, m.Put(ctx, "k", strings.NewReader("x"), 1, ""))
	require.NoError(t, m.Delete(ctx, "k"))

	_, _, err := m.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrNotFound))
}
