package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xhsmarket/internal/fixtures"
	"xhsmarket/internal/store/kv"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-dir", t.TempDir(), "--mode", "mock"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestArtworksListMock(t *testing.T) {
	out, err := run(t, "artworks", "list", "--sort", "likes", "--limit", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, lines[0], "TITLE")
	assert.Contains(t, lines[1], "Paper Lantern City")
	assert.Contains(t, lines[2], "Neon Koi")
	assert.Contains(t, lines[2], "¥120.00")
	assert.Contains(t, out, "2 of 6")
}

func TestArtworksQuerySearchesTitleArtistAndTags(t *testing.T) {
	out, err := run(t, "artworks", "list", "--query", "fog")
	require.NoError(t, err)
	assert.Contains(t, out, "Huangshan Morning")
	assert.Contains(t, out, "1 of 1")

	// descriptions are not searched
	out, err = run(t, "artworks", "list", "--query", "subsurface")
	require.NoError(t, err)
	assert.Contains(t, out, "0 of 0")

	help, err := run(t, "artworks", "list", "--help")
	require.NoError(t, err)
	assert.Contains(t, help, "Search title, artist and tags")
	assert.NotContains(t, help, "description")
}

func TestArtworksLikeNeedsLogin(t *testing.T) {
	_, err := run(t, "artworks", "like", "art-3")
	require.Error(t, err)

	out, err := run(t, "--email", "amy@xhs.example", "--password", fixtures.DemoPassword, "artworks", "like", "art-3")
	require.NoError(t, err)
	assert.Equal(t, "liked art-3 (2 likes)\n", out)
}

func TestProjectsCreateMock(t *testing.T) {
	out, err := run(t, "--email", "studio@xhs.example", "--password", fixtures.DemoPassword,
		"projects", "create", "Mooncake box art", "--budget-min", "100000", "--budget-max", "200000", "--tags", "packaging,festival")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Mooncake box art"`)
	assert.Contains(t, out, `"clientId": "u-studio"`)
}

func TestAIGenerateMock(t *testing.T) {
	out, err := run(t, "--email", "amy@xhs.example", "--password", fixtures.DemoPassword, "ai", "generate", "misty", "koi", "pond")
	require.NoError(t, err)
	assert.Contains(t, out, `"source": "placeholder"`)
	assert.Contains(t, out, `"prompt": "misty koi pond"`)
}

func TestTablesShowsSeededKeys(t *testing.T) {
	out, err := run(t, "tables")
	require.NoError(t, err)
	for _, key := range kv.AllKeys {
		assert.Contains(t, out, key+": ")
	}
	assert.Contains(t, out, `"Neon Koi"`)
}

func TestMigrateRefusesNonPostgres(t *testing.T) {
	_, err := run(t, "migrate")
	assert.ErrorContains(t, err, "postgres")

	out, err := run(t, "migrate", "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE")
}
