package fixtures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xhsmarket/pkg/util"
)

func TestLoad(t *testing.T) {
	f, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, f.Users)
	assert.NotEmpty(t, f.Artworks)
	assert.NotEmpty(t, f.Projects)
	assert.NotEmpty(t, f.Tasks)
	assert.NotEmpty(t, f.Assets)
	assert.NotEmpty(t, f.Transactions)
	assert.NotEmpty(t, f.Notifications)

	for _, u := range f.Users {
		assert.True(t, util.CheckPassword(DemoPassword, u.PasswordHash), u.ID)
	}
}

func TestFixtureReferencesResolve(t *testing.T) {
	f := MustLoad()

	users := map[string]bool{}
	for _, u := range f.Users {
		users[u.ID] = true
	}
	for _, a := range f.Artworks {
		assert.True(t, users[a.ArtistID], "artwork %s artist", a.ID)
	}
	for _, p := range f.Projects {
		assert.True(t, users[p.ClientID], "project %s client", p.ID)
	}
	ids := map[string]bool{}
	for _, a := range f.Artworks {
		assert.False(t, ids[a.ID], "duplicate artwork id %s", a.ID)
		ids[a.ID] = true
	}
}
