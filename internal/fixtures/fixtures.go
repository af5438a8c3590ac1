// Package fixtures holds the demo data that seeds an empty store.
package fixtures

import (
	"embed"
	"encoding/json"
	"fmt"

	"xhsmarket/internal/store"
	"xhsmarket/pkg/util"
)

// DemoPassword is the password of every fixture account.
const DemoPassword = "password123"

//go:embed data/*.json
var files embed.FS

// Load decodes the embedded fixtures and hashes DemoPassword for each user.
func Load() (store.Fixtures, error) {
	var f store.Fixtures
	parts := []struct {
		name string
		dst  any
	}{
		{"users", &f.Users},
		{"artworks", &f.Artworks},
		{"projects", &f.Projects},
		{"tasks", &f.Tasks},
		{"assets", &f.Assets},
		{"transactions", &f.Transactions},
		{"notifications", &f.Notifications},
	}
	for _, p := range parts {
		raw, err := files.ReadFile("data/" + p.name + ".json")
		if err != nil {
			return store.Fixtures{}, fmt.Errorf("read fixture %s: %w", p.name, err)
		}
		if err := json.Unmarshal(raw, p.dst); err != nil {
			return store.Fixtures{}, fmt.Errorf("decode fixture %s: %w", p.name, err)
		}
	}

	hash, err := util.HashPassword(DemoPassword)
	if err != nil {
		return store.Fixtures{}, fmt.Errorf("hash demo password: %w", err)
	}
	for i := range f.Users {
		f.Users[i].PasswordHash = hash
	}
	return f, nil
}

// MustLoad is Load for tests and tools that cannot continue without data.
func MustLoad() store.Fixtures {
	f, err := Load()
	if err != nil {
		panic(err)
	}
	return f
}
