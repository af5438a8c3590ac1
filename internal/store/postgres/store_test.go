package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaCoversEveryTable(t *testing.T) {
	ddl := Schema()
	for _, name := range []string{
		"xhs_users", "xhs_artworks", "xhs_projects", "xhs_tasks", "xhs_assets",
		"xhs_transactions", "xhs_notifications", "xhs_sessions", "outbox_events",
	} {
		assert.True(t, strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS "+name+" ("), name)
	}
}
