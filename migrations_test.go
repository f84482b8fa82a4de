package webhooks

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_CoverAllSupportedDialects(t *testing.T) {
	want := []string{
		"001_create_webhook_subscriptions.sql",
		"002_create_webhook_delivery_logs.sql",
	}

	for _, dialect := range []string{"mysql", "postgres", "sqlite3"} {
		t.Run(dialect, func(t *testing.T) {
			entries, err := fs.ReadDir(MigrationFiles, "migrations/"+dialect)
			require.NoError(t, err)

			var names []string
			for _, entry := range entries {
				names = append(names, entry.Name())
			}
			assert.Equal(t, want, names)

			for _, name := range want {
				data, err := fs.ReadFile(MigrationFiles, "migrations/"+dialect+"/"+name)
				require.NoError(t, err)
				assert.NotEmpty(t, data)
			}
		})
	}
}
