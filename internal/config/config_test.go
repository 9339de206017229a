package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
repo_path = "/srv/repo"

[store]
base_url = "https://store.example.com"
database_id = "db-123"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.PollIntervalSeconds)
	assert.Equal(t, 2, cfg.MaxConcurrentTasks)
	assert.Equal(t, "sonnet", cfg.DefaultModel)
	assert.Equal(t, "main", cfg.BaseRef)
	assert.Equal(t, 60, cfg.LeaseExpiryMinutes)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 15*time.Second, cfg.PollInterval())
	assert.Equal(t, time.Hour, cfg.LeaseExpiry())
	assert.NotEmpty(t, cfg.WorkspaceRoot)
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
repo_path = "/srv/repo"
poll_interval_seconds = 5
max_concurrent_tasks = 8
default_model = "opus"
lease_expiry_minutes = 30
api_port = 8080

[store]
base_url = "https://store.example.com"
database_id = "db-123"
token = "file-token"
`))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.PollIntervalSeconds)
	assert.Equal(t, 8, cfg.MaxConcurrentTasks)
	assert.Equal(t, "opus", cfg.DefaultModel)
	assert.Equal(t, 30*time.Minute, cfg.LeaseExpiry())
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, "file-token", cfg.Store.Token)
}

func TestLoadEnvOverridesToken(t *testing.T) {
	t.Setenv("TASKRELAY_STORE_TOKEN", "env-token")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Store.Token)
}

func TestLoadEnvDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TASKRELAY_DATA", dir)

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing base_url",
			content: `
repo_path = "/srv/repo"
[store]
database_id = "db-123"
`,
			wantErr: "store.base_url is required",
		},
		{
			name: "missing database_id",
			content: `
repo_path = "/srv/repo"
[store]
base_url = "https://store.example.com"
`,
			wantErr: "store.database_id is required",
		},
		{
			name: "missing repo_path",
			content: `
[store]
base_url = "https://store.example.com"
database_id = "db-123"
`,
			wantErr: "repo_path is required",
		},
		{
			name: "negative poll interval",
			content: `
repo_path = "/srv/repo"
poll_interval_seconds = -3
[store]
base_url = "https://store.example.com"
database_id = "db-123"
`,
			wantErr: "poll_interval_seconds must be >= 1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
