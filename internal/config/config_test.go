// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers env expansion, duration parsing, defaults, and fatal validation errors

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
	t.Helper()
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
mode: lambda
store:
  backend: dynamodb
  dynamodb:
    clients_table: relay-clients
    gatekeepers_table: relay-gatekeepers
    pairings_table: relay-pairings
    region: us-east-1
ttl:
  connection: 30m
  pairing: 45m
matching:
  cardinality: one-to-many
relay:
  notify_no_route: false
retry:
  max_attempts: 5
  backoff: 250ms
transport:
  endpoint: https://abc123.execute-api.us-east-1.amazonaws.com/prod
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeLambda, cfg.Mode)
	assert.Equal(t, BackendDynamoDB, cfg.Store.Backend)
	assert.Equal(t, "relay-clients", cfg.Store.DynamoDB.ClientsTable)
	assert.Equal(t, 30*time.Minute, cfg.TTL.Connection)
	assert.Equal(t, 45*time.Minute, cfg.TTL.Pairing)
	assert.Equal(t, "one-to-many", cfg.Matching.Cardinality)
	assert.False(t, *cfg.Relay.NotifyNoRoute)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Backoff)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: sqlite
  sqlite:
    path: /tmp/broker.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeServer, cfg.Mode)
	assert.Equal(t, 2*time.Hour, cfg.TTL.Connection)
	assert.Equal(t, 2*time.Hour, cfg.TTL.Pairing)
	assert.Equal(t, "one-to-one", cfg.Matching.Cardinality)
	assert.True(t, *cfg.Relay.NotifyNoRoute)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.Backoff)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/ws", cfg.Server.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_BROKER_DB", "/data/broker.db")

	path := writeConfig(t, `
store:
  backend: sqlite
  sqlite:
    path: ${TEST_BROKER_DB}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/broker.db", cfg.Store.SQLite.Path)
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown backend",
			yaml:    "store:\n  backend: redis\n",
			wantErr: "store.backend",
		},
		{
			name:    "sqlite without path",
			yaml:    "store:\n  backend: sqlite\n",
			wantErr: "store.sqlite.path",
		},
		{
			name: "dynamodb missing table",
			yaml: `
store:
  backend: dynamodb
  dynamodb:
    clients_table: relay-clients
    pairings_table: relay-pairings
`,
			wantErr: "gatekeepers_table",
		},
		{
			name: "lambda without transport endpoint",
			yaml: `
mode: lambda
store:
  backend: sqlite
  sqlite:
    path: /tmp/broker.db
`,
			wantErr: "transport.endpoint",
		},
		{
			name: "malformed ttl",
			yaml: `
store:
  backend: sqlite
  sqlite:
    path: /tmp/broker.db
ttl:
  connection: "soon"
`,
			wantErr: "ttl.connection",
		},
		{
			name: "bad cardinality",
			yaml: `
store:
  backend: sqlite
  sqlite:
    path: /tmp/broker.db
matching:
  cardinality: many-to-many
`,
			wantErr: "cardinality",
		},
		{
			name: "bad mode",
			yaml: `
mode: cluster
store:
  backend: sqlite
  sqlite:
    path: /tmp/broker.db
`,
			wantErr: "mode",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
