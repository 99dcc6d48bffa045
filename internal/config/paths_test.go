package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"gateway.port", []string{"gateway", "port"}, false},
		{"persona", []string{"persona"}, false},
		{"", nil, true},
		{"gateway..port", nil, true},
		{"gateway.", nil, true},
		{"__proto__.x", nil, true},
		{"a.constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetSetUnsetValueAtPath(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{"port": 3000},
		"flat":    "x",
	}

	v, ok := GetValueAtPath(root, []string{"gateway", "port"})
	require.True(t, ok)
	assert.Equal(t, 3000, v)

	_, ok = GetValueAtPath(root, []string{"flat", "child"})
	assert.False(t, ok)

	SetValueAtPath(root, []string{"persona", "greeting"}, "hi")
	v, ok = GetValueAtPath(root, []string{"persona", "greeting"})
	require.True(t, ok)
	assert.Equal(t, "hi", v)

	SetValueAtPath(root, []string{"flat", "child"}, 1)
	v, ok = GetValueAtPath(root, []string{"flat", "child"})
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, UnsetValueAtPath(root, []string{"gateway", "port"}))
	assert.False(t, UnsetValueAtPath(root, []string{"gateway", "port"}))
	assert.False(t, UnsetValueAtPath(root, []string{"missing", "key"}))
	assert.Contains(t, root, "gateway")
}

func TestParseScalar(t *testing.T) {
	assert.Equal(t, 3000, ParseScalar("3000"))
	assert.Equal(t, true, ParseScalar("true"))
	assert.Equal(t, "drop", ParseScalar("drop"))
	assert.Equal(t, "", ParseScalar(""))
	assert.Equal(t, "[a, b", ParseScalar("[a, b"))
}

func TestResolvePathsCustomHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BAOGATE_HOME", dir)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, dir, p.Base)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p.Config)
	assert.Equal(t, filepath.Join(dir, "data", "sessions.db"), p.Database)

	cfg := Defaults()
	assert.Equal(t, p.Database, p.DatabasePath(&cfg))
	cfg.Session.DatabasePath = "/tmp/other.db"
	assert.Equal(t, "/tmp/other.db", p.DatabasePath(&cfg))
}

func TestResolvePathsDefaultHome(t *testing.T) {
	t.Setenv("BAOGATE_HOME", "")
	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, ".baogate", filepath.Base(p.Base))
}

func TestEnsureDirs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")
	t.Setenv("BAOGATE_HOME", dir)

	p, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, p.EnsureDirs())
	require.NoError(t, p.EnsureDirs())

	for _, d := range []string{p.Base, p.Data, p.Logs} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
