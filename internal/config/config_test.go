package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opensprint/core/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConcurrency, cfg.Concurrency)
	require.Equal(t, DefaultTestCommand, cfg.TestCommand)
}

func TestLoadOverlaysProvidedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".opensprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency: 8\ntest_command: make test\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Concurrency)
	require.Equal(t, "make test", cfg.TestCommand)
	require.Equal(t, DefaultSimpleComplexityAgent, cfg.SimpleAgent)
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".opensprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency: 8\n"), 0o644))
	t.Setenv("OPENSPRINT_CONCURRENCY", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Concurrency)
}

func TestToProjectAppliesGitWorkingModeDefault(t *testing.T) {
	proj := ToProject("p1", Default())
	require.Equal(t, model.GitModeWorktree, proj.Settings.GitWorkingMode)
	require.Equal(t, "p1", proj.ID)
}
