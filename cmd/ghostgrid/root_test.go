package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNeighborsCommand(t *testing.T) {
	out, err := execute(t, "neighbors")
	require.NoError(t, err)
	assert.Contains(t, out, "GRID")
	// Four blocks, three neighbors each, plus the header
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 13)
}

func TestGhostCommandWithCatalog(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	out, err := execute(t, "ghost", "--ranks", "4", "--layers", "2", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "4 grids on 4 ranks")
	assert.Contains(t, out, "run ")

	_, err = os.Stat(db)
	assert.NoError(t, err)
}

func TestAMRCommandFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amr.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[amr]
levels = 2

[[amr.patches]]
level = 1
extent = [8, 16, 8, 16, 0, 0]
`), 0o644))

	out, err := execute(t, "amr", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "CHILD")
	assert.Contains(t, out, "PARENT")
}

func TestBadConfig(t *testing.T) {
	_, err := execute(t, "ghost", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
