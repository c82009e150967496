package dispatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryYAML = `workers:
  - name: static-1
    address: 10.0.0.11:9101
    capabilities:
      - name: static
        tools: [lint, typecheck]
  - name: security-1
    address: 10.0.0.12:9101
    capabilities:
      - name: security
        tools: [audit]
`

func writeRegistry(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRegistry(t *testing.T) {
	r, err := LoadRegistry(writeRegistry(t, registryYAML))
	require.NoError(t, err)
	require.Len(t, r.Workers, 2)

	assert.Equal(t, "static-1", r.Workers[0].Name)
	assert.Equal(t, []string{"lint", "typecheck"}, r.Workers[0].ToolsFor("static"))
	assert.True(t, r.Workers[1].Offers("security"))
	assert.False(t, r.Workers[1].Offers("static"))
}

func TestLoadRegistryRejectsIncompleteWorker(t *testing.T) {
	_, err := LoadRegistry(writeRegistry(t, "workers:\n  - name: static-1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name and address")
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWorkersForSortsByName(t *testing.T) {
	r, err := LoadRegistry(writeRegistry(t, `workers:
  - name: zeta
    address: x:1
    capabilities: [{name: static, tools: [lint]}]
  - name: alpha
    address: x:2
    capabilities: [{name: static, tools: [lint]}]
`))
	require.NoError(t, err)

	got := r.WorkersFor("static")
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].Name)
	assert.Equal(t, "zeta", got[1].Name)
}
