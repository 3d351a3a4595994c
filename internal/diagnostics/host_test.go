package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	dir := t.TempDir()
	h := Probe(context.Background(), filepath.Join(dir, "not", "yet"))

	assert.Equal(t, dir, h.DiskPath)
	assert.GreaterOrEqual(t, h.MemPercent, 0.0)
}

func TestExistingParent(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, existingParent(filepath.Join(dir, "a", "b")))
	assert.Equal(t, dir, existingParent(dir))
}

func TestHostChecks(t *testing.T) {
	checks := HostChecks(Host{
		CPUThreads: 8,
		MemTotalMB: 16000,
		MemPercent: 95,
		DiskPath:   "/data",
		DiskFreeGB: 0.5,
	})
	require.Len(t, checks, 3)

	assert.Equal(t, "cpu", checks[0].Name)
	assert.Equal(t, SeverityOK, checks[0].Severity)
	assert.Contains(t, checks[0].Detail, "unknown")

	assert.Equal(t, SeverityWarn, checks[1].Severity)
	assert.Equal(t, SeverityWarn, checks[2].Severity)
	assert.Contains(t, checks[2].Detail, "/data")

	healthy := HostChecks(Host{MemPercent: 40, DiskFreeGB: 50})
	for _, c := range healthy {
		assert.Equal(t, SeverityOK, c.Severity, c.Name)
	}
}

func TestWritableCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "z88")
	c := WritableCheck(dir)
	assert.Equal(t, SeverityOK, c.Severity)
	_, err := os.Stat(filepath.Join(dir, probeFileName))
	assert.True(t, os.IsNotExist(err))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	c = WritableCheck(filepath.Join(file, "sub"))
	assert.Equal(t, SeverityFail, c.Severity)
}
