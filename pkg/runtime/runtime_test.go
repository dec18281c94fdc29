package runtime

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTarball(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "main.go"), []byte("package main\n"), 0o644))

	data, err := BuildTarball(dir)
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	assert.Contains(t, names, "Dockerfile")
	assert.Contains(t, names, "app/main.go")
}

func TestCalculateCPUPercent(t *testing.T) {
	stats := container.StatsResponse{}
	stats.CPUStats.CPUUsage.TotalUsage = 200
	stats.PreCPUStats.CPUUsage.TotalUsage = 100
	stats.CPUStats.SystemUsage = 2000
	stats.PreCPUStats.SystemUsage = 1000
	stats.CPUStats.OnlineCPUs = 2

	got := calculateCPUPercent(stats)
	assert.InDelta(t, 20.0, got, 0.01)
}

func TestCalculateCPUPercentZeroDelta(t *testing.T) {
	stats := container.StatsResponse{}
	assert.Equal(t, 0.0, calculateCPUPercent(stats))
}

func TestCalculateMemorySubtractsCache(t *testing.T) {
	stats := container.StatsResponse{}
	stats.MemoryStats.Usage = 1000
	stats.MemoryStats.Limit = 4000
	stats.MemoryStats.Stats = map[string]uint64{"cache": 300}

	usage, limit := calculateMemory(stats)
	assert.Equal(t, int64(700), usage)
	assert.Equal(t, int64(4000), limit)
}

func TestLogLimitTruncates(t *testing.T) {
	var buf bytes.Buffer
	lim := &logLimit{limit: 5}
	w := lim.wrap(&buf)

	n, err := w.Write([]byte("hello world"))
	assert.Equal(t, 5, n)
	assert.ErrorIs(t, err, errLogLimitReached)
	assert.True(t, lim.truncated)
	assert.Equal(t, "hello", buf.String())

	// Any further write is refused outright.
	n, err = w.Write([]byte("more"))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, errLogLimitReached)
}

func TestLogLimitSharedAcrossWriters(t *testing.T) {
	var out, errBuf bytes.Buffer
	lim := &logLimit{limit: 10}
	stdout := lim.wrap(&out)
	stderr := lim.wrap(&errBuf)

	_, err := stdout.Write([]byte("123456"))
	require.NoError(t, err)
	_, err = stderr.Write([]byte("789012"))
	assert.ErrorIs(t, err, errLogLimitReached)
	assert.Equal(t, "123456", out.String())
	assert.Equal(t, "7890", errBuf.String())
}
