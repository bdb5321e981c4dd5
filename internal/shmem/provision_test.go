package shmem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		in   uint64
		want uint64
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{4095, 4096},
		{4096, 4096},
		{4097, 8192},
		{1 << 30, 1 << 30},
		{(1 << 30) + 1, 1 << 31},
		{1 << 63, 1 << 63},
		{(1 << 63) + 1, 0}, // overflow
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextPowerOfTwo(tt.in), "NextPowerOfTwo(%d)", tt.in)
	}
}

func TestProvisionExactPowerOfTwo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm")

	region, err := Provision(path, 4096)
	require.NoError(t, err)
	defer region.Close()

	assert.Equal(t, uint64(4096), region.Size)
	assert.Equal(t, path, region.Path)
	assert.GreaterOrEqual(t, region.Fd, 0)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())
}

func TestProvisionRoundsUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm")

	region, err := Provision(path, 5000)
	require.NoError(t, err)
	defer region.Close()

	assert.Equal(t, uint64(8192), region.Size)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), info.Size())
}

func TestProvisionExistingObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm")
	require.NoError(t, os.WriteFile(path, []byte("seed"), 0o700))

	region, err := Provision(path, 1024)
	require.NoError(t, err)
	defer region.Close()

	assert.Equal(t, uint64(1024), region.Size)
}

func TestProvisionTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm")

	_, err := Provision(path, MaxSize+1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestProvisionZeroSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm")

	_, err := Provision(path, 0)
	assert.Error(t, err)
}

func TestProvisionCeilingExact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm")

	// 1 GiB is the ceiling itself and must still be accepted; the file is
	// sparse so this does not consume real memory.
	region, err := Provision(path, MaxSize)
	require.NoError(t, err)
	defer region.Close()

	assert.Equal(t, uint64(MaxSize), region.Size)
	require.NoError(t, os.Remove(path))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/dev/shm/ivshmem", resolvePath("ivshmem"))
	assert.Equal(t, "/tmp/x/ivshmem", resolvePath("/tmp/x/ivshmem"))
	assert.Equal(t, "./ivshmem", resolvePath("./ivshmem"))
}

func TestRegionCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm")

	region, err := Provision(path, 4096)
	require.NoError(t, err)

	require.NoError(t, region.Close())
	assert.NoError(t, region.Close())
}
