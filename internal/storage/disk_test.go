package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relic/internal/base"
)

func newTestDisk(t *testing.T) *FileDiskManager {
	t.Helper()
	d, err := NewFileDiskManager(filepath.Join(t.TempDir(), "disk.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDiskReadWriteRoundTrip(t *testing.T) {
	t.Parallel()

	d := newTestDisk(t)
	id, err := d.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(0), id)

	var in, out [base.PageSize]byte
	copy(in[:], "page payload")
	require.NoError(t, d.WritePage(id, in[:]))
	require.NoError(t, d.ReadPage(id, out[:]))
	assert.Equal(t, in, out)
}

func TestDiskAllocateMonotonic(t *testing.T) {
	t.Parallel()

	d := newTestDisk(t)
	for want := base.PageID(0); want < 5; want++ {
		id, err := d.AllocatePage()
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	// Deallocation never recycles ids.
	d.DeallocatePage(2)
	id, err := d.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(5), id)
}

func TestDiskReadOfUnwrittenPageIsZero(t *testing.T) {
	t.Parallel()

	d := newTestDisk(t)
	id, err := d.AllocatePage()
	require.NoError(t, err)

	buf := make([]byte, base.PageSize)
	for i := range buf {
		buf[i] = 0xff
	}
	require.NoError(t, d.ReadPage(id, buf))
	assert.Equal(t, make([]byte, base.PageSize), buf)
}

func TestDiskChecksumCatchesCorruption(t *testing.T) {
	t.Parallel()

	d := newTestDisk(t)
	id, err := d.AllocatePage()
	require.NoError(t, err)

	var in [base.PageSize]byte
	copy(in[:], "checksummed")
	require.NoError(t, d.WritePage(id, in[:]))

	// Corrupt behind the manager's back.
	_, err = d.file.WriteAt([]byte{0xde, 0xad}, 100)
	require.NoError(t, err)

	out := make([]byte, base.PageSize)
	assert.ErrorIs(t, d.ReadPage(id, out), base.ErrInvalidChecksum)
}

func TestDiskSizeSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reopen.db")
	d, err := NewFileDiskManager(path, false)
	require.NoError(t, err)
	var buf [base.PageSize]byte
	for i := 0; i < 3; i++ {
		id, err := d.AllocatePage()
		require.NoError(t, err)
		require.NoError(t, d.WritePage(id, buf[:]))
	}
	require.NoError(t, d.Close())

	d, err = NewFileDiskManager(path, false)
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, 3, d.NumPages())
	id, err := d.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(3), id)
}
