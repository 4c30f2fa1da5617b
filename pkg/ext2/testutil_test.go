package ext2

import "testing"

// testGeometry is small enough to run fast but big enough to force
// multiple block groups and, in the directory tests, growth past a
// single direct block.
var testGeometry = FormatConfig{
	BlocksCount:    256,
	BlockSize:      1024,
	BlocksPerGroup: 64,
	InodesPerGroup: 32,
	VolumeName:     "test-vol",
}

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	volume := NewMemoryVolume(uint64(testGeometry.BlocksCount) * uint64(testGeometry.BlockSize))
	fs, err := Format(testGeometry, volume)
	if err != nil {
		t.Fatalf("formatting test volume: %v", err)
	}
	if err := fs.Flush(); err != nil {
		t.Fatalf("flushing freshly formatted volume: %v", err)
	}
	return fs
}
