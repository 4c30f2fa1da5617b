package ext2

import "testing"

func TestFormatProducesMountableRootDirectory(t *testing.T) {
	fs := newTestFS(t)

	root, err := fs.GetInode(RootIno)
	if err != nil {
		t.Fatalf("getting root inode: %v", err)
	}
	if root.Mode.FileType != FileTypeDir {
		t.Fatalf("wanted root to be a directory; got %s", root.Mode.FileType)
	}

	selfIno, _, err := fs.SearchDir(&root, ".")
	if err != nil {
		t.Fatalf("searching for '.': %v", err)
	}
	if selfIno != RootIno {
		t.Fatalf("wanted '.' to point at root (%#x); got %#x", RootIno, selfIno)
	}

	parentIno, _, err := fs.SearchDir(&root, "..")
	if err != nil {
		t.Fatalf("searching for '..': %v", err)
	}
	if parentIno != RootIno {
		t.Fatalf("wanted '..' to point at root (%#x); got %#x", RootIno, parentIno)
	}
}

func TestFormatRejectsUnsupportedBlockSize(t *testing.T) {
	cfg := testGeometry
	cfg.BlockSize = 999
	volume := NewMemoryVolume(uint64(cfg.BlocksCount) * 1024)
	if _, err := Format(cfg, volume); err == nil {
		t.Fatalf("expected an error for an unsupported block size")
	}
}

func TestMountRoundTripsFormattedVolume(t *testing.T) {
	volume := NewMemoryVolume(uint64(testGeometry.BlocksCount) * uint64(testGeometry.BlockSize))
	fs, err := Format(testGeometry, volume)
	if err != nil {
		t.Fatalf("formatting: %v", err)
	}
	if err := fs.Flush(); err != nil {
		t.Fatalf("flushing: %v", err)
	}

	var mounted FileSystem
	if err := mounted.Mount(volume); err != nil {
		t.Fatalf("mounting: %v", err)
	}

	if mounted.Superblock.BlocksCount != fs.Superblock.BlocksCount {
		t.Fatalf(
			"blocks_count mismatch: wanted %d; got %d",
			fs.Superblock.BlocksCount,
			mounted.Superblock.BlocksCount,
		)
	}
	if mounted.Superblock.InodesCount != fs.Superblock.InodesCount {
		t.Fatalf(
			"inodes_count mismatch: wanted %d; got %d",
			fs.Superblock.InodesCount,
			mounted.Superblock.InodesCount,
		)
	}

	root, err := mounted.GetInode(RootIno)
	if err != nil {
		t.Fatalf("getting root inode after mount: %v", err)
	}
	if root.Mode.FileType != FileTypeDir {
		t.Fatalf("root should be a directory after remount; got %s", root.Mode.FileType)
	}
}
