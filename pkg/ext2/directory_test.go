package ext2

import (
	"fmt"
	"testing"
)

func TestAddSearchRemoveEntry(t *testing.T) {
	fs := newTestFS(t)
	root, err := fs.GetInode(RootIno)
	if err != nil {
		t.Fatalf("getting root inode: %v", err)
	}

	if err := fs.AddEntry(&root, "greeting", 50, FileTypeRegular); err != nil {
		t.Fatalf("adding entry: %v", err)
	}

	ino, fileType, err := fs.SearchDir(&root, "greeting")
	if err != nil {
		t.Fatalf("searching for entry: %v", err)
	}
	if ino != 50 || fileType != FileTypeRegular {
		t.Fatalf("wanted (50, Regular); got (%d, %s)", ino, fileType)
	}

	if err := fs.RemoveEntry(&root, "greeting"); err != nil {
		t.Fatalf("removing entry: %v", err)
	}
	if _, _, err := fs.SearchDir(&root, "greeting"); err != ErrNotFound {
		t.Fatalf("wanted ErrNotFound after removal; got %v", err)
	}
}

func TestRemoveEntryNotFound(t *testing.T) {
	fs := newTestFS(t)
	root, err := fs.GetInode(RootIno)
	if err != nil {
		t.Fatalf("getting root inode: %v", err)
	}
	if err := fs.RemoveEntry(&root, "nope"); err != ErrNotFound {
		t.Fatalf("wanted ErrNotFound; got %v", err)
	}
}

func TestRenameEntry(t *testing.T) {
	fs := newTestFS(t)
	root, err := fs.GetInode(RootIno)
	if err != nil {
		t.Fatalf("getting root inode: %v", err)
	}
	if err := fs.AddEntry(&root, "old", 50, FileTypeRegular); err != nil {
		t.Fatalf("adding entry: %v", err)
	}

	if err := fs.RenameEntry(&root, "old", "new"); err != nil {
		t.Fatalf("renaming entry: %v", err)
	}
	if _, _, err := fs.SearchDir(&root, "old"); err != ErrNotFound {
		t.Fatalf("wanted ErrNotFound for old name; got %v", err)
	}
	ino, _, err := fs.SearchDir(&root, "new")
	if err != nil {
		t.Fatalf("searching for new name: %v", err)
	}
	if ino != 50 {
		t.Fatalf("wanted ino 50; got %d", ino)
	}
}

func TestRenameEntryRefusesExistingTarget(t *testing.T) {
	fs := newTestFS(t)
	root, err := fs.GetInode(RootIno)
	if err != nil {
		t.Fatalf("getting root inode: %v", err)
	}
	if err := fs.AddEntry(&root, "a", 50, FileTypeRegular); err != nil {
		t.Fatalf("adding a: %v", err)
	}
	if err := fs.AddEntry(&root, "b", 51, FileTypeRegular); err != nil {
		t.Fatalf("adding b: %v", err)
	}
	if err := fs.RenameEntry(&root, "a", "b"); err != ErrAlreadyExists {
		t.Fatalf("wanted ErrAlreadyExists; got %v", err)
	}
}

func TestIsEmptyDir(t *testing.T) {
	fs := newTestFS(t)
	subIno, err := fs.MakeDirectory(RootIno, "empty", 1)
	if err != nil {
		t.Fatalf("making directory: %v", err)
	}
	sub, err := fs.GetInode(subIno)
	if err != nil {
		t.Fatalf("getting sub inode: %v", err)
	}

	empty, err := fs.IsEmptyDir(&sub)
	if err != nil {
		t.Fatalf("checking emptiness: %v", err)
	}
	if !empty {
		t.Fatalf("a freshly made directory should only hold '.' and '..'")
	}

	if err := fs.AddEntry(&sub, "occupant", 60, FileTypeRegular); err != nil {
		t.Fatalf("adding entry: %v", err)
	}
	empty, err = fs.IsEmptyDir(&sub)
	if err != nil {
		t.Fatalf("checking emptiness: %v", err)
	}
	if empty {
		t.Fatalf("directory should no longer be reported empty")
	}
}

// TestAddEntryGrowsDirectoryAcrossBlocks exercises phase B of AddEntry:
// once the subdirectory's first data block runs out of slack, AddEntry
// must allocate a new block and link it into the directory's block
// pointers (here the second direct pointer) rather than failing.
func TestAddEntryGrowsDirectoryAcrossBlocks(t *testing.T) {
	fs := newTestFS(t)
	subIno, err := fs.MakeDirectory(RootIno, "growable", 1)
	if err != nil {
		t.Fatalf("making directory: %v", err)
	}
	sub, err := fs.GetInode(subIno)
	if err != nil {
		t.Fatalf("getting sub inode: %v", err)
	}

	const n = 100
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("f%03d", i)
		if err := fs.AddEntry(&sub, name, Ino(100+i), FileTypeRegular); err != nil {
			t.Fatalf("adding entry %q: %v", name, err)
		}
	}

	if sub.Size <= fs.BlockSize() {
		t.Fatalf(
			"expected directory to grow past one block (%d); size is %d",
			fs.BlockSize(),
			sub.Size,
		)
	}

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("f%03d", i)
		ino, _, err := fs.SearchDir(&sub, name)
		if err != nil {
			t.Fatalf("searching for %q: %v", name, err)
		}
		if ino != Ino(100+i) {
			t.Fatalf("entry %q: wanted ino %d; got %d", name, 100+i, ino)
		}
	}
}
