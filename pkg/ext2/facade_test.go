package ext2

import (
	"errors"
	"testing"
)

func TestCreateFileThenTouchRefreshesTimestamps(t *testing.T) {
	fs := newTestFS(t)

	ino, err := fs.CreateFile(RootIno, "greeting.txt", 100)
	if err != nil {
		t.Fatalf("creating file: %v", err)
	}

	attr, err := fs.AttrOf(ino)
	if err != nil {
		t.Fatalf("reading attrs: %v", err)
	}
	if attr.FileType != FileTypeRegular {
		t.Fatalf("wanted a regular file; got %s", attr.FileType)
	}
	if attr.Size != 0 {
		t.Fatalf("wanted a zero-length file; got size %d", attr.Size)
	}
	if attr.ATime != 100 || attr.MTime != 100 {
		t.Fatalf("wanted atime/mtime 100; got %d/%d", attr.ATime, attr.MTime)
	}

	again, err := fs.CreateFile(RootIno, "greeting.txt", 200)
	if err != nil {
		t.Fatalf("touching existing file: %v", err)
	}
	if again != ino {
		t.Fatalf("touch on an existing path should return the same ino")
	}

	attr, err = fs.AttrOf(ino)
	if err != nil {
		t.Fatalf("reading attrs after touch: %v", err)
	}
	if attr.ATime != 200 || attr.MTime != 200 {
		t.Fatalf("wanted refreshed atime/mtime 200; got %d/%d", attr.ATime, attr.MTime)
	}
}

func TestCreateFileRefusesExistingDirectory(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.MakeDirectory(RootIno, "dir", 1); err != nil {
		t.Fatalf("making directory: %v", err)
	}
	if _, err := fs.CreateFile(RootIno, "dir", 1); err == nil {
		t.Fatalf("expected an error touching a path that is a directory")
	}
}

func TestDeleteFile(t *testing.T) {
	fs := newTestFS(t)
	ino, err := fs.CreateFile(RootIno, "temp.txt", 1)
	if err != nil {
		t.Fatalf("creating file: %v", err)
	}

	if err := fs.DeleteFile(RootIno, "temp.txt", 42); err != nil {
		t.Fatalf("deleting file: %v", err)
	}

	if _, err := fs.ResolvePath(RootIno, "temp.txt"); err == nil {
		t.Fatalf("expected the path to be gone after deletion")
	}

	attr, err := fs.AttrOf(ino)
	if err != nil {
		t.Fatalf("reading attrs of freed inode: %v", err)
	}
	if attr.LinksCount != 0 {
		t.Fatalf("wanted a freed inode to have zero links; got %d", attr.LinksCount)
	}

	freed, err := fs.GetInode(ino)
	if err != nil {
		t.Fatalf("reading freed inode: %v", err)
	}
	if freed.Attr.DTime != 42 {
		t.Fatalf("wanted dtime 42 on freed inode; got %d", freed.Attr.DTime)
	}

	root, err := fs.GetInode(RootIno)
	if err != nil {
		t.Fatalf("getting root inode after deletion: %v", err)
	}
	if root.Attr.MTime != 42 || root.Attr.ATime != 42 {
		t.Fatalf(
			"wanted parent mtime/atime 42 after deletion; got %d/%d",
			root.Attr.MTime,
			root.Attr.ATime,
		)
	}
}

func TestDeleteFileRefusesDirectory(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.MakeDirectory(RootIno, "dir", 1); err != nil {
		t.Fatalf("making directory: %v", err)
	}
	if err := fs.DeleteFile(RootIno, "dir", 1); err == nil {
		t.Fatalf("expected an error removing a directory via rm")
	}
}

func TestMakeAndRemoveDirectory(t *testing.T) {
	fs := newTestFS(t)

	subIno, err := fs.MakeDirectory(RootIno, "sub", 1)
	if err != nil {
		t.Fatalf("making directory: %v", err)
	}

	root, err := fs.GetInode(RootIno)
	if err != nil {
		t.Fatalf("getting root: %v", err)
	}
	if root.LinksCount != 3 { // ".", "..", plus "sub"'s back-reference
		t.Fatalf("wanted root link count 3; got %d", root.LinksCount)
	}

	if err := fs.RemoveDirectory(RootIno, "sub", 99); err != nil {
		t.Fatalf("removing directory: %v", err)
	}

	if _, err := fs.ResolvePath(RootIno, "sub"); err == nil {
		t.Fatalf("expected the subdirectory to be gone")
	}

	root, err = fs.GetInode(RootIno)
	if err != nil {
		t.Fatalf("getting root after rmdir: %v", err)
	}
	if root.LinksCount != 2 {
		t.Fatalf("wanted root link count back to 2; got %d", root.LinksCount)
	}

	freed, err := fs.GetInode(subIno)
	if err != nil {
		t.Fatalf("reading freed directory inode: %v", err)
	}
	if freed.Attr.DTime != 99 {
		t.Fatalf("wanted dtime 99 on freed directory inode; got %d", freed.Attr.DTime)
	}
}

func TestRemoveDirectoryRefusesNonEmpty(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.MakeDirectory(RootIno, "sub", 1); err != nil {
		t.Fatalf("making directory: %v", err)
	}
	if _, err := fs.CreateFile(RootIno, "sub/file.txt", 1); err != nil {
		t.Fatalf("creating nested file: %v", err)
	}
	if err := fs.RemoveDirectory(RootIno, "sub", 1); !errors.Is(err, ErrDirectoryNotEmpty) {
		t.Fatalf("wanted ErrDirectoryNotEmpty; got %v", err)
	}
}

func TestMakeDirectoryRefusesExisting(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.MakeDirectory(RootIno, "sub", 1); err != nil {
		t.Fatalf("making directory: %v", err)
	}
	if _, err := fs.MakeDirectory(RootIno, "sub", 1); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("wanted ErrAlreadyExists; got %v", err)
	}
}

func TestRenameInCwd(t *testing.T) {
	fs := newTestFS(t)
	ino, err := fs.CreateFile(RootIno, "old.txt", 1)
	if err != nil {
		t.Fatalf("creating file: %v", err)
	}

	if err := fs.RenameInCwd(RootIno, "old.txt", "new.txt"); err != nil {
		t.Fatalf("renaming: %v", err)
	}

	if _, err := fs.ResolvePath(RootIno, "old.txt"); err == nil {
		t.Fatalf("expected old name to be gone")
	}
	got, err := fs.ResolvePath(RootIno, "new.txt")
	if err != nil {
		t.Fatalf("resolving new name: %v", err)
	}
	if got != ino {
		t.Fatalf("wanted ino %#x after rename; got %#x", ino, got)
	}
}

func TestRenameInCwdRejectsPathsWithSeparators(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.CreateFile(RootIno, "a.txt", 1); err != nil {
		t.Fatalf("creating file: %v", err)
	}
	if err := fs.RenameInCwd(RootIno, "a.txt", "sub/b.txt"); err == nil {
		t.Fatalf("expected an error for a multi-component new name")
	}
}

func TestReadFileContentOfEmptyFile(t *testing.T) {
	fs := newTestFS(t)
	ino, err := fs.CreateFile(RootIno, "empty.txt", 1)
	if err != nil {
		t.Fatalf("creating file: %v", err)
	}
	data, err := fs.ReadFileContent(ino)
	if err != nil {
		t.Fatalf("reading content: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("wanted an empty file; got %d bytes", len(data))
	}
}

func TestInfoReportsVolumeName(t *testing.T) {
	fs := newTestFS(t)
	info := fs.Info()
	if info.VolumeName != testGeometry.VolumeName {
		t.Fatalf("wanted volume name %q; got %q", testGeometry.VolumeName, info.VolumeName)
	}
	if info.BlockSize != uint64(testGeometry.BlockSize) {
		t.Fatalf("wanted block size %d; got %d", testGeometry.BlockSize, info.BlockSize)
	}
}
