package ext2

import (
	"fmt"
	"strings"
)

// Attr is the snapshot of inode metadata the attr/stat command reports;
// it mirrors Inode without exposing the on-disk block pointer array.
type Attr struct {
	Ino        Ino
	FileType   FileType
	AccessMode uint16
	LinksCount uint16
	Size       uint64
	UID, GID   uint32
	ATime      uint32
	CTime      uint32
	MTime      uint32
}

// Summary is the superblock-derived snapshot the info command reports.
type Summary struct {
	BlockSize       uint64
	BlocksCount     uint32
	FreeBlocksCount uint32
	InodesCount     uint32
	FreeInodesCount uint32
	InodesPerGroup  uint32
	BlocksPerGroup  uint32
	GroupCount      GroupID
	VolumeName      string
	RevLevel        RevLevel
}

func (fs *FileSystem) Info() Summary {
	return Summary{
		BlockSize:       fs.BlockSize(),
		BlocksCount:     fs.Superblock.BlocksCount,
		FreeBlocksCount: fs.Superblock.FreeBlocksCount,
		InodesCount:     fs.Superblock.InodesCount,
		FreeInodesCount: fs.Superblock.FreeInodesCount,
		InodesPerGroup:  fs.Superblock.InodesPerGroup,
		BlocksPerGroup:  fs.Superblock.BlocksPerGroup,
		GroupCount:      fs.GroupCount(),
		VolumeName:      strings.TrimRight(string(fs.Superblock.VolumeName[:]), "\x00"),
		RevLevel:        fs.Superblock.RevLevel,
	}
}

func (fs *FileSystem) AttrOf(ino Ino) (Attr, error) {
	inode, err := fs.GetInode(ino)
	if err != nil {
		return Attr{}, fmt.Errorf("reading attributes of `%#x`: %w", ino, err)
	}
	return Attr{
		Ino:        inode.Ino,
		FileType:   inode.Mode.FileType,
		AccessMode: inode.Mode.AccessRights,
		LinksCount: inode.LinksCount,
		Size:       inode.Size,
		UID:        inode.Attr.UID,
		GID:        inode.Attr.GID,
		ATime:      inode.Attr.ATime,
		CTime:      inode.Attr.CTime,
		MTime:      inode.Attr.MTime,
	}, nil
}

func validComponentName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrRefusedTarget
	}
	if strings.ContainsRune(name, '/') {
		return ErrInvalidName
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}

// resolveParentAndName resolves path down to its parent directory's
// inode and the final component's name, refusing "/" and its aliases as
// targets since those can never be created, removed, or renamed.
func (fs *FileSystem) resolveParentAndName(
	cwd Ino,
	path string,
) (Inode, string, error) {
	dirPath, name := SplitPath(path)
	if err := validComponentName(name); err != nil {
		return Inode{}, "", err
	}

	parentIno, err := fs.ResolvePath(cwd, dirPath)
	if err != nil {
		return Inode{}, "", fmt.Errorf("resolving parent of %q: %w", path, err)
	}
	parent, err := fs.GetInode(parentIno)
	if err != nil {
		return Inode{}, "", fmt.Errorf("resolving parent of %q: %w", path, err)
	}
	if parent.Mode.FileType != FileTypeDir {
		return Inode{}, "", ErrNotDirectory
	}
	return parent, name, nil
}

// CreateFile implements touch: if name already exists in the parent
// directory, its timestamps are refreshed and its inode number is
// returned (unless it is a directory, which is refused with
// ErrIsDirectory); otherwise a fresh zero-length regular file is
// allocated and linked in. This refresh-on-existing behavior matches the reference
// touch command rather than failing with "already exists".
func (fs *FileSystem) CreateFile(cwd Ino, path string, now uint32) (Ino, error) {
	parent, name, err := fs.resolveParentAndName(cwd, path)
	if err != nil {
		return 0, fmt.Errorf("creating file %q: %w", path, err)
	}

	if existing, fileType, err := fs.SearchDir(&parent, name); err == nil {
		if fileType == FileTypeDir {
			return 0, fmt.Errorf("creating file %q: %w", path, ErrIsDirectory)
		}
		inode, err := fs.GetInode(existing)
		if err != nil {
			return 0, fmt.Errorf("creating file %q: %w", path, err)
		}
		inode.Attr.ATime = now
		inode.Attr.MTime = now
		if err := fs.UpdateInode(&inode); err != nil {
			return 0, fmt.Errorf("creating file %q: %w", path, err)
		}
		return existing, nil
	} else if err != ErrNotFound {
		return 0, fmt.Errorf("creating file %q: %w", path, err)
	}

	parentGroup, _ := fs.GetInoGroup(parent.Ino)
	ino, ok, err := fs.AllocInode(parentGroup)
	if err != nil {
		return 0, fmt.Errorf("creating file %q: %w", path, err)
	}
	if !ok {
		return 0, fmt.Errorf("creating file %q: %w", path, NoFreeInodesErr)
	}

	inode := Inode{
		Ino: ino,
		Mode: Mode{
			FileType:     FileTypeRegular,
			AccessRights: 0644,
		},
		Attr: FileAttr{
			UID:   parent.Attr.UID,
			GID:   parent.Attr.GID,
			ATime: now,
			CTime: now,
			MTime: now,
		},
		LinksCount: 1,
	}
	if err := fs.WriteInode(&inode); err != nil {
		if freeErr := fs.FreeInode(ino); freeErr != nil {
			return 0, fmt.Errorf(
				"creating file %q: %w (and rolling back inode allocation: %v)",
				path,
				err,
				freeErr,
			)
		}
		return 0, fmt.Errorf("creating file %q: %w", path, err)
	}

	if err := fs.AddEntry(&parent, name, ino, FileTypeRegular); err != nil {
		if freeErr := fs.FreeInode(ino); freeErr != nil {
			return 0, fmt.Errorf(
				"creating file %q: %w (and rolling back inode allocation: %v)",
				path,
				err,
				freeErr,
			)
		}
		return 0, fmt.Errorf("creating file %q: %w", path, err)
	}

	parent.Attr.MTime = now
	if err := fs.UpdateInode(&parent); err != nil {
		return 0, fmt.Errorf("creating file %q: %w", path, err)
	}

	return ino, nil
}

// DeleteFile implements rm: it refuses directories, unlinks the entry
// from the parent, and, once the inode's link count reaches zero,
// frees every block the inode owns (including the triple-indirect
// chain), stamps its dtime, and frees the inode itself. The parent's
// mtime/atime are refreshed regardless, since the directory's contents
// changed.
func (fs *FileSystem) DeleteFile(cwd Ino, path string, now uint32) error {
	parent, name, err := fs.resolveParentAndName(cwd, path)
	if err != nil {
		return fmt.Errorf("removing %q: %w", path, err)
	}

	targetIno, fileType, err := fs.SearchDir(&parent, name)
	if err != nil {
		return fmt.Errorf("removing %q: %w", path, err)
	}
	if fileType == FileTypeDir {
		return fmt.Errorf("removing %q: %w", path, ErrIsDirectory)
	}

	target, err := fs.GetInode(targetIno)
	if err != nil {
		return fmt.Errorf("removing %q: %w", path, err)
	}

	if err := fs.RemoveEntry(&parent, name); err != nil {
		return fmt.Errorf("removing %q: %w", path, err)
	}

	if target.LinksCount > 0 {
		target.LinksCount--
	}
	if target.LinksCount == 0 {
		if err := fs.FreeInodeBlocks(&target); err != nil {
			return fmt.Errorf("removing %q: %w", path, err)
		}
		if err := fs.FreeInode(targetIno); err != nil {
			return fmt.Errorf("removing %q: %w", path, err)
		}
		target.Attr.DTime = now
		target.Size = 0
		target.Block = [15]uint32{}
	}
	if err := fs.UpdateInode(&target); err != nil {
		return fmt.Errorf("removing %q: %w", path, err)
	}

	parent.Attr.MTime = now
	parent.Attr.ATime = now
	if err := fs.UpdateInode(&parent); err != nil {
		return fmt.Errorf("removing %q: %w", path, err)
	}

	return nil
}

// MakeDirectory implements mkdir: it allocates an inode and a single
// data block, seeds that block with "." and ".." entries, links the new
// directory into its parent, and bumps the parent's link count (every
// subdirectory holds a ".." back-reference to it).
func (fs *FileSystem) MakeDirectory(cwd Ino, path string, now uint32) (Ino, error) {
	parent, name, err := fs.resolveParentAndName(cwd, path)
	if err != nil {
		return 0, fmt.Errorf("making directory %q: %w", path, err)
	}

	if _, _, err := fs.SearchDir(&parent, name); err == nil {
		return 0, fmt.Errorf("making directory %q: %w", path, ErrAlreadyExists)
	} else if err != ErrNotFound {
		return 0, fmt.Errorf("making directory %q: %w", path, err)
	}

	parentGroup, _ := fs.GetInoGroup(parent.Ino)
	ino, ok, err := fs.AllocInode(parentGroup)
	if err != nil {
		return 0, fmt.Errorf("making directory %q: %w", path, err)
	}
	if !ok {
		return 0, fmt.Errorf("making directory %q: %w", path, NoFreeInodesErr)
	}

	block, ok, err := fs.AllocBlock(parentGroup)
	if err != nil {
		return 0, fmt.Errorf("making directory %q: %w", path, err)
	}
	if !ok {
		if freeErr := fs.FreeInode(ino); freeErr != nil {
			return 0, fmt.Errorf(
				"making directory %q: %w (and rolling back inode allocation: %v)",
				path,
				NoFreeBlocksErr,
				freeErr,
			)
		}
		return 0, fmt.Errorf("making directory %q: %w", path, NoFreeBlocksErr)
	}

	rollback := func(err error) error {
		if freeErr := fs.FreeBlock(block); freeErr != nil {
			return fmt.Errorf(
				"making directory %q: %w (and rolling back block allocation: %v)",
				path, err, freeErr,
			)
		}
		if freeErr := fs.FreeInode(ino); freeErr != nil {
			return fmt.Errorf(
				"making directory %q: %w (and rolling back inode allocation: %v)",
				path, err, freeErr,
			)
		}
		return fmt.Errorf("making directory %q: %w", path, err)
	}

	if err := fs.initDirDataBlock(block, ino, parent.Ino); err != nil {
		return 0, rollback(err)
	}

	inode := Inode{
		Ino: ino,
		Mode: Mode{
			FileType:     FileTypeDir,
			AccessRights: 0755,
		},
		Attr: FileAttr{
			UID:   parent.Attr.UID,
			GID:   parent.Attr.GID,
			ATime: now,
			CTime: now,
			MTime: now,
		},
		Size:       fs.BlockSize(),
		Size512:    uint32(fs.BlockSize() / 512),
		LinksCount: 2,
	}
	inode.Block[0] = uint32(block)
	if err := fs.WriteInode(&inode); err != nil {
		return 0, rollback(err)
	}

	if err := fs.AddEntry(&parent, name, ino, FileTypeDir); err != nil {
		if freeErr := fs.FreeBlock(block); freeErr != nil {
			return 0, fmt.Errorf(
				"making directory %q: %w (and rolling back block allocation: %v)",
				path,
				err,
				freeErr,
			)
		}
		if freeErr := fs.FreeInode(ino); freeErr != nil {
			return 0, fmt.Errorf(
				"making directory %q: %w (and rolling back inode allocation: %v)",
				path,
				err,
				freeErr,
			)
		}
		return 0, fmt.Errorf("making directory %q: %w", path, err)
	}

	parent.LinksCount++
	parent.Attr.MTime = now
	if err := fs.UpdateInode(&parent); err != nil {
		return 0, fmt.Errorf("making directory %q: %w", path, err)
	}

	return ino, nil
}

// initDirDataBlock formats block as a directory's first data block: a
// "." entry pointing at self, a ".." entry pointing at parent, and the
// remaining space as one free record.
func (fs *FileSystem) initDirDataBlock(block uint64, self, parent Ino) error {
	buf := make([]byte, fs.BlockSize())

	dot := DirEnt{Ino: self, RecLen: MinRecLen("."), FileType: FileTypeDir, Name: "."}
	if err := dot.Encode(buf); err != nil {
		return err
	}

	dotdotOffset := int(dot.RecLen)
	dotdot := DirEnt{
		Ino:      parent,
		RecLen:   uint16(fs.BlockSize()) - dot.RecLen,
		FileType: FileTypeDir,
		Name:     "..",
	}
	if err := dotdot.Encode(buf[dotdotOffset:]); err != nil {
		return err
	}

	return fs.WriteBlock(block, buf)
}

// RemoveDirectory implements rmdir: it refuses non-directories, refuses
// directories that still hold entries besides "." and "..", unlinks the
// entry from the parent, frees every block the directory owns, stamps
// the freed inode's dtime, and decrements the parent's link count.
func (fs *FileSystem) RemoveDirectory(cwd Ino, path string, now uint32) error {
	parent, name, err := fs.resolveParentAndName(cwd, path)
	if err != nil {
		return fmt.Errorf("removing directory %q: %w", path, err)
	}

	targetIno, fileType, err := fs.SearchDir(&parent, name)
	if err != nil {
		return fmt.Errorf("removing directory %q: %w", path, err)
	}
	if fileType != FileTypeDir {
		return fmt.Errorf("removing directory %q: %w", path, ErrNotDirectory)
	}

	target, err := fs.GetInode(targetIno)
	if err != nil {
		return fmt.Errorf("removing directory %q: %w", path, err)
	}

	empty, err := fs.IsEmptyDir(&target)
	if err != nil {
		return fmt.Errorf("removing directory %q: %w", path, err)
	}
	if !empty {
		return fmt.Errorf("removing directory %q: %w", path, ErrDirectoryNotEmpty)
	}

	if err := fs.RemoveEntry(&parent, name); err != nil {
		return fmt.Errorf("removing directory %q: %w", path, err)
	}

	if err := fs.FreeInodeBlocks(&target); err != nil {
		return fmt.Errorf("removing directory %q: %w", path, err)
	}
	if err := fs.FreeInode(targetIno); err != nil {
		return fmt.Errorf("removing directory %q: %w", path, err)
	}
	target.Size = 0
	target.Block = [15]uint32{}
	target.LinksCount = 0
	target.Attr.DTime = now
	if err := fs.UpdateInode(&target); err != nil {
		return fmt.Errorf("removing directory %q: %w", path, err)
	}

	parent.LinksCount--
	if err := fs.UpdateInode(&parent); err != nil {
		return fmt.Errorf("removing directory %q: %w", path, err)
	}

	return nil
}

// RenameInCwd implements rename for two entries in the same directory.
// oldName and newName are bare, single-component, space-free names (the
// driver's REPL splits each line on whitespace and has no quoting or
// escaping, so a name containing whitespace cannot reach here from it);
// this keeps the rename grammar unambiguous without a quoting parser.
func (fs *FileSystem) RenameInCwd(cwd Ino, oldName, newName string) error {
	if err := validComponentName(oldName); err != nil {
		return fmt.Errorf("renaming %q: %w", oldName, err)
	}
	if err := validComponentName(newName); err != nil {
		return fmt.Errorf("renaming %q to %q: %w", oldName, newName, err)
	}

	dir, err := fs.GetInode(cwd)
	if err != nil {
		return fmt.Errorf("renaming %q: %w", oldName, err)
	}
	if dir.Mode.FileType != FileTypeDir {
		return ErrNotDirectory
	}

	if err := fs.RenameEntry(&dir, oldName, newName); err != nil {
		return fmt.Errorf("renaming %q to %q: %w", oldName, newName, err)
	}
	return nil
}

// ReadFileContent reads an entire regular file's contents by inode
// number.
func (fs *FileSystem) ReadFileContent(ino Ino) ([]byte, error) {
	handle, err := fs.OpenFile(ino)
	if err != nil {
		return nil, fmt.Errorf("reading file `%#x`: %w", ino, err)
	}
	defer fs.CloseFile(handle)

	inode, err := fs.GetInode(ino)
	if err != nil {
		return nil, fmt.Errorf("reading file `%#x`: %w", ino, err)
	}

	buf := make([]byte, inode.Size)
	var total uint64
	for total < inode.Size {
		n, err := fs.ReadFile(&handle, total, buf[total:])
		if err != nil {
			return nil, fmt.Errorf("reading file `%#x`: %w", ino, err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	return buf[:total], nil
}
