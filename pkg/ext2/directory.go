package ext2

import (
	"fmt"
)

// SearchDir looks for name among dir's directory entries. It reads every
// allocated block in logical order and stops at the first match.
func (fs *FileSystem) SearchDir(dir *Inode, name string) (Ino, FileType, error) {
	if dir.Mode.FileType != FileTypeDir {
		return 0, 0, ErrNotDirectory
	}

	var (
		found    Ino
		fileType FileType
		ok       bool
	)

	blockSize := fs.BlockSize()
	buf := make([]byte, blockSize)
	numBlocks := (dir.Size + blockSize - 1) / blockSize
	for logical := uint64(0); logical < numBlocks; logical++ {
		block, present, err := fs.GetInodeBlock(dir, logical)
		if err != nil {
			return 0, 0, fmt.Errorf("searching directory: %w", err)
		}
		if !present {
			continue
		}
		if err := fs.ReadBlock(block, buf); err != nil {
			return 0, 0, fmt.Errorf("searching directory: %w", err)
		}

		err = IterateDirBlock(buf, func(_ int, ent DirEnt) (bool, error) {
			if ent.Ino != 0 && ent.Name == name {
				found, fileType, ok = ent.Ino, ent.FileType, true
				return true, nil
			}
			return false, nil
		})
		if err != nil {
			return 0, 0, fmt.Errorf("searching directory: %w", err)
		}
		if ok {
			return found, fileType, nil
		}
	}

	return 0, 0, ErrNotFound
}

// IsEmptyDir reports whether dir has nothing but "." and ".." in it.
func (fs *FileSystem) IsEmptyDir(dir *Inode) (bool, error) {
	empty := true
	blockSize := fs.BlockSize()
	buf := make([]byte, blockSize)
	numBlocks := (dir.Size + blockSize - 1) / blockSize
	for logical := uint64(0); logical < numBlocks && empty; logical++ {
		block, present, err := fs.GetInodeBlock(dir, logical)
		if err != nil {
			return false, fmt.Errorf("checking directory emptiness: %w", err)
		}
		if !present {
			continue
		}
		if err := fs.ReadBlock(block, buf); err != nil {
			return false, fmt.Errorf("checking directory emptiness: %w", err)
		}

		err = IterateDirBlock(buf, func(_ int, ent DirEnt) (bool, error) {
			if ent.Ino != 0 && ent.Name != "." && ent.Name != ".." {
				empty = false
				return true, nil
			}
			return false, nil
		})
		if err != nil {
			return false, fmt.Errorf("checking directory emptiness: %w", err)
		}
	}
	return empty, nil
}

// InitDirBlock formats a freshly allocated block as a directory block
// holding a single free entry spanning the whole block, the shape every
// new directory block starts in before entries get carved out of it.
func (fs *FileSystem) InitDirBlock(block uint64) error {
	buf := make([]byte, fs.BlockSize())
	free := DirEnt{Ino: 0, RecLen: uint16(fs.BlockSize()), FileType: FileTypeUnknown}
	if err := free.Encode(buf); err != nil {
		return fmt.Errorf("initializing directory block `%#x`: %w", block, err)
	}
	if err := fs.WriteBlock(block, buf); err != nil {
		return fmt.Errorf("initializing directory block `%#x`: %w", block, err)
	}
	return nil
}

// AddEntry inserts (name -> ino, fileType) into dir. It first scans every
// existing block for room to split an oversized free (or over-allocated)
// record in place (phase A); only if no block has slack does it grow the
// directory by one block (phase B), which is only permitted through
// direct, single-, and double-indirect pointers, never the triple.
func (fs *FileSystem) AddEntry(
	dir *Inode,
	name string,
	ino Ino,
	fileType FileType,
) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return ErrInvalidName
	}
	needed := MinRecLen(name)

	blockSize := fs.BlockSize()
	buf := make([]byte, blockSize)
	numBlocks := (dir.Size + blockSize - 1) / blockSize

	for logical := uint64(0); logical < numBlocks; logical++ {
		block, present, err := fs.GetInodeBlock(dir, logical)
		if err != nil {
			return fmt.Errorf("adding directory entry %q: %w", name, err)
		}
		if !present {
			continue
		}
		if err := fs.ReadBlock(block, buf); err != nil {
			return fmt.Errorf("adding directory entry %q: %w", name, err)
		}

		inserted, err := fs.splitFreeEntry(buf, name, ino, fileType, needed)
		if err != nil {
			return fmt.Errorf("adding directory entry %q: %w", name, err)
		}
		if inserted {
			if err := fs.WriteBlock(block, buf); err != nil {
				return fmt.Errorf("adding directory entry %q: %w", name, err)
			}
			return nil
		}
	}

	block, err := fs.allocDirBlock(dir, numBlocks)
	if err != nil {
		return fmt.Errorf("adding directory entry %q: %w", name, err)
	}
	if err := fs.InitDirBlock(block); err != nil {
		return fmt.Errorf("adding directory entry %q: %w", name, err)
	}
	if err := fs.ReadBlock(block, buf); err != nil {
		return fmt.Errorf("adding directory entry %q: %w", name, err)
	}

	inserted, err := fs.splitFreeEntry(buf, name, ino, fileType, needed)
	if err != nil {
		return fmt.Errorf("adding directory entry %q: %w", name, err)
	}
	if !inserted {
		return fmt.Errorf(
			"adding directory entry %q: freshly allocated block has no room",
			name,
		)
	}
	if err := fs.WriteBlock(block, buf); err != nil {
		return fmt.Errorf("adding directory entry %q: %w", name, err)
	}

	dir.Size += blockSize
	if err := fs.UpdateInode(dir); err != nil {
		return fmt.Errorf("adding directory entry %q: %w", name, err)
	}
	return nil
}

// splitFreeEntry scans one already-loaded block for an unused entry (an
// Ino of 0) or an in-use entry whose rec_len has enough slack beyond its
// own minimum size to carve needed bytes off the end, and writes the new
// entry into that space. It reports whether it found room.
func (fs *FileSystem) splitFreeEntry(
	buf []byte,
	name string,
	ino Ino,
	fileType FileType,
	needed uint16,
) (bool, error) {
	var (
		insertAt int
		ok       bool
	)

	err := IterateDirBlock(buf, func(offset int, ent DirEnt) (bool, error) {
		if ent.Ino == 0 {
			if ent.RecLen >= needed {
				insertAt, ok = offset, true
				return true, nil
			}
			return false, nil
		}

		slack := ent.RecLen - MinRecLen(ent.Name)
		if slack >= needed {
			// Shrink the existing entry to its minimum size and hand the
			// freed tail to the new entry.
			shrunk := ent
			tailLen := ent.RecLen - MinRecLen(ent.Name)
			shrunk.RecLen = MinRecLen(ent.Name)
			if err := shrunk.Encode(buf[offset:]); err != nil {
				return false, err
			}

			tailOffset := offset + int(shrunk.RecLen)
			free := DirEnt{Ino: 0, RecLen: tailLen, FileType: FileTypeUnknown}
			if err := free.Encode(buf[tailOffset:]); err != nil {
				return false, err
			}
			insertAt, ok = tailOffset, true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	existing, err := DecodeDirEnt(buf[insertAt:])
	if err != nil {
		return false, err
	}
	newEnt := DirEnt{Ino: ino, RecLen: existing.RecLen, FileType: fileType, Name: name}
	if err := newEnt.Encode(buf[insertAt:]); err != nil {
		return false, err
	}
	return true, nil
}

// allocDirBlock allocates one new block and links it as logical block
// `logical` of dir's indirect chain, growing through direct, then
// single-, then double-indirect pointers. It never allocates into the
// triple-indirect pointer; directories that exhaust the double-indirect
// range are considered full.
func (fs *FileSystem) allocDirBlock(dir *Inode, logical uint64) (uint64, error) {
	groupID, _ := fs.GetInoGroup(dir.Ino)
	pos := fs.InodeBlockToPos(logical)

	switch pos.Level {
	case PosLevel0:
		block, ok, err := fs.AllocBlock(groupID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, NoFreeBlocksErr
		}
		dir.Block[pos.Data[0]] = uint32(block)
		return block, nil

	case PosLevel1:
		indirect, err := fs.ensureIndirectBlock(&dir.Block[12], groupID)
		if err != nil {
			return 0, err
		}
		return fs.linkIndirectEntry(indirect, pos.Data[0], groupID)

	case PosLevel2:
		l1, err := fs.ensureIndirectBlock(&dir.Block[13], groupID)
		if err != nil {
			return 0, err
		}
		l1Entry, err := fs.ensureIndirectEntry(l1, pos.Data[0], groupID)
		if err != nil {
			return 0, err
		}
		return fs.linkIndirectEntry(l1Entry, pos.Data[1], groupID)

	case PosLevel3:
		return 0, ErrNoSpace

	default:
		return 0, ErrNoSpace
	}
}

// ensureIndirectBlock makes sure *ptr names an allocated, zeroed pointer
// block, allocating one if *ptr is still zero, and returns its block
// number.
func (fs *FileSystem) ensureIndirectBlock(
	ptr *uint32,
	groupID GroupID,
) (uint64, error) {
	if *ptr != 0 {
		return uint64(*ptr), nil
	}
	block, ok, err := fs.AllocBlock(groupID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, NoFreeBlocksErr
	}
	if err := fs.zeroBlock(block); err != nil {
		return 0, err
	}
	*ptr = uint32(block)
	return block, nil
}

// ensureIndirectEntry makes sure entry `idx` of pointer block `block`
// names an allocated, zeroed pointer block, allocating and linking one if
// it's still zero. Unlike linkIndirectEntry, the block it allocates is
// itself a table of pointers, not data, so it must be zeroed before use.
func (fs *FileSystem) ensureIndirectEntry(
	block, idx uint64,
	groupID GroupID,
) (uint64, error) {
	existing, err := fs.ReadIndirect(block, idx)
	if err != nil {
		return 0, err
	}
	if existing != 0 {
		return existing, nil
	}

	newBlock, ok, err := fs.AllocBlock(groupID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, NoFreeBlocksErr
	}
	if err := fs.zeroBlock(newBlock); err != nil {
		return 0, err
	}

	var entryBuf [4]byte
	EncodeUint32(uint32(newBlock), entryBuf[:])
	if err := fs.Volume.Write(block*fs.BlockSize()+idx*4, entryBuf[:]); err != nil {
		return 0, fmt.Errorf("linking indirect entry: %w", err)
	}
	return newBlock, nil
}

// linkIndirectEntry allocates a fresh data block and records it at entry
// `idx` of pointer block `block`.
func (fs *FileSystem) linkIndirectEntry(
	block, idx uint64,
	groupID GroupID,
) (uint64, error) {
	newBlock, ok, err := fs.AllocBlock(groupID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, NoFreeBlocksErr
	}

	var entryBuf [4]byte
	EncodeUint32(uint32(newBlock), entryBuf[:])
	if err := fs.Volume.Write(block*fs.BlockSize()+idx*4, entryBuf[:]); err != nil {
		return 0, fmt.Errorf("linking indirect entry: %w", err)
	}
	return newBlock, nil
}

func (fs *FileSystem) zeroBlock(block uint64) error {
	return fs.WriteBlock(block, make([]byte, fs.BlockSize()))
}

// RemoveEntry deletes the entry named name from dir by merging its
// record into the preceding entry in the same block (or, if it's first in
// the block, zeroing its inode and leaving the dead record as one big
// free slot).
func (fs *FileSystem) RemoveEntry(dir *Inode, name string) error {
	blockSize := fs.BlockSize()
	buf := make([]byte, blockSize)
	numBlocks := (dir.Size + blockSize - 1) / blockSize

	for logical := uint64(0); logical < numBlocks; logical++ {
		block, present, err := fs.GetInodeBlock(dir, logical)
		if err != nil {
			return fmt.Errorf("removing directory entry %q: %w", name, err)
		}
		if !present {
			continue
		}
		if err := fs.ReadBlock(block, buf); err != nil {
			return fmt.Errorf("removing directory entry %q: %w", name, err)
		}

		removed, err := removeFromBlock(buf, name)
		if err != nil {
			return fmt.Errorf("removing directory entry %q: %w", name, err)
		}
		if removed {
			if err := fs.WriteBlock(block, buf); err != nil {
				return fmt.Errorf("removing directory entry %q: %w", name, err)
			}
			return nil
		}
	}

	return ErrNotFound
}

func removeFromBlock(buf []byte, name string) (bool, error) {
	var (
		prevOffset = -1
		prevLen    uint16
	)
	found := false

	err := IterateDirBlock(buf, func(offset int, ent DirEnt) (bool, error) {
		if ent.Ino != 0 && ent.Name == name {
			if prevOffset >= 0 {
				merged := prevLen + ent.RecLen
				EncodeUint16(merged, buf[prevOffset+4:])
			} else {
				buf[offset+6] = 0
				buf[offset+7] = 0
				EncodeUint32(0, buf[offset:])
			}
			found = true
			return true, nil
		}
		prevOffset, prevLen = offset, ent.RecLen
		return false, nil
	})
	return found, err
}

// RenameEntry renames an existing entry from oldName to newName in place,
// without moving it to a different block. It fails if newName already
// exists, or if oldName's record doesn't have room for the longer name.
func (fs *FileSystem) RenameEntry(dir *Inode, oldName, newName string) error {
	if len(newName) == 0 || len(newName) > MaxNameLen {
		return ErrInvalidName
	}

	if _, _, err := fs.SearchDir(dir, newName); err == nil {
		return ErrAlreadyExists
	} else if err != ErrNotFound {
		return fmt.Errorf("renaming directory entry: %w", err)
	}

	blockSize := fs.BlockSize()
	buf := make([]byte, blockSize)
	numBlocks := (dir.Size + blockSize - 1) / blockSize

	for logical := uint64(0); logical < numBlocks; logical++ {
		block, present, err := fs.GetInodeBlock(dir, logical)
		if err != nil {
			return fmt.Errorf("renaming directory entry: %w", err)
		}
		if !present {
			continue
		}
		if err := fs.ReadBlock(block, buf); err != nil {
			return fmt.Errorf("renaming directory entry: %w", err)
		}

		var (
			targetOffset = -1
			targetEnt    DirEnt
		)
		err = IterateDirBlock(buf, func(offset int, ent DirEnt) (bool, error) {
			if ent.Ino != 0 && ent.Name == oldName {
				targetOffset, targetEnt = offset, ent
				return true, nil
			}
			return false, nil
		})
		if err != nil {
			return fmt.Errorf("renaming directory entry: %w", err)
		}
		if targetOffset < 0 {
			continue
		}

		if MinRecLen(newName) > targetEnt.RecLen {
			return fmt.Errorf(
				"renaming directory entry %q to %q: %w",
				oldName,
				newName,
				ErrNoSpace,
			)
		}

		renamed := targetEnt
		renamed.Name = newName
		if err := renamed.Encode(buf[targetOffset:]); err != nil {
			return fmt.Errorf("renaming directory entry: %w", err)
		}
		if err := fs.WriteBlock(block, buf); err != nil {
			return fmt.Errorf("renaming directory entry: %w", err)
		}
		return nil
	}

	return ErrNotFound
}
