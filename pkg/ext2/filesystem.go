package ext2

import (
	"errors"
	"fmt"
)

const RootIno Ino = 2

// FileHandle names an open regular file by its inode number. OpenFile
// checks the file type once up front so later reads don't have to.
type FileHandle struct {
	ino Ino
}

type FileSystem struct {
	Volume          Volume
	Superblock      Superblock
	SuperblockBytes *[SuperblockSize]byte
	SuperblockDirty bool
	Groups          []Group
	InodeCache      map[Ino]Inode
	DirtyInos       map[Ino]struct{}
	ReusedInos      map[Ino]struct{}
	CacheQueue      Ring
}

func (fs *FileSystem) BlockSize() uint64 {
	return 1024 << fs.Superblock.LogBlockSize
}

func (fs *FileSystem) GroupCount() GroupID {
	a := GroupID(fs.Superblock.BlocksCount)
	b := GroupID(fs.Superblock.BlocksPerGroup)
	return (a + b - 1) / b
}

func (fs *FileSystem) Mount(volume Volume) error {
	var superblockBytes [1024]byte
	if err := volume.Read(1024, superblockBytes[:]); err != nil {
		return fmt.Errorf("mounting filesystem: %w", err)
	}

	sb, err := DecodeSuperblock(&superblockBytes, false)
	if err != nil {
		return fmt.Errorf("mounting filesystem: %w", err)
	}
	if err := sb.Validate(); err != nil {
		return fmt.Errorf("mounting filesystem: %w", err)
	}

	tmp := FileSystem{
		Volume:          volume,
		Superblock:      sb,
		SuperblockBytes: &superblockBytes,
		SuperblockDirty: false,
		Groups:          nil,
		InodeCache:      map[Ino]Inode{},
		DirtyInos:       map[Ino]struct{}{},
		ReusedInos:      map[Ino]struct{}{},
		CacheQueue:      NewRing(), // empty ring
	}

	tmp.Groups = make([]Group, tmp.GroupCount())
	for i := GroupID(0); i < GroupID(tmp.GroupCount()); i++ {
		group, err := tmp.ReadGroup(i)
		if err != nil {
			return fmt.Errorf("mounting filesystem: %w", err)
		}
		tmp.Groups[i] = group
	}

	*fs = tmp
	if err := fs.FlushSuperblock(false); err != nil {
		return fmt.Errorf("mounting filesystem: %w", err)
	}

	return nil
}

// ReadBlock and WriteBlock are the block-addressed counterpart to Volume's
// byte-addressed Read/Write: every caller above this layer works in whole
// blocks, and this is where range checks and the "never touch block 0"
// guard live.
func (fs *FileSystem) ReadBlock(block uint64, b []byte) error {
	if block >= uint64(fs.Superblock.BlocksCount) {
		return ErrOutOfRange{Block: block, BlocksCount: uint64(fs.Superblock.BlocksCount)}
	}
	if uint64(len(b)) != fs.BlockSize() {
		return ErrShortIO{Wanted: int(fs.BlockSize()), Got: len(b)}
	}
	if err := fs.Volume.Read(block*fs.BlockSize(), b); err != nil {
		return fmt.Errorf("reading block `%#x`: %w", block, err)
	}
	return nil
}

func (fs *FileSystem) WriteBlock(block uint64, b []byte) error {
	if block == 0 {
		return ErrWriteBlockZero
	}
	if block >= uint64(fs.Superblock.BlocksCount) {
		return ErrOutOfRange{Block: block, BlocksCount: uint64(fs.Superblock.BlocksCount)}
	}
	if uint64(len(b)) != fs.BlockSize() {
		return ErrShortIO{Wanted: int(fs.BlockSize()), Got: len(b)}
	}
	if err := fs.Volume.Write(block*fs.BlockSize(), b); err != nil {
		return fmt.Errorf("writing block `%#x`: %w", block, err)
	}
	return nil
}

// descTableBlock returns the block holding the start of the group
// descriptor table, which always immediately follows the superblock's
// block.
func (fs *FileSystem) descTableBlock() uint64 {
	return uint64(fs.Superblock.FirstDataBlock) + 1
}

func (fs *FileSystem) ReadGroup(groupID GroupID) (Group, error) {
	desc, err := fs.ReadGroupDesc(fs.descTableBlock(), groupID)
	if err != nil {
		return Group{}, fmt.Errorf("reading group `%#x`: %w", groupID, err)
	}

	blockBitmapOffset := uint64(desc.BlockBitmap) * fs.BlockSize()
	blockBitmap := make([]byte, uint64(fs.Superblock.BlocksPerGroup)/8)
	if err := fs.Volume.Read(blockBitmapOffset, blockBitmap); err != nil {
		return Group{}, fmt.Errorf(
			"reading group `%#x`: reading block bitmap: %w",
			groupID,
			err,
		)
	}

	inodeBitmapOffset := uint64(desc.InodeBitmap) * fs.BlockSize()
	inodeBitmap := make([]byte, uint64(fs.Superblock.InodesPerGroup)/8)
	if err := fs.Volume.Read(inodeBitmapOffset, inodeBitmap); err != nil {
		return Group{}, fmt.Errorf(
			"reading group `%#x`: reading inode bitmap: %w",
			groupID,
			err,
		)
	}

	return Group{
		Idx:         groupID,
		Desc:        desc,
		BlockBitmap: blockBitmap,
		InodeBitmap: inodeBitmap,
		Dirty:       false,
	}, nil
}

// groupDescOffset locates groupID's 32-byte entry within the group
// descriptor table that starts at tableBlock.
func (fs *FileSystem) groupDescOffset(tableBlock uint64, groupID GroupID) uint64 {
	return tableBlock*fs.BlockSize() + uint64(groupID)*GroupDescSize
}

func (fs *FileSystem) ReadGroupDesc(
	tableBlock uint64,
	groupID GroupID,
) (GroupDesc, error) {
	offset := fs.groupDescOffset(tableBlock, groupID)
	var descBuf [GroupDescSize]byte
	if err := fs.Volume.Read(offset, descBuf[:]); err != nil {
		return GroupDesc{}, fmt.Errorf(
			"reading descriptor for group `%#x` in table block `%#x`: %w",
			groupID,
			tableBlock,
			err,
		)
	}
	return DecodeGroupDesc(&descBuf), nil
}

func (fs *FileSystem) FlushSuperblock(clean bool) error {
	state := StateClean
	if !clean {
		state = StateDirty
	}
	fs.SuperblockDirty = fs.SuperblockDirty || fs.Superblock.State != state
	fs.Superblock.State = state

	if fs.SuperblockDirty {
		fs.Superblock.Encode(fs.SuperblockBytes)

		if err := fs.Volume.Write(1024, fs.SuperblockBytes[:]); err != nil {
			return fmt.Errorf("flushing superblock: %w", err)
		}

		fs.SuperblockDirty = false
	}

	return nil
}

func (fs *FileSystem) GetInode(ino Ino) (Inode, error) {
	inode, found := fs.InodeCache[ino]
	if found {
		fs.ReusedInos[ino] = struct{}{}
		return inode, nil
	}

	inode, err := fs.ReadInode(ino)
	if err != nil {
		return Inode{}, fmt.Errorf("fetching inode `%#x`: %w", ino, err)
	}

	fs.InodeCache[ino] = inode
	fs.CacheQueue.PushBack(ino)
	if err := fs.RefitInodeCache(); err != nil {
		return Inode{}, fmt.Errorf("fetching inode `%#x`: %w", ino, err)
	}
	return inode, nil
}

func (fs *FileSystem) ReadInode(ino Ino) (Inode, error) {
	offset, inodeSize := fs.LocateInode(ino)
	inodeBuf := make([]byte, inodeSize)
	if err := fs.Volume.Read(offset, inodeBuf); err != nil {
		return Inode{}, fmt.Errorf("reading inode at `%#x`: %w", ino, err)
	}
	inode, err := DecodeInode(
		ino,
		fs.Superblock.RevLevel,
		(*[InodeBufferSize]byte)(inodeBuf),
	)
	if err != nil {
		return Inode{}, fmt.Errorf("reading inode at `%#x`: %w", ino, err)
	}
	return inode, nil
}

func (fs *FileSystem) RefitInodeCache() error {
	for len(fs.InodeCache) > 10 {
		flushed := false
		for {
			usedIno, ok := fs.CacheQueue.PopFront()
			if !ok {
				break
			}

			if _, exists := fs.ReusedInos[usedIno]; exists {
				delete(fs.ReusedInos, usedIno)
				fs.CacheQueue.PushBack(usedIno)
			} else {
				if err := fs.FlushIno(usedIno); err != nil {
					return fmt.Errorf("refitting inode cache: %w", err)
				}
				flushed = true
				break
			}
		}

		if !flushed {
			// The queue ran out without naming an ino to evict (reused
			// inos are re-queued rather than dropped, so this only happens
			// once the queue is empty); evict an arbitrary cached one so
			// the loop terminates.
			for ino := range fs.InodeCache {
				if err := fs.FlushIno(ino); err != nil {
					return fmt.Errorf("refitting inode cache: %w", err)
				}
				break
			}
		}
	}

	return nil
}

func (fs *FileSystem) FlushIno(ino Ino) error {
	if inode, exists := fs.InodeCache[ino]; exists {
		delete(fs.InodeCache, ino)
		delete(fs.ReusedInos, ino)
		if _, exists := fs.DirtyInos[ino]; exists {
			delete(fs.DirtyInos, ino)
			if err := fs.WriteInode(&inode); err != nil {
				return fmt.Errorf("flushing ino `%#x`: %w", ino, err)
			}
			return nil
		}
	}
	return nil
}

func (fs *FileSystem) WriteInode(inode *Inode) error {
	offset, inodeSize := fs.LocateInode(inode.Ino)
	inodeBuf := make([]byte, inodeSize)
	if err := fs.Volume.Read(offset, inodeBuf); err != nil {
		return fmt.Errorf("writing inode `%#x`: %w", inode.Ino, err)
	}
	if err := inode.Encode(
		fs.Superblock.RevLevel,
		(*[InodeBufferSize]byte)(inodeBuf),
	); err != nil {
		return fmt.Errorf("writing inode `%#x`: %w", inode.Ino, err)
	}
	if err := fs.Volume.Write(offset, inodeBuf); err != nil {
		return fmt.Errorf("writing inode `%#x`: %w", inode.Ino, err)
	}
	return nil
}

func (fs *FileSystem) LocateInode(ino Ino) (uint64, uint64) {
	groupID, localID := fs.GetInoGroup(ino)
	inodeSize := uint64(fs.Superblock.InodeSize)
	inodeTable := uint64(fs.Groups[groupID].Desc.InodeTable)
	offset := inodeTable*fs.BlockSize() + localID*inodeSize
	return offset, inodeSize
}

func (fs *FileSystem) GetInoGroup(ino Ino) (GroupID, uint64) {
	groupSize := GroupID(fs.Superblock.InodesPerGroup)
	return GroupID(ino-1) / groupSize, uint64(ino-1) % uint64(groupSize)
}

func (fs *FileSystem) OpenFile(ino Ino) (FileHandle, error) {
	inode, err := fs.GetInode(ino)
	if err != nil {
		return FileHandle{}, fmt.Errorf("opening file: %w", err)
	}
	if inode.Mode.FileType == FileTypeRegular {
		return FileHandle{ino}, nil
	}

	return FileHandle{}, fmt.Errorf(
		"opening ino `%#x` as regular file: %w",
		ino,
		ErrInvalidFileType{
			Wanted: FileTypeRegular,
			Found:  inode.Mode.FileType,
		},
	)
}

func (fs *FileSystem) ReadFile(
	handle *FileHandle,
	offset uint64,
	b []byte,
) (uint64, error) {
	inode, err := fs.GetInode(handle.ino)
	if err != nil {
		return 0, fmt.Errorf("reading file `%#x`: %w", handle.ino, err)
	}
	n, err := fs.ReadInodeData(&inode, offset, b)
	if err != nil {
		return n, fmt.Errorf("reading inode `%#x` data: %w", handle.ino, err)
	}
	return n, nil
}

func (fs *FileSystem) ReadInodeData(
	inode *Inode,
	offset uint64,
	b []byte,
) (uint64, error) {
	if offset >= inode.Size {
		return 0, nil
	}

	blockSize := fs.BlockSize()
	maxLength := min(uint64(len(b)), inode.Size-offset)
	var chunkBegin uint64
	for chunkBegin < maxLength {
		chunkBlock := (offset + chunkBegin) / blockSize
		chunkOffset := (offset + chunkBegin) % blockSize
		chunkLength := min(maxLength-chunkBegin, blockSize-chunkOffset)
		if err := fs.ReadInodeBlock(
			inode,
			chunkBlock,
			chunkOffset,
			b[chunkBegin:chunkBegin+chunkLength],
		); err != nil {
			return chunkBegin, fmt.Errorf("reading inode data: %w", err)
		}
		chunkBegin += chunkLength
	}
	return chunkBegin, nil
}

func (fs *FileSystem) ReadInodeBlock(
	inode *Inode,
	inodeBlock uint64,
	offset uint64,
	b []byte,
) error {
	blockSize := fs.BlockSize()
	if offset+uint64(len(b)) > blockSize {
		panic(fmt.Sprintf(
			"offset `%d` + buffer length `%d` must be less than block size "+
				"`%d`",
			offset,
			len(b),
			blockSize,
		))
	}

	realBlock, ok, err := fs.GetInodeBlock(inode, inodeBlock)
	if err != nil {
		return fmt.Errorf(
			"reading block for inode at offset `%#x`: %w",
			offset,
			err,
		)
	}
	if !ok {
		return fmt.Errorf(
			"reading block for inode at offset `%#x`: %w",
			offset,
			ErrBlockOutOfRange{inodeBlock},
		)
	}

	blockOffset := realBlock*blockSize + offset
	if err := fs.Volume.Read(blockOffset, b); err != nil {
		return fmt.Errorf(
			"reading block for inode `%#x` at block `%#x` and offset `%#x`: "+
				"%w",
			inode.Ino,
			inodeBlock,
			offset,
			err,
		)
	}
	return nil
}

func (fs *FileSystem) GetInodeBlock(
	inode *Inode,
	inodeBlock uint64,
) (uint64, bool, error) {
	pos := fs.InodeBlockToPos(inodeBlock)
	switch pos.Level {
	case PosLevel0:
		block0 := uint64(inode.Block[pos.Data[0]])
		if block0 == 0 {
			return 0, false, nil
		}
		return block0, true, nil
	case PosLevel1:
		block1 := uint64(inode.Block[12])
		if block1 == 0 {
			return 0, false, nil
		}
		block0, err := fs.ReadIndirect(block1, pos.Data[0])
		if err != nil {
			return 0, false, fmt.Errorf(
				"getting block `%#x` for inode `%#x`: %w",
				inodeBlock,
				inode.Ino,
				err,
			)
		}
		if block0 == 0 {
			return 0, false, nil
		}
		return block0, true, nil
	case PosLevel2:
		level1, level0 := pos.Data[0], pos.Data[1]
		block2 := uint64(inode.Block[13])
		if block2 == 0 {
			return 0, false, nil
		}
		block1, err := fs.ReadIndirect(block2, level1)
		if err != nil {
			return 0, false, fmt.Errorf(
				"getting block `%#x` for inode `%#x`: %w",
				inodeBlock,
				inode.Ino,
				err,
			)
		}
		if block1 == 0 {
			return 0, false, nil
		}
		block0, err := fs.ReadIndirect(block1, level0)
		if err != nil {
			return 0, false, fmt.Errorf(
				"getting block `%#x` for inode `%#x`: %w",
				inodeBlock,
				inode.Ino,
				err,
			)
		}
		if block0 == 0 {
			return 0, false, nil
		}
		return block0, true, nil
	case PosLevel3:
		level2, level1, level0 := pos.Data[0], pos.Data[1], pos.Data[2]
		block3 := uint64(inode.Block[14])
		if block3 == 0 {
			return 0, false, nil
		}
		block2, err := fs.ReadIndirect(block3, level2)
		if err != nil {
			return 0, false, fmt.Errorf(
				"getting block `%#x` for inode `%#x`: %w",
				inodeBlock,
				inode.Ino,
				err,
			)
		}
		if block2 == 0 {
			return 0, false, nil
		}
		block1, err := fs.ReadIndirect(block2, level1)
		if err != nil {
			return 0, false, fmt.Errorf(
				"getting block `%#x` for inode `%#x`: %w",
				inodeBlock,
				inode.Ino,
				err,
			)
		}
		if block1 == 0 {
			return 0, false, nil
		}
		block0, err := fs.ReadIndirect(block1, level0)
		if err != nil {
			return 0, false, fmt.Errorf(
				"getting block `%#x` for inode `%#x`: %w",
				inodeBlock,
				inode.Ino,
				err,
			)
		}
		if block0 == 0 {
			return 0, false, nil
		}
		return block0, true, nil
	case PosOutOfRange:
		return 0, false, fmt.Errorf(
			"getting block `%#x` for inode `%#x`: %w",
			inodeBlock,
			inode.Ino,
			ErrBlockOutOfRange{inodeBlock},
		)
	default:
		panic(fmt.Sprintf("invalid BlockPosLevel: %d", pos.Level))
	}
}

func (fs *FileSystem) ReadIndirect(
	indirectBlock uint64,
	entry uint64,
) (uint64, error) {
	var b [4]byte
	blockSize := fs.BlockSize()
	entryOffset := indirectBlock*blockSize + entry*4
	if entry >= blockSize/4 {
		panic(fmt.Sprintf(
			"entry `%d` should be less than a quarter of the block size `%d`",
			entry,
			blockSize/4,
		))
	}
	if err := fs.Volume.Read(entryOffset, b[:]); err != nil {
		return 0, fmt.Errorf(
			"reading indirect block `%#x` at entry `%#x`: %w",
			indirectBlock,
			entry,
			err,
		)
	}
	return uint64(DecodeUint32(b[0], b[1], b[2], b[3])), nil
}

// EnumerateBlocks visits every allocated data block number referenced by
// inode, in logical order, across all four levels: direct, single,
// double, and triple indirect. It does not visit the pointer blocks
// themselves.
func (fs *FileSystem) EnumerateBlocks(
	inode *Inode,
	visit func(block uint64) error,
) error {
	for i := 0; i < 12; i++ {
		block := uint64(inode.Block[i])
		if block == 0 {
			continue
		}
		if err := visit(block); err != nil {
			return err
		}
	}

	if err := fs.enumerateIndirect(uint64(inode.Block[12]), 1, visit); err != nil {
		return fmt.Errorf("enumerating blocks for inode `%#x`: %w", inode.Ino, err)
	}
	if err := fs.enumerateIndirect(uint64(inode.Block[13]), 2, visit); err != nil {
		return fmt.Errorf("enumerating blocks for inode `%#x`: %w", inode.Ino, err)
	}
	if err := fs.enumerateIndirect(uint64(inode.Block[14]), 3, visit); err != nil {
		return fmt.Errorf("enumerating blocks for inode `%#x`: %w", inode.Ino, err)
	}
	return nil
}

func (fs *FileSystem) enumerateIndirect(
	block uint64,
	depth int,
	visit func(block uint64) error,
) error {
	if block == 0 {
		return nil
	}
	if depth == 0 {
		return visit(block)
	}

	pointersPerBlock := fs.BlockSize() / 4
	for entry := uint64(0); entry < pointersPerBlock; entry++ {
		child, err := fs.ReadIndirect(block, entry)
		if err != nil {
			return err
		}
		if child == 0 {
			continue
		}
		if err := fs.enumerateIndirect(child, depth-1, visit); err != nil {
			return err
		}
	}
	return nil
}

// FreeInodeBlocks frees every block referenced by inode, including
// pointer blocks at every indirection level, leaving the inode's Block
// array untouched; callers who are deleting the inode zero it themselves.
// Unlike the simplification some ext2 drivers take, the triple-indirect
// chain is walked and freed like any other: skipping it would leak blocks
// on deletion of very large files.
func (fs *FileSystem) FreeInodeBlocks(inode *Inode) error {
	for i := 0; i < 12; i++ {
		if block := uint64(inode.Block[i]); block != 0 {
			if err := fs.FreeBlock(block); err != nil {
				return fmt.Errorf(
					"freeing blocks for inode `%#x`: %w",
					inode.Ino,
					err,
				)
			}
		}
	}

	for depth, ptr := range [3]uint64{
		uint64(inode.Block[12]),
		uint64(inode.Block[13]),
		uint64(inode.Block[14]),
	} {
		if err := fs.freeIndirect(ptr, depth+1); err != nil {
			return fmt.Errorf(
				"freeing blocks for inode `%#x`: %w",
				inode.Ino,
				err,
			)
		}
	}

	return nil
}

func (fs *FileSystem) freeIndirect(block uint64, depth int) error {
	if block == 0 {
		return nil
	}
	if depth == 0 {
		return fs.FreeBlock(block)
	}

	pointersPerBlock := fs.BlockSize() / 4
	for entry := uint64(0); entry < pointersPerBlock; entry++ {
		child, err := fs.ReadIndirect(block, entry)
		if err != nil {
			return err
		}
		if child == 0 {
			continue
		}
		if err := fs.freeIndirect(child, depth-1); err != nil {
			return err
		}
	}
	return fs.FreeBlock(block)
}

// Regular-file write is not a feature of this core: the only writer of
// inode block pointers is the DirectoryEditor's own, more specific growth
// policy (see directory.go, allocDirBlock), which never touches the
// triple-indirect pointer. A generic indirect-chain writer lived here in
// the original draft but never linked the block it allocated back into
// the inode, so it's gone rather than kept as dead weight.

// UpdateInode marks inode dirty and installs it in the cache, following
// GetInode's own cache-admission path (RefitInodeCache eviction included)
// so a caller who mutates an inode in place and calls UpdateInode sees the
// same caching behavior as a fresh read would.
func (fs *FileSystem) UpdateInode(inode *Inode) error {
	fs.DirtyInos[inode.Ino] = struct{}{}
	if _, exists := fs.InodeCache[inode.Ino]; exists {
		fs.InodeCache[inode.Ino] = *inode
		fs.ReusedInos[inode.Ino] = struct{}{}
		return nil
	}
	fs.InodeCache[inode.Ino] = *inode
	fs.CacheQueue.PushBack(inode.Ino)
	if err := fs.RefitInodeCache(); err != nil {
		return fmt.Errorf("updating inode `%#x`: %w", inode.Ino, err)
	}
	return nil
}

func (fs *FileSystem) AllocBlock(firstGroupID GroupID) (uint64, bool, error) {
	return fs.Alloc(firstGroupID, (*FileSystem).AllocBlockInGroup)
}

// AllocBlockInGroup claims the first zero bit at or after the group's
// BlockAllocCursor (falling back to the first zero bit of the whole
// bitmap), if the group's free-block count says one is available, and
// translates that bit position back into an absolute block number.
func (fs *FileSystem) AllocBlockInGroup(groupID GroupID) (uint64, bool, error) {
	group := &fs.Groups[groupID]
	if group.Desc.FreeBlocksCount == 0 {
		return 0, false, nil
	}

	var byt, bit uint64
	var ok bool
	if group.BlockAllocCursor < uint64(len(group.BlockBitmap))*8 {
		byt, bit, ok = group.BlockBitmap.FindZeroBitAfter(group.BlockAllocCursor)
	}
	if !ok {
		byt, bit, ok = group.BlockBitmap.FindZeroBit()
		if !ok {
			return 0, false, nil
		}
	}

	group.BlockBitmap.SetHigh(byt, bit)
	group.BlockAllocCursor = byt*8 + bit + 1
	group.Desc.FreeBlocksCount--
	group.Dirty = true
	fs.Superblock.FreeBlocksCount--
	fs.SuperblockDirty = true
	return uint64(groupID)*uint64(fs.Superblock.BlocksPerGroup) +
		uint64(fs.Superblock.FirstDataBlock) +
		byt*8 + bit, true, nil
}

// Alloc tries allocInGroup against firstGroupID, then wraps around the
// remaining groups (firstGroupID+1..end, then 0..firstGroupID) until one
// succeeds or every group has been tried. AllocBlock and AllocInode both
// go through this so a caller with a locality hint (e.g. "allocate near
// this file's other blocks") gets it honored without duplicating the
// wraparound scan twice.
func (fs *FileSystem) Alloc(
	firstGroupID GroupID,
	allocInGroup func(*FileSystem, GroupID) (uint64, bool, error),
) (uint64, bool, error) {
	resource, ok, err := allocInGroup(fs, firstGroupID)
	if err != nil {
		return resource, ok, err
	}
	if ok {
		return resource, true, nil
	}
	groupCount := GroupID(fs.GroupCount())
	for _, rng := range [2][2]GroupID{
		{firstGroupID + 1, groupCount},
		{0, firstGroupID},
	} {
		for groupID := rng[0]; groupID < rng[1]; groupID++ {
			resource, ok, err := allocInGroup(fs, groupID)
			if err != nil {
				return resource, ok, err
			}
			if ok {
				return resource, true, nil
			}
		}
	}

	return 0, false, nil
}

func (fs *FileSystem) AllocTables() error {
	for i := range fs.Groups {
		if err := fs.AllocGroupTable(GroupID(i)); err != nil {
			return err
		}
	}

	return nil
}

func (fs *FileSystem) AllocGroupTable(group GroupID) error {
	fs.Groups[group].Desc.FreeBlocksCount = uint16(
		fs.GroupLastBlock(group) - fs.GroupFirstBlock(group) + 1,
	)
	fs.Groups[group].Desc.FreeInodesCount = uint16(fs.Superblock.InodesPerGroup)

	if group == 0 {
		// The superblock and the group descriptor table occupy the first
		// blocks of group 0; claim them before anything else is placed.
		blockSize := fs.BlockSize()
		reserved := 1 + (uint64(len(fs.Groups))*GroupDescSize+blockSize-1)/blockSize
		for bit := uint64(0); bit < reserved; bit++ {
			fs.Groups[0].BlockBitmap.SetHigh(bit/8, bit%8)
		}
		fs.Groups[0].Desc.FreeBlocksCount -= uint16(reserved)
		fs.Superblock.FreeBlocksCount -= uint32(reserved)
	}

	blockBitmapBlock, err := fs.allocBlockInGroup(group)
	if err != nil {
		return fmt.Errorf(
			"allocating table for group `%#x`: allocating block bitmap: %w",
			group,
			err,
		)
	}
	fs.Groups[group].Desc.BlockBitmap = blockBitmapBlock

	inodeBitmapBlock, err := fs.allocBlockInGroup(group)
	if err != nil {
		return fmt.Errorf(
			"allocating table for group `%#x`: allocating inode bitmap: %w",
			group,
			err,
		)
	}
	fs.Groups[group].Desc.InodeBitmap = inodeBitmapBlock

	if _, err := fs.AllocateInodeTable(group); err != nil {
		return fmt.Errorf("allocating table for group `%#x`: %w", group, err)
	}

	return nil
}

func (fs *FileSystem) AllocateInodeTable(group GroupID) (uint16, error) {
	inodeBlocks := fs.Superblock.InodesPerGroup *
		uint32(fs.Superblock.InodeSize) /
		uint32(fs.BlockSize())

	// allocate the first block of the inode table; note the block in the
	// GroupDesc.InodeTable field.
	block, err := fs.allocBlockInGroup(group)
	if err != nil {
		return 0, fmt.Errorf("allocating block 0 of inode table: %w", err)
	}
	fs.Groups[group].Desc.InodeTable = block

	// allocate the remaining inode table blocks
	for i := uint32(1); i < inodeBlocks; i++ {
		if _, err := fs.allocBlockInGroup(group); err != nil {
			return uint16(i + 1), fmt.Errorf(
				"allocating block %d of inode table: %w",
				i,
				err,
			)
		}
	}

	return uint16(inodeBlocks), nil
}

func (fs *FileSystem) allocBlockInGroup(group GroupID) (uint32, error) {
	block, ok, err := fs.Alloc(group, (*FileSystem).AllocBlockInGroup)
	if err != nil {
		return uint32(block), err
	}
	if !ok {
		return uint32(block), NoFreeBlocksErr
	}
	return uint32(block), nil
}

// FreeBlock clears a block's bit in its group's bitmap and credits it back
// to both the group and superblock free counts. Freeing an already-free
// block is a no-op, matching the original driver's fail-soft behavior for
// inode freeing.
func (fs *FileSystem) FreeBlock(block uint64) error {
	groupID, local, err := fs.blockGroup(block)
	if err != nil {
		return fmt.Errorf("freeing block `%#x`: %w", block, err)
	}

	byt, bit := local/8, local%8
	mask := byte(1) << bit
	if fs.Groups[groupID].BlockBitmap[byt]&mask == 0 {
		return nil
	}

	fs.Groups[groupID].BlockBitmap[byt] &^= mask
	fs.Groups[groupID].Desc.FreeBlocksCount++
	fs.Groups[groupID].Dirty = true
	fs.Superblock.FreeBlocksCount++
	fs.SuperblockDirty = true
	return nil
}

func (fs *FileSystem) blockGroup(block uint64) (GroupID, uint64, error) {
	if block < uint64(fs.Superblock.FirstDataBlock) ||
		block >= uint64(fs.Superblock.BlocksCount) {
		return 0, 0, ErrOutOfRange{
			Block:       block,
			BlocksCount: uint64(fs.Superblock.BlocksCount),
		}
	}
	rel := block - uint64(fs.Superblock.FirstDataBlock)
	groupID := GroupID(rel / uint64(fs.Superblock.BlocksPerGroup))
	local := rel % uint64(fs.Superblock.BlocksPerGroup)
	return groupID, local, nil
}

// AllocInode scans the inode bitmaps, group by group starting at
// firstGroupID and wrapping around, for the first free inode, mirroring
// AllocBlock's group-scan policy.
func (fs *FileSystem) AllocInode(firstGroupID GroupID) (Ino, bool, error) {
	resource, ok, err := fs.Alloc(firstGroupID, (*FileSystem).allocInodeInGroup)
	return Ino(resource), ok, err
}

func (fs *FileSystem) allocInodeInGroup(groupID GroupID) (uint64, bool, error) {
	group := &fs.Groups[groupID]
	if group.Desc.FreeInodesCount == 0 {
		return 0, false, nil
	}

	var byt, bit uint64
	var ok bool
	if group.InodeAllocCursor < uint64(len(group.InodeBitmap))*8 {
		byt, bit, ok = group.InodeBitmap.FindZeroBitAfter(group.InodeAllocCursor)
	}
	if !ok {
		byt, bit, ok = group.InodeBitmap.FindZeroBit()
		if !ok {
			return 0, false, nil
		}
	}

	group.InodeBitmap.SetHigh(byt, bit)
	group.InodeAllocCursor = byt*8 + bit + 1
	group.Desc.FreeInodesCount--
	group.Dirty = true
	fs.Superblock.FreeInodesCount--
	fs.SuperblockDirty = true

	local := byt*8 + bit
	ino := uint64(groupID)*uint64(fs.Superblock.InodesPerGroup) + local + 1
	return ino, true, nil
}

// FreeInode clears an inode's bit in its group's bitmap and credits the
// free counters. It does not touch the inode record itself; callers free
// the inode's data blocks and zero the record separately.
func (fs *FileSystem) FreeInode(ino Ino) error {
	groupID, local := fs.GetInoGroup(ino)
	byt, bit := local/8, local%8
	mask := byte(1) << bit
	if fs.Groups[groupID].InodeBitmap[byt]&mask == 0 {
		return nil
	}

	fs.Groups[groupID].InodeBitmap[byt] &^= mask
	fs.Groups[groupID].Desc.FreeInodesCount++
	fs.Groups[groupID].Dirty = true
	fs.Superblock.FreeInodesCount++
	fs.SuperblockDirty = true
	return nil
}

// GroupFirstBlock returns the lowest absolute block number belonging to
// group.
func (fs *FileSystem) GroupFirstBlock(group GroupID) uint64 {
	return uint64(fs.Superblock.FirstDataBlock) +
		uint64(group)*uint64(fs.Superblock.BlocksPerGroup)
}

// GroupLastBlock returns the highest absolute block number belonging to
// group. The final group may be short a few blocks if BlocksCount isn't an
// exact multiple of BlocksPerGroup, so it's bounded by BlocksCount rather
// than assumed to be a full group.
func (fs *FileSystem) GroupLastBlock(group GroupID) uint64 {
	if group == GroupID(len(fs.Groups)-1) {
		return uint64(fs.Superblock.BlocksCount) - 1
	}
	return fs.GroupFirstBlock(group) + uint64(fs.Superblock.BlocksPerGroup) - 1
}

func (fs *FileSystem) CloseFile(handle FileHandle) error {
	if err := fs.FlushIno(handle.ino); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	return nil
}

func (fs *FileSystem) InodeBlockToPos(inodeBlock uint64) BlockPos {
	if inodeBlock < 12 {
		return BlockPosLevel0(inodeBlock)
	}

	indirect1Size := fs.BlockSize() / 4
	if inodeBlock < 12+indirect1Size {
		return BlockPosLevel1(inodeBlock - 12)
	}

	indirect2Size := indirect1Size * indirect1Size
	if inodeBlock < 12+indirect1Size+indirect2Size {
		base := inodeBlock - 12 - indirect1Size
		return BlockPosLevel2(base/indirect1Size, base%indirect1Size)
	}

	indirect3Size := indirect1Size * indirect2Size
	if inodeBlock < 12+indirect1Size+indirect2Size+indirect3Size {
		base := inodeBlock - 12 - indirect1Size - indirect2Size
		return BlockPosLevel3(
			base/indirect2Size,
			(base%indirect2Size)/indirect1Size,
			(base%indirect2Size)%indirect1Size,
		)
	}

	return BlockPosOutOfRange()
}

// Flush writes out every dirty cached inode, every dirty group (bitmaps and
// descriptor), and the superblock itself, and marks the superblock clean.
// This is the only path that clears State back to StateClean; anything
// short of calling Flush leaves the volume marked dirty for fsck.
func (fs *FileSystem) Flush() error {
	for ino := range fs.DirtyInos {
		if err := fs.FlushIno(ino); err != nil {
			return fmt.Errorf("flushing filesystem: %w", err)
		}
	}

	groupCount := GroupID(fs.GroupCount())
	for groupID := GroupID(0); groupID < groupCount; groupID++ {
		if err := fs.FlushGroup(groupID); err != nil {
			return fmt.Errorf("flushing filesystem: %w", err)
		}
	}

	if err := fs.FlushSuperblock(true); err != nil {
		return fmt.Errorf("flushing filesystem: %w", err)
	}

	return nil
}

// FlushGroup writes groupID's descriptor and bitmaps to the volume if
// they've changed since the last flush, and clears its dirty flag.
func (fs *FileSystem) FlushGroup(groupID GroupID) error {
	if fs.Groups[groupID].Dirty {
		if err := fs.WriteGroup(groupID); err != nil {
			return fmt.Errorf("flushing group `%#x`: %w", groupID, err)
		}
		fs.Groups[groupID].Dirty = false
	}
	return nil
}

// WriteGroup writes groupID's descriptor entry and both of its bitmaps
// unconditionally, regardless of the Dirty flag; FlushGroup is the
// dirty-checked caller most code wants.
func (fs *FileSystem) WriteGroup(groupID GroupID) error {
	groupDesc := fs.Groups[groupID].Desc
	if err := fs.WriteGroupDesc(fs.descTableBlock(), groupID, &groupDesc); err != nil {
		return fmt.Errorf("writing group `%#x`: %w", groupID, err)
	}

	blockSize := fs.BlockSize()
	blockBitmapOffset := uint64(groupDesc.BlockBitmap) * blockSize
	if err := fs.Volume.Write(
		blockBitmapOffset,
		[]byte(fs.Groups[groupID].BlockBitmap),
	); err != nil {
		return fmt.Errorf(
			"writing group `%#x`: writing block bitmap: %w",
			groupID,
			err,
		)
	}

	inodeBitmapOffset := uint64(groupDesc.InodeBitmap) * blockSize
	if err := fs.Volume.Write(
		inodeBitmapOffset,
		[]byte(fs.Groups[groupID].InodeBitmap),
	); err != nil {
		return fmt.Errorf(
			"writing group `%#x`: writing inode bitmap: %w",
			groupID,
			err,
		)
	}

	return nil
}

// WriteGroupDesc encodes desc over the descriptor table entry for groupID
// in tableBlock. It reads the existing entry first so that any descriptor
// bytes this driver doesn't model (there are none currently, but the
// layout reserves some) survive the round trip instead of being zeroed.
func (fs *FileSystem) WriteGroupDesc(
	tableBlock uint64,
	groupID GroupID,
	desc *GroupDesc,
) error {
	offset := fs.groupDescOffset(tableBlock, groupID)
	var descBuf [GroupDescSize]byte
	if err := fs.Volume.Read(offset, descBuf[:]); err != nil {
		return fmt.Errorf(
			"writing desc for group `%#x` at table block `%#x`: %w",
			groupID,
			tableBlock,
			err,
		)
	}
	desc.Encode(&descBuf)
	if err := fs.Volume.Write(offset, descBuf[:]); err != nil {
		return fmt.Errorf(
			"writing desc for group `%#x` at table block `%#x`: %w",
			groupID,
			tableBlock,
			err,
		)
	}

	return nil
}

type ErrInvalidFileType struct {
	Wanted, Found FileType
}

func (err ErrInvalidFileType) Error() string {
	return fmt.Sprintf(
		"invalid file type: wanted `%s`; found `%s`",
		err.Wanted,
		err.Found,
	)
}

type ErrBlockOutOfRange struct {
	Block uint64
}

func (err ErrBlockOutOfRange) Error() string {
	return fmt.Sprintf("block `%#x` is out of range", err.Block)
}

var NoFreeBlocksErr = errors.New("no free blocks remain for files")
