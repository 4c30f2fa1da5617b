package ext2

import (
	"fmt"
)

// FormatConfig describes the geometry of a freshly formatted volume; it
// is the mkfs.ext2 equivalent of command-line flags like -b and -N.
type FormatConfig struct {
	// BlocksCount is the total size of the volume in blocks.
	BlocksCount uint32
	// BlockSize must be 1024, 2048, 4096, 8192, 16384, 32768, or 65536.
	BlockSize uint32
	// BlocksPerGroup and InodesPerGroup divide the volume into block
	// groups; zero selects a block-size-derived default of 8 * BlockSize
	// for BlocksPerGroup and 1/4 of that for InodesPerGroup.
	BlocksPerGroup uint32
	InodesPerGroup uint32
	// VolumeName is copied into the superblock's label field, truncated
	// to 16 bytes.
	VolumeName string
	// VolumeUUID is copied verbatim into the superblock's UUID field. A
	// zero value is fine; it's never consulted by driver logic.
	VolumeUUID [16]byte
}

func (cfg *FormatConfig) logBlockSize() (uint32, error) {
	switch cfg.BlockSize {
	case 1024:
		return 0, nil
	case 2048:
		return 1, nil
	case 4096:
		return 2, nil
	case 8192:
		return 3, nil
	case 16384:
		return 4, nil
	case 32768:
		return 5, nil
	case 65536:
		return 6, nil
	default:
		return 0, ErrInvalidGeometry{
			Reason: fmt.Sprintf("unsupported block size `%d`", cfg.BlockSize),
		}
	}
}

// Format builds a fresh, mountable ext2 volume on top of volume: a
// superblock and group descriptor table sized from cfg, one block and
// inode bitmap per group, an inode table per group, and a root directory
// already containing "." and "..". The returned FileSystem has not been
// flushed; call Flush to commit it to volume.
func Format(cfg FormatConfig, volume Volume) (*FileSystem, error) {
	logBlockSize, err := cfg.logBlockSize()
	if err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}
	blockSize := cfg.BlockSize

	blocksPerGroup := cfg.BlocksPerGroup
	if blocksPerGroup == 0 {
		blocksPerGroup = 8 * blockSize
	}
	inodesPerGroup := cfg.InodesPerGroup
	if inodesPerGroup == 0 {
		inodesPerGroup = blocksPerGroup / 4
	}

	firstDataBlock := uint32(1)
	if blockSize > 1024 {
		firstDataBlock = 0
	}

	if cfg.BlocksCount <= firstDataBlock {
		return nil, fmt.Errorf(
			"formatting volume: %w",
			ErrInvalidGeometry{Reason: "volume too small to hold a superblock"},
		)
	}

	groupCount := GroupID(cfg.BlocksCount+blocksPerGroup-1) /
		GroupID(blocksPerGroup)
	inodesCount := inodesPerGroup * uint32(groupCount)

	var volumeName [16]byte
	copy(volumeName[:], cfg.VolumeName)

	sb := Superblock{
		InodesCount:     inodesCount,
		BlocksCount:     cfg.BlocksCount,
		FreeBlocksCount: cfg.BlocksCount - firstDataBlock,
		FreeInodesCount: inodesCount,
		FirstDataBlock:  firstDataBlock,
		LogBlockSize:    logBlockSize,
		BlocksPerGroup:  blocksPerGroup,
		InodesPerGroup:  inodesPerGroup,
		State:           StateClean,
		RevLevel:        RevLevelDynamic,
		FirstIno:        DefaultFirstIno,
		InodeSize:       DefaultInodeSize,
		FeatureIncompat: 0,
		FeatureROCompat: 0,
		VolumeName:      volumeName,
		UUID:            cfg.VolumeUUID,
	}
	if err := sb.Validate(); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}

	fs := &FileSystem{
		Volume:          volume,
		Superblock:      sb,
		SuperblockBytes: &[SuperblockSize]byte{},
		SuperblockDirty: true,
		InodeCache:      map[Ino]Inode{},
		DirtyInos:       map[Ino]struct{}{},
		ReusedInos:      map[Ino]struct{}{},
		CacheQueue:      NewRing(),
	}

	fs.Groups = make([]Group, groupCount)
	for i := range fs.Groups {
		fs.Groups[i] = Group{
			Idx:         GroupID(i),
			BlockBitmap: make(DynamicBitmap, blocksPerGroup/8),
			InodeBitmap: make(DynamicBitmap, inodesPerGroup/8),
			Dirty:       true,
		}
	}

	if err := fs.AllocTables(); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}

	for i := uint32(1); i < sb.FirstIno; i++ {
		if err := fs.reserveInode(Ino(i)); err != nil {
			return nil, fmt.Errorf("formatting volume: reserving inode `%d`: %w", i, err)
		}
	}

	if err := fs.makeRootDirectory(); err != nil {
		return nil, fmt.Errorf("formatting volume: %w", err)
	}

	return fs, nil
}

// reserveInode marks an inode number as allocated without creating a
// record for it, the way the low, historically-reserved inode numbers
// (bad blocks, root, ACLs, journal, ...) are claimed at format time.
func (fs *FileSystem) reserveInode(ino Ino) error {
	groupID, local := fs.GetInoGroup(ino)
	byt, bit := local/8, local%8
	mask := byte(1) << bit
	if fs.Groups[groupID].InodeBitmap[byt]&mask != 0 {
		return fmt.Errorf("inode `%#x` already reserved", ino)
	}

	fs.Groups[groupID].InodeBitmap[byt] |= mask
	fs.Groups[groupID].Desc.FreeInodesCount--
	fs.Groups[groupID].Dirty = true
	fs.Superblock.FreeInodesCount--
	fs.SuperblockDirty = true
	return nil
}

func (fs *FileSystem) makeRootDirectory() error {
	rootGroup, _ := fs.GetInoGroup(RootIno)
	block, ok, err := fs.AllocBlock(rootGroup)
	if err != nil {
		return fmt.Errorf("creating root directory: %w", err)
	}
	if !ok {
		return fmt.Errorf("creating root directory: %w", NoFreeBlocksErr)
	}

	if err := fs.initDirDataBlock(block, RootIno, RootIno); err != nil {
		return fmt.Errorf("creating root directory: %w", err)
	}

	root := Inode{
		Ino: RootIno,
		Mode: Mode{
			FileType:     FileTypeDir,
			AccessRights: 0755,
		},
		Size:       fs.BlockSize(),
		Size512:    uint32(fs.BlockSize() / 512),
		LinksCount: 2,
	}
	root.Block[0] = uint32(block)
	if err := fs.WriteInode(&root); err != nil {
		return fmt.Errorf("creating root directory: %w", err)
	}

	return nil
}
