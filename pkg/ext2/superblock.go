package ext2

import (
	"encoding/binary"
	"fmt"
)

type SuperblockState uint16

type RevLevel uint32

const (
	SuperblockMagic uint16 = 0xef53

	// SuperblockSize is the size allocated for the superblock on disk.
	// The superblock doesn't actually use this much size; it seems to be more
	// of an upper-bound in case more fields were added to the superblock.
	SuperblockSize            uint16 = 1024
	SuperblockOffset          uint32 = 1024
	SupportedIncompatFeatures uint32 = 0x0002
	SupportedROCompatFeatures uint32 = 0

	StateClean SuperblockState = 1
	StateDirty SuperblockState = 2

	RevLevelStatic  RevLevel = 0
	RevLevelDynamic RevLevel = 1

	DefaultFirstIno  uint32 = 11
	DefaultInodeSize uint16 = 128
)

type Superblock struct {
	InodesCount     uint32
	BlocksCount     uint32
	FreeBlocksCount uint32
	FreeInodesCount uint32
	FirstDataBlock  uint32
	LogBlockSize    uint32
	BlocksPerGroup  uint32
	InodesPerGroup  uint32
	MountTime       uint32
	WriteTime       uint32
	State           SuperblockState
	RevLevel        RevLevel
	FirstIno        uint32
	InodeSize       uint16
	FeatureCompat   uint32
	FeatureIncompat uint32
	FeatureROCompat uint32

	// ReservedBlocksCount, LogFragSize, FragsPerGroup, MountCount,
	// MaxMountCount, Errors, MinorRevLevel, LastCheck, CheckInterval,
	// CreatorOS, DefResUID, DefResGID, BlockGroupNr, and LastMounted
	// round through Decode/Encode unchanged but are never consulted by
	// any driver operation here (no fragments, no fsck scheduling, no
	// reserved-block enforcement, no multi-OS creator dispatch): they
	// exist so a round-tripped image doesn't lose them.
	ReservedBlocksCount uint32
	LogFragSize         uint32
	FragsPerGroup       uint32
	MountCount          uint16
	MaxMountCount       uint16
	Errors              uint16
	MinorRevLevel       uint16
	LastCheck           uint32
	CheckInterval       uint32
	CreatorOS           uint32
	DefResUID           uint16
	DefResGID           uint16
	BlockGroupNr        uint16

	// UUID and VolumeName are decoded and re-encoded faithfully; no
	// driver operation branches on them, and only Info reads VolumeName
	// (to report the label). They exist so a formatted image carries a
	// recognizable label, the way mke2fs -L does.
	UUID        [16]byte
	VolumeName  [16]byte
	LastMounted [64]byte
}

type ErrBadMagic struct {
	Found uint16
}

func (err ErrBadMagic) Error() string {
	return fmt.Sprintf(
		"bad magic: wanted `0x%2X`; found `%0#2x",
		SuperblockMagic,
		err.Found,
	)
}

type ErrBadState struct {
	Found SuperblockState
}

func (err ErrBadState) Error() string {
	return fmt.Sprintf(
		"bad state: wanted `0x%2X`; found `%0#2x`",
		StateClean,
		err.Found,
	)
}

type ErrIncompatibleFeatures struct {
	Found uint32
}

func (err ErrIncompatibleFeatures) Error() string {
	return fmt.Sprintf(
		"volume uses incompatible features: `%0#4x`",
		err.Found,
	)
}

type ErrIncompatibleFeaturesReadOnly struct {
	Found uint32
}

func (err ErrIncompatibleFeaturesReadOnly) Error() string {
	return fmt.Sprintf(
		"volume uses incompatible features; %s: `%0#4x`",
		"only reading is supported",
		err.Found,
	)
}

func DecodeSuperblock(
	b *[SuperblockSize]byte,
	readOnly bool,
) (Superblock, error) {
	var sb Superblock
	err := sb.Decode(b, readOnly)
	return sb, err
}

func (sb *Superblock) Decode(b *[SuperblockSize]byte, readOnly bool) error {
	magic := DecodeUint16(b[56], b[57])
	if magic != SuperblockMagic {
		return fmt.Errorf("decoding superblock: %w", ErrBadMagic{magic})
	}

	state := SuperblockState(DecodeUint16(b[58], b[59]))
	if state != StateClean {
		return fmt.Errorf("decoding superblock: %w", ErrBadState{state})
	}

	rev := RevLevel(DecodeUint32(b[76], b[77], b[78], b[79]))

	var featureCompat, featureIncompat, featureROCompat uint32
	if rev >= 1 {
		featureCompat = DecodeUint32(b[92], b[93], b[94], b[95])
		featureIncompat = DecodeUint32(b[96], b[97], b[98], b[99])
		featureROCompat = DecodeUint32(b[100], b[101], b[102], b[103])
	}

	if (featureIncompat & ^SupportedIncompatFeatures) != 0 {
		return fmt.Errorf(
			"decoding superblock: %w",
			ErrIncompatibleFeatures{featureIncompat},
		)
	}

	if !readOnly && (featureROCompat & ^SupportedROCompatFeatures) != 0 {
		return fmt.Errorf(
			"decoding superblock: %w",
			ErrIncompatibleFeaturesReadOnly{featureROCompat},
		)
	}

	sb.InodesCount = DecodeUint32(b[0], b[1], b[2], b[3])
	sb.BlocksCount = DecodeUint32(b[4], b[5], b[6], b[7])
	sb.ReservedBlocksCount = DecodeUint32(b[8], b[9], b[10], b[11])
	sb.FreeBlocksCount = DecodeUint32(b[12], b[13], b[14], b[15])
	sb.FreeInodesCount = DecodeUint32(b[16], b[17], b[18], b[19])
	sb.FirstDataBlock = DecodeUint32(b[20], b[21], b[22], b[23])
	sb.LogBlockSize = DecodeUint32(b[24], b[25], b[26], b[27])
	sb.LogFragSize = DecodeUint32(b[28], b[29], b[30], b[31])
	sb.BlocksPerGroup = DecodeUint32(b[32], b[33], b[34], b[35])
	sb.FragsPerGroup = DecodeUint32(b[36], b[37], b[38], b[39])
	sb.InodesPerGroup = DecodeUint32(b[40], b[41], b[42], b[43])
	sb.MountTime = DecodeUint32(b[44], b[45], b[46], b[47])
	sb.WriteTime = DecodeUint32(b[48], b[49], b[50], b[51])
	sb.MountCount = DecodeUint16(b[52], b[53])
	sb.MaxMountCount = DecodeUint16(b[54], b[55])
	sb.State = state
	sb.Errors = DecodeUint16(b[60], b[61])
	sb.MinorRevLevel = DecodeUint16(b[62], b[63])
	sb.LastCheck = DecodeUint32(b[64], b[65], b[66], b[67])
	sb.CheckInterval = DecodeUint32(b[68], b[69], b[70], b[71])
	sb.CreatorOS = DecodeUint32(b[72], b[73], b[74], b[75])
	sb.RevLevel = rev
	sb.DefResUID = DecodeUint16(b[80], b[81])
	sb.DefResGID = DecodeUint16(b[82], b[83])
	if rev != RevLevelStatic {
		sb.FirstIno = DecodeUint32(b[84], b[85], b[86], b[87])
		sb.InodeSize = DecodeUint16(b[88], b[89])
		sb.BlockGroupNr = DecodeUint16(b[90], b[91])
	} else {
		sb.FirstIno = DefaultFirstIno
		sb.InodeSize = DefaultInodeSize
	}
	sb.FeatureCompat = featureCompat
	sb.FeatureIncompat = featureIncompat
	sb.FeatureROCompat = featureROCompat
	copy(sb.UUID[:], b[104:120])
	copy(sb.VolumeName[:], b[120:136])
	copy(sb.LastMounted[:], b[136:200])

	return nil
}

func DecodeUint16(b0, b1 byte) uint16 {
	// Little endian: first byte is least significant
	// https://en.wikipedia.org/wiki/Endianness
	return uint16(b0) + (uint16(b1) << 8)
}

func DecodeUint32(b0, b1, b2, b3 byte) uint32 {
	// Little endian: first byte is least significant
	// https://en.wikipedia.org/wiki/Endianness
	return uint32(b0) +
		(uint32(b1) << 8) +
		(uint32(b2) << 16) +
		(uint32(b3) << 24)
}

func (superblock *Superblock) Encode(b *[SuperblockSize]byte) {
	EncodeUint32(superblock.InodesCount, b[0:])
	EncodeUint32(superblock.BlocksCount, b[4:])
	EncodeUint32(superblock.ReservedBlocksCount, b[8:])
	EncodeUint32(superblock.FreeBlocksCount, b[12:])
	EncodeUint32(superblock.FreeInodesCount, b[16:])
	EncodeUint32(superblock.FirstDataBlock, b[20:])
	EncodeUint32(superblock.LogBlockSize, b[24:])
	EncodeUint32(superblock.LogFragSize, b[28:])
	EncodeUint32(superblock.BlocksPerGroup, b[32:])
	EncodeUint32(superblock.FragsPerGroup, b[36:])
	EncodeUint32(superblock.InodesPerGroup, b[40:])
	EncodeUint32(superblock.MountTime, b[44:])
	EncodeUint32(superblock.WriteTime, b[48:])
	EncodeUint16(superblock.MountCount, b[52:])
	EncodeUint16(superblock.MaxMountCount, b[54:])
	EncodeUint16(SuperblockMagic, b[56:])
	EncodeUint16(uint16(superblock.State), b[58:])
	EncodeUint16(superblock.Errors, b[60:])
	EncodeUint16(superblock.MinorRevLevel, b[62:])
	EncodeUint32(superblock.LastCheck, b[64:])
	EncodeUint32(superblock.CheckInterval, b[68:])
	EncodeUint32(superblock.CreatorOS, b[72:])
	EncodeUint32(uint32(superblock.RevLevel), b[76:])
	EncodeUint16(superblock.DefResUID, b[80:])
	EncodeUint16(superblock.DefResGID, b[82:])

	if superblock.RevLevel != RevLevelStatic {
		EncodeUint32(superblock.FirstIno, b[84:])
		EncodeUint16(superblock.InodeSize, b[88:])
		EncodeUint16(superblock.BlockGroupNr, b[90:])
		EncodeUint32(superblock.FeatureCompat, b[92:])
		EncodeUint32(superblock.FeatureIncompat, b[96:])
		EncodeUint32(superblock.FeatureROCompat, b[100:])
	}
	copy(b[104:120], superblock.UUID[:])
	copy(b[120:136], superblock.VolumeName[:])
	copy(b[136:200], superblock.LastMounted[:])
}

// Validate performs the geometry sanity checks a real ext2 driver runs
// before trusting a superblock: block size in range, nonzero group
// divisors, agreement between the group count derived from blocks and
// the group count derived from inodes, and a dynamic-revision inode
// size that's a power of two no smaller than the legacy 128-byte
// record.
func (sb *Superblock) Validate() error {
	blockSize := uint32(1024) << sb.LogBlockSize
	if blockSize < 1024 || blockSize > 65536 {
		return ErrInvalidGeometry{
			Reason: fmt.Sprintf("block size `%d` out of range", blockSize),
		}
	}
	if sb.BlocksPerGroup == 0 || sb.InodesPerGroup == 0 {
		return ErrInvalidGeometry{
			Reason: "blocks_per_group and inodes_per_group must be nonzero",
		}
	}
	if sb.FreeBlocksCount > sb.BlocksCount {
		return ErrInvalidGeometry{Reason: "free_blocks_count exceeds blocks_count"}
	}

	groupsByBlocks := (sb.BlocksCount + sb.BlocksPerGroup - 1) / sb.BlocksPerGroup
	groupsByInodes := (sb.InodesCount + sb.InodesPerGroup - 1) / sb.InodesPerGroup
	if groupsByBlocks != groupsByInodes {
		return ErrInvalidGeometry{
			Reason: fmt.Sprintf(
				"group count from blocks_count (%d) disagrees with group count from inodes_count (%d)",
				groupsByBlocks,
				groupsByInodes,
			),
		}
	}

	inodesCount := sb.InodesPerGroup * groupsByBlocks
	if sb.FreeInodesCount > inodesCount {
		return ErrInvalidGeometry{Reason: "free_inodes_count exceeds inodes_count"}
	}

	if sb.RevLevel != RevLevelStatic {
		if sb.InodeSize < DefaultInodeSize || (sb.InodeSize&(sb.InodeSize-1)) != 0 {
			return ErrInvalidInodeSize{Found: sb.InodeSize}
		}
	}

	return nil
}

func EncodeUint16(x uint16, b []byte) {
	binary.LittleEndian.PutUint16(b, x)
}

func EncodeUint32(x uint32, b []byte) {
	binary.LittleEndian.PutUint32(b, x)
}
