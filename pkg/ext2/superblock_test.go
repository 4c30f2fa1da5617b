package ext2

import (
	"errors"
	"testing"
)

func TestSuperblockEncodeDecodeRoundTrip(t *testing.T) {
	want := Superblock{
		InodesCount:         128,
		BlocksCount:         256,
		ReservedBlocksCount: 12,
		FreeBlocksCount:     200,
		FreeInodesCount:     100,
		FirstDataBlock:      1,
		LogBlockSize:        0,
		LogFragSize:         0,
		BlocksPerGroup:      64,
		FragsPerGroup:       64,
		InodesPerGroup:      32,
		MountTime:           1000,
		WriteTime:           2000,
		MountCount:          3,
		MaxMountCount:       20,
		State:               StateClean,
		Errors:              1,
		MinorRevLevel:       0,
		LastCheck:           3000,
		CheckInterval:       4000,
		CreatorOS:           0,
		RevLevel:            RevLevelDynamic,
		DefResUID:           0,
		DefResGID:           0,
		FirstIno:            DefaultFirstIno,
		InodeSize:           DefaultInodeSize,
		BlockGroupNr:        5,
		FeatureIncompat:     0,
		FeatureROCompat:     0,
	}
	copy(want.VolumeName[:], "my-volume")
	copy(want.UUID[:], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	copy(want.LastMounted[:], "/mnt/image")

	var buf [SuperblockSize]byte
	want.Encode(&buf)

	got, err := DecodeSuperblock(&buf, false)
	if err != nil {
		t.Fatalf("decoding superblock: %v", err)
	}

	if got.InodesCount != want.InodesCount ||
		got.BlocksCount != want.BlocksCount ||
		got.ReservedBlocksCount != want.ReservedBlocksCount ||
		got.FreeBlocksCount != want.FreeBlocksCount ||
		got.FreeInodesCount != want.FreeInodesCount ||
		got.FirstDataBlock != want.FirstDataBlock ||
		got.LogBlockSize != want.LogBlockSize ||
		got.LogFragSize != want.LogFragSize ||
		got.BlocksPerGroup != want.BlocksPerGroup ||
		got.FragsPerGroup != want.FragsPerGroup ||
		got.InodesPerGroup != want.InodesPerGroup ||
		got.MountTime != want.MountTime ||
		got.WriteTime != want.WriteTime ||
		got.MountCount != want.MountCount ||
		got.MaxMountCount != want.MaxMountCount ||
		got.State != want.State ||
		got.Errors != want.Errors ||
		got.MinorRevLevel != want.MinorRevLevel ||
		got.LastCheck != want.LastCheck ||
		got.CheckInterval != want.CheckInterval ||
		got.CreatorOS != want.CreatorOS ||
		got.RevLevel != want.RevLevel ||
		got.DefResUID != want.DefResUID ||
		got.DefResGID != want.DefResGID ||
		got.FirstIno != want.FirstIno ||
		got.InodeSize != want.InodeSize ||
		got.BlockGroupNr != want.BlockGroupNr ||
		got.UUID != want.UUID ||
		got.VolumeName != want.VolumeName ||
		got.LastMounted != want.LastMounted {
		t.Fatalf("round trip mismatch: wanted %+v; got %+v", want, got)
	}
}

func TestSuperblockDecodeBadMagic(t *testing.T) {
	var buf [SuperblockSize]byte
	if _, err := DecodeSuperblock(&buf, false); err == nil {
		t.Fatalf("expected an error decoding an all-zero buffer")
	} else if !errors.As(err, new(ErrBadMagic)) {
		t.Fatalf("wanted ErrBadMagic; got %v", err)
	}
}

func TestSuperblockValidateRejectsBadBlockSize(t *testing.T) {
	sb := Superblock{LogBlockSize: 0, BlocksPerGroup: 1, InodesPerGroup: 1}
	sb.LogBlockSize = 20 // 1024 << 20 is way out of range
	if err := sb.Validate(); err == nil {
		t.Fatalf("expected an error for an out-of-range block size")
	}
}

func TestSuperblockValidateRejectsZeroDivisors(t *testing.T) {
	sb := Superblock{BlocksPerGroup: 0, InodesPerGroup: 1}
	if err := sb.Validate(); err == nil {
		t.Fatalf("expected an error for a zero blocks_per_group")
	}
}

func TestSuperblockValidateRejectsBadInodeSize(t *testing.T) {
	sb := Superblock{
		BlocksPerGroup: 64,
		InodesPerGroup: 32,
		RevLevel:       RevLevelDynamic,
		InodeSize:      100, // not a power of two, and below the 128 floor
	}
	if err := sb.Validate(); err == nil {
		t.Fatalf("expected an error for an invalid dynamic-revision inode size")
	} else if !errors.As(err, new(ErrInvalidInodeSize)) {
		t.Fatalf("wanted ErrInvalidInodeSize; got %v", err)
	}
}

func TestSuperblockValidateAcceptsGoodGeometry(t *testing.T) {
	sb := Superblock{
		BlocksCount:     256,
		FreeBlocksCount: 200,
		InodesCount:     128,
		BlocksPerGroup:  64,
		InodesPerGroup:  32,
		RevLevel:        RevLevelDynamic,
		InodeSize:       128,
	}
	if err := sb.Validate(); err != nil {
		t.Fatalf("unexpected error for valid geometry: %v", err)
	}
}

func TestSuperblockValidateRejectsGroupCountMismatch(t *testing.T) {
	sb := Superblock{
		BlocksCount:    256,
		InodesCount:    64,
		BlocksPerGroup: 64,
		InodesPerGroup: 32,
		RevLevel:       RevLevelDynamic,
		InodeSize:      128,
	}
	if err := sb.Validate(); err == nil {
		t.Fatalf("expected an error when block- and inode-derived group counts disagree")
	} else if !errors.As(err, new(ErrInvalidGeometry)) {
		t.Fatalf("wanted ErrInvalidGeometry; got %v", err)
	}
}
