package ext2

type GroupDesc struct {
	BlockBitmap     uint32
	InodeBitmap     uint32
	InodeTable      uint32
	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16

	// Reserved holds the trailing 14 bytes of a static-format group
	// descriptor (padding plus three reserved u32 words in the on-disk
	// layout). Nothing here assigns them meaning, but they round through
	// Decode/Encode unchanged rather than getting zeroed on every flush.
	Reserved [14]byte
}

func DecodeGroupDesc(b *[GroupDescSize]byte) GroupDesc {
	desc := GroupDesc{
		BlockBitmap:     DecodeUint32(b[0], b[1], b[2], b[3]),
		InodeBitmap:     DecodeUint32(b[4], b[5], b[6], b[7]),
		InodeTable:      DecodeUint32(b[8], b[9], b[10], b[11]),
		FreeBlocksCount: DecodeUint16(b[12], b[13]),
		FreeInodesCount: DecodeUint16(b[14], b[15]),
		UsedDirsCount:   DecodeUint16(b[16], b[17]),
	}
	copy(desc.Reserved[:], b[18:32])
	return desc
}

func (desc *GroupDesc) Encode(b *[GroupDescSize]byte) {
	EncodeUint32(desc.BlockBitmap, b[0:])
	EncodeUint32(desc.InodeBitmap, b[4:])
	EncodeUint32(desc.InodeTable, b[8:])
	EncodeUint16(desc.FreeBlocksCount, b[12:])
	EncodeUint16(desc.FreeInodesCount, b[14:])
	EncodeUint16(desc.UsedDirsCount, b[16:])
	copy(b[18:32], desc.Reserved[:])
}

// GroupDescSize is the size of a group descriptor table entry in bytes,
// fixed by the on-disk format regardless of how many of its fields this
// driver interprets.
const GroupDescSize = 32
