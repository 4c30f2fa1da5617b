package ext2

import "fmt"

// DirEntSize is the size of a directory entry's fixed header, before the
// variable-length name.
const DirEntSize = 8

// MaxNameLen is the longest name a single directory entry can carry.
const MaxNameLen = 255

// DirEnt is one ext2 directory entry: a fixed 8-byte header followed by
// name_len bytes of name, padded so the record occupies a 4-byte
// multiple. rec_len is the full padded record size, not the name length.
type DirEnt struct {
	Ino      Ino
	RecLen   uint16
	FileType FileType
	Name     string
}

// Align4 rounds n up to the next multiple of 4.
func Align4(n int) int {
	return (n + 3) &^ 3
}

// MinRecLen is the smallest record that can hold name.
func MinRecLen(name string) uint16 {
	return uint16(Align4(DirEntSize + len(name)))
}

// DecodeDirEnt reads one directory entry starting at b[0]. It does not
// validate that the entry fits within b; callers slice b to the known
// rec_len (or the remainder of the block) before calling.
func DecodeDirEnt(b []byte) (DirEnt, error) {
	if len(b) < DirEntSize {
		return DirEnt{}, fmt.Errorf(
			"decoding directory entry: %w",
			ErrCorruptDirectory{Reason: "buffer shorter than entry header"},
		)
	}

	ino := Ino(DecodeUint32(b[0], b[1], b[2], b[3]))
	recLen := DecodeUint16(b[4], b[5])
	nameLen := int(b[6])
	fileType := decodeDirEntFileType(b[7])

	if DirEntSize+nameLen > len(b) {
		return DirEnt{}, fmt.Errorf(
			"decoding directory entry: %w",
			ErrCorruptDirectory{Reason: "name extends past buffer"},
		)
	}

	return DirEnt{
		Ino:      ino,
		RecLen:   recLen,
		FileType: fileType,
		Name:     string(b[DirEntSize : DirEntSize+nameLen]),
	}, nil
}

// Encode writes the entry's header and name into b[0:MinRecLen(ent.Name)],
// zeroing the slack between the name and ent.RecLen. b must be at least
// ent.RecLen bytes.
func (ent *DirEnt) Encode(b []byte) error {
	if len(ent.Name) > MaxNameLen {
		return ErrNameTooLong
	}
	needed := MinRecLen(ent.Name)
	if ent.RecLen < needed {
		return fmt.Errorf(
			"encoding directory entry %q: %w",
			ent.Name,
			ErrCorruptDirectory{Reason: "rec_len too small for name"},
		)
	}
	if uint16(len(b)) < ent.RecLen {
		return fmt.Errorf(
			"encoding directory entry %q: %w",
			ent.Name,
			ErrShortIO{Wanted: int(ent.RecLen), Got: len(b)},
		)
	}

	EncodeUint32(uint32(ent.Ino), b[0:])
	EncodeUint16(ent.RecLen, b[4:])
	b[6] = byte(len(ent.Name))
	b[7] = ent.FileType.encodeDirEntType()
	copy(b[DirEntSize:], ent.Name)
	for i := DirEntSize + len(ent.Name); i < int(ent.RecLen); i++ {
		b[i] = 0
	}
	return nil
}

// decodeDirEntFileType maps the ext2 EXT2_FT_* directory-entry classification,
// which is a different encoding than the inode mode nibble FileType.Encode
// produces.
func decodeDirEntFileType(b byte) FileType {
	switch b {
	case 1:
		return FileTypeRegular
	case 2:
		return FileTypeDir
	case 3:
		return FileTypeCharDev
	case 4:
		return FileTypeBlockDev
	case 5:
		return FileTypeFifo
	case 6:
		return FileTypeSocket
	case 7:
		return FileTypeSymlink
	default:
		return FileTypeUnknown
	}
}

func (fileType FileType) encodeDirEntType() byte {
	switch fileType {
	case FileTypeRegular:
		return 1
	case FileTypeDir:
		return 2
	case FileTypeCharDev:
		return 3
	case FileTypeBlockDev:
		return 4
	case FileTypeFifo:
		return 5
	case FileTypeSocket:
		return 6
	case FileTypeSymlink:
		return 7
	default:
		return 0
	}
}

// IterateDirBlock walks the entry stream of a single directory block,
// calling visit with each entry's byte offset within b and its decoded
// form. visit returns stop=true to end the walk early. A zero rec_len
// before the block is exhausted is treated as corruption, since it would
// spin forever otherwise.
func IterateDirBlock(
	b []byte,
	visit func(offset int, ent DirEnt) (stop bool, err error),
) error {
	offset := 0
	for offset < len(b) {
		ent, err := DecodeDirEnt(b[offset:])
		if err != nil {
			return err
		}
		if ent.RecLen == 0 {
			return ErrCorruptDirectory{Reason: "zero rec_len"}
		}
		if offset+int(ent.RecLen) > len(b) {
			return ErrCorruptDirectory{Reason: "rec_len extends past block"}
		}

		stop, err := visit(offset, ent)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		offset += int(ent.RecLen)
	}
	return nil
}
