package ext2

import "fmt"

// ErrOutOfRange is returned by the block device when a block number falls
// outside of [0, blocksCount).
type ErrOutOfRange struct {
	Block       uint64
	BlocksCount uint64
}

func (err ErrOutOfRange) Error() string {
	return fmt.Sprintf(
		"block `%#x` is out of range; volume has `%#x` blocks",
		err.Block,
		err.BlocksCount,
	)
}

// ErrShortIO is returned when a read or write transfers fewer bytes than
// requested.
type ErrShortIO struct {
	Wanted, Got int
}

func (err ErrShortIO) Error() string {
	return fmt.Sprintf(
		"short i/o: wanted `%d` bytes; transferred `%d`",
		err.Wanted,
		err.Got,
	)
}

// ErrWriteBlockZero guards against clobbering the boot sector.
var ErrWriteBlockZero = fmt.Errorf("refusing to write block 0")

// ErrInvalidGeometry covers superblock counters and group math that don't
// add up: blocks_per_group/inodes_per_group of zero, block size out of
// range, or a group count computed from blocks that disagrees with the
// group count computed from inodes.
type ErrInvalidGeometry struct {
	Reason string
}

func (err ErrInvalidGeometry) Error() string {
	return fmt.Sprintf("invalid filesystem geometry: %s", err.Reason)
}

// ErrInvalidInodeSize covers a dynamic-revision inode size that isn't a
// power of two or is smaller than the legacy 128-byte record.
type ErrInvalidInodeSize struct {
	Found uint16
}

func (err ErrInvalidInodeSize) Error() string {
	return fmt.Sprintf(
		"invalid inode size `%d` for dynamic revision",
		err.Found,
	)
}

// ErrNotFound is returned by path resolution and directory search when no
// entry matches.
var ErrNotFound = fmt.Errorf("no such file or directory")

// ErrAlreadyExists is returned when a create/rename target name already
// has an entry in the parent directory.
var ErrAlreadyExists = fmt.Errorf("file exists")

// ErrNotDirectory is returned when an operation that requires a directory
// is given a non-directory inode.
var ErrNotDirectory = fmt.Errorf("not a directory")

// ErrIsDirectory is returned when an operation that refuses directories
// (rm, or touch on a name that is an existing directory) is given one.
var ErrIsDirectory = fmt.Errorf("is a directory")

// ErrNotRegular names the not-a-regular-file condition. No operation in
// this package returns it: OpenFile (and so ReadFileContent, behind cat)
// reports a non-regular file with ErrInvalidFileType.
var ErrNotRegular = fmt.Errorf("not a regular file")

// ErrDirectoryNotEmpty is returned by RemoveDirectory when the target
// holds entries other than "." and "..".
var ErrDirectoryNotEmpty = fmt.Errorf("directory not empty")

// ErrRefusedTarget is returned when an operation targets "/", ".", or
// "..", which can never be created, removed, or renamed.
var ErrRefusedTarget = fmt.Errorf("operation refused on this path")

// ErrNameTooLong is returned when a directory-entry name exceeds 255
// bytes.
var ErrNameTooLong = fmt.Errorf("name too long")

// ErrInvalidName is returned when a name contains a path separator or is
// otherwise unsuitable for a single directory-entry component.
var ErrInvalidName = fmt.Errorf("invalid name")

// ErrCorruptDirectory is returned when a directory block's entry stream
// can't be parsed consistently (e.g. a zero rec_len before the block
// ends).
type ErrCorruptDirectory struct {
	Reason string
}

func (err ErrCorruptDirectory) Error() string {
	return fmt.Sprintf("corrupt directory block: %s", err.Reason)
}

// ErrNoSpace is returned by AddEntry when a directory has exhausted every
// indirection level it is permitted to grow into.
var ErrNoSpace = fmt.Errorf("no space left in directory")

// NoFreeInodesErr mirrors NoFreeBlocksErr for inode exhaustion.
var NoFreeInodesErr = fmt.Errorf("no free inodes remain for files")
