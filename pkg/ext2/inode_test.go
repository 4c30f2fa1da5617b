package ext2

import "testing"

func TestInodeEncodeDecodeRoundTrip(t *testing.T) {
	want := Inode{
		Ino: 12,
		Mode: Mode{
			FileType:     FileTypeRegular,
			SUID:         true,
			AccessRights: 0644,
		},
		Attr: FileAttr{
			UID:   1000,
			GID:   2000,
			ATime: 111,
			CTime: 222,
			MTime: 333,
			DTime: 0,
		},
		Size:       4096,
		Size512:    8,
		LinksCount: 1,
		Flags:      0,
		FileACL:    77,
		OSD1:       9,
		Generation: 5,
	}
	for i := range want.Block {
		want.Block[i] = uint32(100 + i)
	}

	var buf [InodeBufferSize]byte
	if err := want.Encode(RevLevelDynamic, &buf); err != nil {
		t.Fatalf("encoding inode: %v", err)
	}

	got, err := DecodeInode(want.Ino, RevLevelDynamic, &buf)
	if err != nil {
		t.Fatalf("decoding inode: %v", err)
	}

	if got.Ino != want.Ino ||
		got.Mode != want.Mode ||
		got.Attr != want.Attr ||
		got.Size != want.Size ||
		got.Size512 != want.Size512 ||
		got.LinksCount != want.LinksCount ||
		got.Flags != want.Flags ||
		got.Block != want.Block ||
		got.FileACL != want.FileACL ||
		got.OSD1 != want.OSD1 ||
		got.Generation != want.Generation {
		t.Fatalf("round trip mismatch: wanted %+v; got %+v", want, got)
	}
}

func TestInodeEncodeRejectsOversizedFileForStaticRevLevel(t *testing.T) {
	inode := Inode{Ino: 5, Size: 1 << 33}
	var buf [InodeBufferSize]byte
	if err := inode.Encode(RevLevelStatic, &buf); err == nil {
		t.Fatalf("expected an error encoding a >32-bit file size at static rev level")
	}
}

func TestDecodeInodeModeRejectsUnknownFileType(t *testing.T) {
	if _, err := DecodeInodeMode(0x0000); err == nil {
		t.Fatalf("expected an error for an unknown file type nibble")
	}
}

func TestModeEncodeDecodeRoundTrip(t *testing.T) {
	want := Mode{
		FileType:     FileTypeDir,
		SUID:         true,
		SGID:         true,
		Sticky:       true,
		AccessRights: 0755,
	}
	got, err := DecodeInodeMode(want.Encode())
	if err != nil {
		t.Fatalf("decoding mode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: wanted %+v; got %+v", want, got)
	}
}
