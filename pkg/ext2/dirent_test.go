package ext2

import "testing"

func TestDirEntEncodeDecodeRoundTrip(t *testing.T) {
	ent := DirEnt{Ino: 42, RecLen: MinRecLen("hello"), FileType: FileTypeRegular, Name: "hello"}
	buf := make([]byte, ent.RecLen)
	if err := ent.Encode(buf); err != nil {
		t.Fatalf("encoding: %v", err)
	}

	got, err := DecodeDirEnt(buf)
	if err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got != ent {
		t.Fatalf("round trip mismatch: wanted %+v; got %+v", ent, got)
	}
}

func TestAlign4(t *testing.T) {
	cases := map[int]int{0: 0, 1: 4, 3: 4, 4: 4, 5: 8, 8: 8, 9: 12}
	for in, want := range cases {
		if got := Align4(in); got != want {
			t.Errorf("Align4(%d): wanted %d; got %d", in, want, got)
		}
	}
}

func TestMinRecLen(t *testing.T) {
	if got := MinRecLen(""); got != DirEntSize {
		t.Errorf("MinRecLen(\"\"): wanted %d; got %d", DirEntSize, got)
	}
	if got := MinRecLen("abcde"); got != 16 {
		// 8-byte header + 5-byte name = 13, aligned up to 16
		t.Errorf("MinRecLen(\"abcde\"): wanted 16; got %d", got)
	}
}

func TestIterateDirBlockVisitsEveryEntry(t *testing.T) {
	blockSize := 64
	buf := make([]byte, blockSize)

	a := DirEnt{Ino: 1, RecLen: MinRecLen("a"), FileType: FileTypeRegular, Name: "a"}
	if err := a.Encode(buf); err != nil {
		t.Fatalf("encoding a: %v", err)
	}
	bOffset := int(a.RecLen)
	b := DirEnt{Ino: 2, RecLen: uint16(blockSize) - a.RecLen, FileType: FileTypeDir, Name: "b"}
	if err := b.Encode(buf[bOffset:]); err != nil {
		t.Fatalf("encoding b: %v", err)
	}

	var names []string
	err := IterateDirBlock(buf, func(_ int, ent DirEnt) (bool, error) {
		names = append(names, ent.Name)
		return false, nil
	})
	if err != nil {
		t.Fatalf("iterating: %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("wanted [a b]; got %v", names)
	}
}

func TestIterateDirBlockStopsEarly(t *testing.T) {
	blockSize := 64
	buf := make([]byte, blockSize)
	a := DirEnt{Ino: 1, RecLen: MinRecLen("a"), FileType: FileTypeRegular, Name: "a"}
	if err := a.Encode(buf); err != nil {
		t.Fatalf("encoding a: %v", err)
	}
	rest := DirEnt{Ino: 0, RecLen: uint16(blockSize) - a.RecLen, FileType: FileTypeUnknown}
	if err := rest.Encode(buf[a.RecLen:]); err != nil {
		t.Fatalf("encoding rest: %v", err)
	}

	visits := 0
	err := IterateDirBlock(buf, func(_ int, _ DirEnt) (bool, error) {
		visits++
		return true, nil
	})
	if err != nil {
		t.Fatalf("iterating: %v", err)
	}
	if visits != 1 {
		t.Fatalf("wanted 1 visit; got %d", visits)
	}
}

func TestIterateDirBlockDetectsZeroRecLenCorruption(t *testing.T) {
	buf := make([]byte, 32)
	// Every field, including rec_len, is zero: a corrupt block.
	err := IterateDirBlock(buf, func(_ int, _ DirEnt) (bool, error) {
		return false, nil
	})
	if err == nil {
		t.Fatalf("expected a corruption error for a zero rec_len entry")
	}
}
