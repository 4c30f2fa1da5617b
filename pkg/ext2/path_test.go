package ext2

import "testing"

func TestSplitPath(t *testing.T) {
	cases := []struct {
		path     string
		wantDir  string
		wantName string
	}{
		{"a/b/c", "a/b", "c"},
		{"c", ".", "c"},
		{"/c", "/", "c"},
		{"/a/b", "/a", "b"},
		{"a/b/", "a", "b"},
		{"", "/", ""},
	}
	for _, c := range cases {
		dir, name := SplitPath(c.path)
		if dir != c.wantDir || name != c.wantName {
			t.Errorf(
				"SplitPath(%q): wanted (%q, %q); got (%q, %q)",
				c.path, c.wantDir, c.wantName, dir, name,
			)
		}
	}
}

func TestResolvePathWalksNestedDirectories(t *testing.T) {
	fs := newTestFS(t)

	sub, err := fs.MakeDirectory(RootIno, "sub", 100)
	if err != nil {
		t.Fatalf("making subdirectory: %v", err)
	}
	leaf, err := fs.MakeDirectory(sub, "leaf", 100)
	if err != nil {
		t.Fatalf("making leaf directory: %v", err)
	}

	got, err := fs.ResolvePath(RootIno, "/sub/leaf")
	if err != nil {
		t.Fatalf("resolving absolute path: %v", err)
	}
	if got != leaf {
		t.Fatalf("wanted ino %#x; got %#x", leaf, got)
	}

	got, err = fs.ResolvePath(sub, "leaf")
	if err != nil {
		t.Fatalf("resolving relative path: %v", err)
	}
	if got != leaf {
		t.Fatalf("wanted ino %#x; got %#x", leaf, got)
	}

	got, err = fs.ResolvePath(leaf, "..")
	if err != nil {
		t.Fatalf("resolving parent via '..': %v", err)
	}
	if got != sub {
		t.Fatalf("wanted ino %#x; got %#x", sub, got)
	}
}

func TestResolvePathNotFound(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.ResolvePath(RootIno, "nope"); err == nil {
		t.Fatalf("expected an error resolving a nonexistent path")
	}
}
