package ext2

import (
	"fmt"
	"strings"
)

// ResolvePath walks path component by component starting from cwd,
// returning the inode number of the final component. An absolute path
// (leading "/") starts from RootIno instead of cwd. "." and ".." are
// ordinary entries every directory carries, so they fall out of the
// normal SearchDir walk without special-casing here.
func (fs *FileSystem) ResolvePath(cwd Ino, path string) (Ino, error) {
	current := cwd
	if strings.HasPrefix(path, "/") {
		current = RootIno
	}

	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}

		inode, err := fs.GetInode(current)
		if err != nil {
			return 0, fmt.Errorf("resolving path %q: %w", path, err)
		}
		if inode.Mode.FileType != FileTypeDir {
			return 0, fmt.Errorf("resolving path %q: %w", path, ErrNotDirectory)
		}

		next, _, err := fs.SearchDir(&inode, part)
		if err != nil {
			return 0, fmt.Errorf("resolving path %q: %w", path, err)
		}
		current = next
	}

	return current, nil
}

// SplitPath divides path into its parent directory path and final
// component name, the way POSIX dirname/basename do. "a/b/c" splits into
// ("a/b", "c"); "c" splits into (".", "c").
func SplitPath(path string) (dir, name string) {
	path = strings.TrimRight(path, "/")
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		if path == "" {
			return "/", ""
		}
		return ".", path
	}
	if idx == 0 {
		return "/", path[1:]
	}
	return path[:idx], path[idx+1:]
}
