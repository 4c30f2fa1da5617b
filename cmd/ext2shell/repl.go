package main

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/weberc2/ext2shell/pkg/ext2"
)

// Shell is a thin bufio.Scanner REPL over a mounted FileSystem. Every
// command below calls into pkg/ext2; the only one that does more than
// that is ls, which walks the directory's blocks itself through
// GetInodeBlock, ReadBlock, and IterateDirBlock.
type Shell struct {
	fs      *ext2.FileSystem
	in      *bufio.Scanner
	out     io.Writer
	cwd     ext2.Ino
	cwdPath string
}

func NewShell(fs *ext2.FileSystem, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		fs:      fs,
		in:      bufio.NewScanner(in),
		out:     out,
		cwd:     ext2.RootIno,
		cwdPath: "/",
	}
}

func (s *Shell) Run() error {
	fmt.Fprintf(s.out, "%s> ", s.cwdPath)
	for s.in.Scan() {
		line := strings.TrimSpace(s.in.Text())
		if line != "" {
			if err := s.dispatch(line); err != nil {
				if err == errQuit {
					return nil
				}
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
		}
		fmt.Fprintf(s.out, "%s> ", s.cwdPath)
	}
	return s.in.Err()
}

var errQuit = fmt.Errorf("quit")

func (s *Shell) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "ls":
		return s.cmdLs(args)
	case "cd":
		return s.cmdCd(args)
	case "pwd":
		fmt.Fprintln(s.out, s.cwdPath)
		return nil
	case "cat":
		return s.cmdCat(args)
	case "attr", "stat":
		return s.cmdAttr(args)
	case "info":
		return s.cmdInfo()
	case "touch":
		return s.cmdTouch(args)
	case "rm":
		return s.cmdRm(args)
	case "mkdir":
		return s.cmdMkdir(args)
	case "rmdir":
		return s.cmdRmdir(args)
	case "rename", "mv":
		return s.cmdRename(args)
	case "help":
		return s.cmdHelp()
	case "exit", "quit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q; try `help`", cmd)
	}
}

func (s *Shell) cmdHelp() error {
	fmt.Fprintln(s.out, "commands: ls cd pwd cat attr info touch rm mkdir "+
		"rmdir rename help exit")
	return nil
}

func (s *Shell) cmdLs(args []string) error {
	target := s.cwd
	if len(args) > 0 {
		ino, err := s.fs.ResolvePath(s.cwd, args[0])
		if err != nil {
			return err
		}
		target = ino
	}

	dir, err := s.fs.GetInode(target)
	if err != nil {
		return err
	}
	if dir.Mode.FileType != ext2.FileTypeDir {
		name := "."
		if len(args) > 0 {
			name = args[0]
		}
		fmt.Fprintln(s.out, name)
		return nil
	}

	blockSize := s.fs.BlockSize()
	buf := make([]byte, blockSize)
	numBlocks := (dir.Size + blockSize - 1) / blockSize
	for logical := uint64(0); logical < numBlocks; logical++ {
		block, present, err := s.fs.GetInodeBlock(&dir, logical)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		if err := s.fs.ReadBlock(block, buf); err != nil {
			return err
		}
		if err := ext2.IterateDirBlock(buf, func(_ int, ent ext2.DirEnt) (bool, error) {
			if ent.Ino != 0 {
				fmt.Fprintf(s.out, "%-20s %s\n", ent.Name, ent.FileType)
			}
			return false, nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shell) cmdCd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cd PATH")
	}
	ino, err := s.fs.ResolvePath(s.cwd, args[0])
	if err != nil {
		return err
	}
	inode, err := s.fs.GetInode(ino)
	if err != nil {
		return err
	}
	if inode.Mode.FileType != ext2.FileTypeDir {
		return fmt.Errorf("cd: %s: not a directory", args[0])
	}
	s.cwd = ino
	s.cwdPath = joinPath(s.cwdPath, args[0])
	return nil
}

func joinPath(cwd, arg string) string {
	if strings.HasPrefix(arg, "/") {
		return path.Clean(arg)
	}
	return path.Clean(path.Join(cwd, arg))
}

func (s *Shell) cmdCat(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cat PATH")
	}
	ino, err := s.fs.ResolvePath(s.cwd, args[0])
	if err != nil {
		return err
	}
	data, err := s.fs.ReadFileContent(ino)
	if err != nil {
		return err
	}
	_, err = s.out.Write(data)
	return err
}

func (s *Shell) cmdAttr(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: attr PATH")
	}
	ino, err := s.fs.ResolvePath(s.cwd, args[0])
	if err != nil {
		return err
	}
	attr, err := s.fs.AttrOf(ino)
	if err != nil {
		return err
	}
	fmt.Fprintf(
		s.out,
		"ino=%#x type=%s mode=%#o links=%d size=%d uid=%d gid=%d\n",
		attr.Ino,
		attr.FileType,
		attr.AccessMode,
		attr.LinksCount,
		attr.Size,
		attr.UID,
		attr.GID,
	)
	return nil
}

func (s *Shell) cmdInfo() error {
	info := s.fs.Info()
	fmt.Fprintf(
		s.out,
		"label=%q block_size=%d blocks=%d/%d inodes=%d/%d groups=%d rev=%d\n",
		info.VolumeName,
		info.BlockSize,
		info.BlocksCount-info.FreeBlocksCount,
		info.BlocksCount,
		info.InodesCount-info.FreeInodesCount,
		info.InodesCount,
		info.GroupCount,
		info.RevLevel,
	)
	return nil
}

func (s *Shell) cmdTouch(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: touch PATH")
	}
	_, err := s.fs.CreateFile(s.cwd, args[0], uint32(time.Now().Unix()))
	return err
}

func (s *Shell) cmdRm(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: rm PATH")
	}
	return s.fs.DeleteFile(s.cwd, args[0], uint32(time.Now().Unix()))
}

func (s *Shell) cmdMkdir(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mkdir PATH")
	}
	_, err := s.fs.MakeDirectory(s.cwd, args[0], uint32(time.Now().Unix()))
	return err
}

func (s *Shell) cmdRmdir(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: rmdir PATH")
	}
	return s.fs.RemoveDirectory(s.cwd, args[0], uint32(time.Now().Unix()))
}

func (s *Shell) cmdRename(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: rename OLDNAME NEWNAME (same directory, " +
			"unquoted, no spaces)")
	}
	return s.fs.RenameInCwd(s.cwd, args[0], args[1])
}
