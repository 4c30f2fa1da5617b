package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/weberc2/ext2shell/pkg/ext2"
)

func main() {
	app := cli.App{
		Name:        "ext2shell",
		Description: "an interactive shell for browsing an ext2 image",
		ArgsUsage:   "IMAGE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "readonly",
				Usage: "open the image read-only",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("ext2shell: %v", err)
	}
}

func run(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: ext2shell [options] IMAGE")
	}
	imagePath := ctx.Args().Get(0)

	flags := os.O_RDWR
	if ctx.Bool("readonly") {
		flags = os.O_RDONLY
	}
	file, err := os.OpenFile(imagePath, flags, 0)
	if err != nil {
		return fmt.Errorf("opening image `%s`: %w", imagePath, err)
	}
	defer file.Close()

	var fs ext2.FileSystem
	if err := fs.Mount(ext2.NewFileVolume(file)); err != nil {
		return fmt.Errorf("mounting `%s`: %w", imagePath, err)
	}

	shell := NewShell(&fs, os.Stdin, os.Stdout)
	if err := shell.Run(); err != nil {
		return fmt.Errorf("running shell: %w", err)
	}

	if ctx.Bool("readonly") {
		return nil
	}
	if err := fs.Flush(); err != nil {
		return fmt.Errorf("flushing `%s`: %w", imagePath, err)
	}
	return nil
}
