package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/urfave/cli/v2"

	"github.com/weberc2/ext2shell/pkg/ext2"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	app := cli.App{
		Name:        "mkext2",
		Description: "format a file as an ext2 volume",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "block-size",
				Usage: "block size in bytes",
				Value: uint(cfg.BlockSize),
			},
			&cli.UintFlag{
				Name:  "blocks-per-group",
				Usage: "blocks per group; 0 picks a block-size-derived default",
				Value: uint(cfg.BlocksPerGroup),
			},
			&cli.UintFlag{
				Name:  "inodes-per-group",
				Usage: "inodes per group; 0 picks a block-size-derived default",
				Value: uint(cfg.InodesPerGroup),
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "volume label",
			},
		},
		ArgsUsage: "IMAGE BLOCKS",
		Action:    format,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mkext2: %v", err)
	}
}

func format(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("usage: mkext2 [options] IMAGE BLOCKS")
	}
	imagePath := ctx.Args().Get(0)
	blocksCount, err := strconv.ParseUint(ctx.Args().Get(1), 10, 32)
	if err != nil {
		return fmt.Errorf("parsing BLOCKS: %w", err)
	}

	file, err := os.OpenFile(imagePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("opening image `%s`: %w", imagePath, err)
	}
	defer file.Close()
	if err := file.Truncate(int64(blocksCount) * int64(ctx.Uint("block-size"))); err != nil {
		return fmt.Errorf("sizing image `%s`: %w", imagePath, err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("generating volume uuid: %w", err)
	}

	fs, err := ext2.Format(ext2.FormatConfig{
		BlocksCount:    uint32(blocksCount),
		BlockSize:      uint32(ctx.Uint("block-size")),
		BlocksPerGroup: uint32(ctx.Uint("blocks-per-group")),
		InodesPerGroup: uint32(ctx.Uint("inodes-per-group")),
		VolumeName:     slug.Make(ctx.String("label")),
		VolumeUUID:     [16]byte(id),
	}, ext2.NewFileVolume(file))
	if err != nil {
		return fmt.Errorf("formatting `%s`: %w", imagePath, err)
	}

	if err := fs.Flush(); err != nil {
		return fmt.Errorf("flushing `%s`: %w", imagePath, err)
	}

	fmt.Printf("formatted %s (%d blocks, uuid %s)\n", imagePath, blocksCount, id)
	return nil
}
