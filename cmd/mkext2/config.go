package main

import "github.com/kelseyhightower/envconfig"

// Config carries the defaults mkext2's flags fall back to when the
// corresponding flag isn't passed on the command line.
type Config struct {
	BlockSize      uint32 `envconfig:"MKEXT2_BLOCK_SIZE" default:"1024"`
	InodesPerGroup uint32 `envconfig:"MKEXT2_INODES_PER_GROUP" default:"0"`
	BlocksPerGroup uint32 `envconfig:"MKEXT2_BLOCKS_PER_GROUP" default:"0"`
}

func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}
