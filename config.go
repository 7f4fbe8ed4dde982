// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package acquisition

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Config holds the writer options that control how a file is laid out.
type Config struct {
	Version          string    `yaml:"version"`           // Schema version to write
	DataType         string    `yaml:"data_type"`         // Type samples are decoded as
	StorageType      string    `yaml:"storage_type"`      // Type samples are stored as
	Compression      string    `yaml:"compression"`       // none, gzip, zstd, lz4, snappy or lzf
	CompressionLevel int       `yaml:"compression_level"` // gzip 0-9, zstd 1-22, ignored otherwise
	Shuffle          bool      `yaml:"shuffle"`           // Byte shuffle samples before compression
	Checksum         bool      `yaml:"checksum"`          // Checksum every chunk
	Chunks           ChunkSpec `yaml:"chunks"`            // Chunk shape of the data block
}

// DefaultConfig returns the default writer options.
func DefaultConfig() *Config {
	return &Config{
		Version:          string(Version1_1),
		DataType:         Double.String(),
		StorageType:      Single.String(),
		Compression:      "gzip",
		CompressionLevel: 9,
		Shuffle:          true,
		Checksum:         true,
		Chunks:           DefaultChunks(),
	}
}

// LoadConfig reads a YAML document over the defaults. Unknown keys are
// rejected.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	return cfg, nil
}
