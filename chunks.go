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
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultChunkRows is the chunk height used when none is given.
const DefaultChunkRows = 1024

// Unspecified marks a chunk dimension left to its default: DefaultChunkRows
// for rows, the channel count for columns.
const Unspecified = -1

type chunkMode uint8

const (
	chunkDefault chunkMode = iota
	chunkAuto
	chunkExplicit
)

// ChunkSpec selects the chunk shape of the data block. The zero value is
// the default shape.
type ChunkSpec struct {
	mode       chunkMode
	rows, cols int
}

// DefaultChunks selects DefaultChunkRows rows by every channel.
func DefaultChunks() ChunkSpec {
	return ChunkSpec{}
}

// AutoChunks leaves the chunk shape to the container store.
func AutoChunks() ChunkSpec {
	return ChunkSpec{mode: chunkAuto}
}

// ChunkShape selects an explicit chunk shape. Each dimension must be
// positive or Unspecified.
func ChunkShape(rows, cols int) ChunkSpec {
	return ChunkSpec{mode: chunkExplicit, rows: rows, cols: cols}
}

// Normalize resolves the chunk shape for a block of numberChannels columns. It
// returns (0, 0) for automatic chunking.
func (c ChunkSpec) Normalize(numberChannels int64) (rows, cols int, err error) {
	switch c.mode {
	case chunkDefault:
		return DefaultChunkRows, int(numberChannels), nil
	case chunkAuto:
		return 0, 0, nil
	}

	rows, cols = c.rows, c.cols
	if rows == Unspecified {
		rows = DefaultChunkRows
	}
	if cols == Unspecified {
		cols = int(numberChannels)
	}
	if rows < 1 || cols < 1 {
		return 0, 0, fmt.Errorf("%w: (%s, %s)", ErrInvalidChunkSpec, dim(c.rows), dim(c.cols))
	}
	if int64(cols) > numberChannels {
		return 0, 0, fmt.Errorf("%w: %d chunk columns for %d channels", ErrInvalidChunkSpec, cols, numberChannels)
	}

	return rows, cols, nil
}

func (c ChunkSpec) String() string {
	switch c.mode {
	case chunkAuto:
		return "auto"
	case chunkExplicit:
		return fmt.Sprintf("(%s, %s)", dim(c.rows), dim(c.cols))
	default:
		return "default"
	}
}

func dim(v int) string {
	if v == Unspecified {
		return "unspecified"
	}
	return strconv.Itoa(v)
}

// UnmarshalYAML accepts "default", "auto", or a two element sequence of
// positive integers where null leaves a dimension unspecified.
func (c *ChunkSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Value {
		case "default", "":
			*c = DefaultChunks()
			return nil
		case "auto":
			*c = AutoChunks()
			return nil
		}

	case yaml.SequenceNode:
		if len(node.Content) != 2 {
			break
		}

		var d [2]int
		for i, n := range node.Content {
			switch n.Tag {
			case "!!null":
				d[i] = Unspecified
			case "!!int":
				if err := n.Decode(&d[i]); err != nil {
					return fmt.Errorf("%w: %v", ErrInvalidChunkSpec, err)
				}
				if d[i] < 1 {
					return fmt.Errorf("%w: dimension %d must be positive", ErrInvalidChunkSpec, d[i])
				}
			default:
				return fmt.Errorf("%w: %q is not an integer", ErrInvalidChunkSpec, n.Value)
			}
		}
		*c = ChunkShape(d[0], d[1])
		return nil
	}

	return fmt.Errorf("%w: line %d", ErrInvalidChunkSpec, node.Line)
}

// MarshalYAML encodes c in the form UnmarshalYAML accepts.
func (c ChunkSpec) MarshalYAML() (any, error) {
	switch c.mode {
	case chunkAuto:
		return "auto", nil
	case chunkExplicit:
		d := make([]*int, 2)
		for i, v := range []int{c.rows, c.cols} {
			if v != Unspecified {
				d[i] = &v
			}
		}
		return d, nil
	default:
		return "default", nil
	}
}
