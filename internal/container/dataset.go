// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package container

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// autoChunkBytes is the tile size targeted when the caller leaves chunk
// sizing to the store.
const autoChunkBytes = 64 << 10

// MaxChunkBytes bounds the uncompressed size of a single tile.
const MaxChunkBytes = 256 << 20

// Layout describes the physical storage of a dataset. Rows grow without
// bound; the column count is fixed at creation.
type Layout struct {
	DType     string `cbor:"t"` // element type name, opaque to the store
	ElemSize  int    `cbor:"e"`
	Cols      int    `cbor:"c"`
	ChunkRows int    `cbor:"cr"` // zero together with ChunkCols selects automatic sizing
	ChunkCols int    `cbor:"cc"`
	Codec     Codec  `cbor:"z"`
	Level     int    `cbor:"l"`
	Shuffle   bool   `cbor:"s"`
	Checksum  bool   `cbor:"h"`
}

// normalize resolves automatic chunking and validates the layout.
func (l Layout) normalize() (Layout, error) {
	if l.Codec == "" {
		l.Codec = CodecNone
	}
	if l.ChunkRows == 0 && l.ChunkCols == 0 && l.Cols > 0 && l.ElemSize > 0 {
		l.ChunkCols = l.Cols
		l.ChunkRows = max(1, autoChunkBytes/(l.Cols*l.ElemSize))
	}
	return l, l.validate()
}

func (l Layout) validate() error {
	switch l.ElemSize {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("%w: element size %d", ErrInvalidLayout, l.ElemSize)
	}
	if l.Cols < 1 {
		return fmt.Errorf("%w: %d columns", ErrInvalidLayout, l.Cols)
	}
	if l.ChunkRows < 1 || l.ChunkCols < 1 {
		return fmt.Errorf("%w: chunk shape (%d, %d)", ErrInvalidLayout, l.ChunkRows, l.ChunkCols)
	}
	if l.ChunkCols > l.Cols {
		return fmt.Errorf("%w: chunk has %d columns, dataset has %d", ErrInvalidLayout, l.ChunkCols, l.Cols)
	}
	if !ChunkFits(l.ChunkRows, l.ChunkCols, l.ElemSize) {
		return fmt.Errorf("%w: chunk (%d, %d) exceeds %d bytes", ErrInvalidLayout, l.ChunkRows, l.ChunkCols, MaxChunkBytes)
	}
	return ValidateCompression(string(l.Codec), l.Level)
}

// ChunkFits reports whether a tile of rows by cols elements of elemSize
// bytes stays within MaxChunkBytes.
func ChunkFits(rows, cols, elemSize int) bool {
	return int64(rows) <= MaxChunkBytes/(int64(cols)*int64(elemSize))
}

func (l Layout) tileSize() int {
	return l.ChunkRows * l.ChunkCols * l.ElemSize
}

type chunkKey struct {
	row, col int64
}

// Dataset is a two-dimensional, row-growable array stored as a grid of
// fixed-size tiles. Tiles that were never written read as zeros.
type Dataset struct {
	file   *File
	path   string
	layout Layout
	rows   int64
	chunks map[chunkKey]int64 // offset of the latest frame for each tile
}

func newDataset(f *File, p string, layout Layout) *Dataset {
	return &Dataset{
		file:   f,
		path:   p,
		layout: layout,
		chunks: make(map[chunkKey]int64),
	}
}

func (d *Dataset) Path() string   { return d.path }
func (d *Dataset) Layout() Layout { return d.layout }
func (d *Dataset) Rows() int64    { return d.rows }
func (d *Dataset) Cols() int      { return d.layout.Cols }

// Resize sets the row count. Datasets only grow.
func (d *Dataset) Resize(rows int64) error {
	if err := d.file.writable(); err != nil {
		return err
	}
	if rows < d.rows {
		return fmt.Errorf("%w: cannot shrink %s from %d to %d rows", ErrOutOfBounds, d.path, d.rows, rows)
	}
	if rows == d.rows {
		return nil
	}

	if _, err := d.file.writeFrame(frameResize, resizeFrame{Path: d.path, Rows: rows}); err != nil {
		return err
	}
	d.rows = rows

	return nil
}

// WriteRows overwrites whole rows starting at start. data holds row-major
// elements and must cover a whole number of rows inside the current
// extent.
func (d *Dataset) WriteRows(start int64, data []byte) error {
	if err := d.file.writable(); err != nil {
		return err
	}

	n, err := d.span(start, data)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	l := d.layout
	es := int64(l.ElemSize)
	rowBytes := int64(l.Cols) * es
	stop := start + n

	for cr := start / int64(l.ChunkRows); cr*int64(l.ChunkRows) < stop; cr++ {
		tileStart := cr * int64(l.ChunkRows)
		r0, r1 := max(start, tileStart), min(stop, tileStart+int64(l.ChunkRows))

		for cc := int64(0); cc*int64(l.ChunkCols) < int64(l.Cols); cc++ {
			key := chunkKey{row: cr, col: cc}
			c0 := cc * int64(l.ChunkCols)
			c1 := min(int64(l.Cols), c0+int64(l.ChunkCols))

			tile, err := d.loadTile(key)
			if err != nil {
				return err
			}

			for r := r0; r < r1; r++ {
				src := data[(r-start)*rowBytes+c0*es : (r-start)*rowBytes+c1*es]
				dst := tile[(r-tileStart)*int64(l.ChunkCols)*es:]
				copy(dst, src)
			}

			if err := d.storeTile(key, tile); err != nil {
				return err
			}
		}
	}

	return nil
}

// ReadRows returns rows [start, stop) as row-major elements.
func (d *Dataset) ReadRows(start, stop int64) ([]byte, error) {
	if d.file.closed {
		return nil, ErrClosed
	}
	if start < 0 || stop > d.rows || start > stop {
		return nil, fmt.Errorf("%w: rows [%d, %d) of %s with %d rows", ErrOutOfBounds, start, stop, d.path, d.rows)
	}

	l := d.layout
	es := int64(l.ElemSize)
	rowBytes := int64(l.Cols) * es
	out := make([]byte, (stop-start)*rowBytes)

	for cr := start / int64(l.ChunkRows); cr*int64(l.ChunkRows) < stop; cr++ {
		tileStart := cr * int64(l.ChunkRows)
		r0, r1 := max(start, tileStart), min(stop, tileStart+int64(l.ChunkRows))

		for cc := int64(0); cc*int64(l.ChunkCols) < int64(l.Cols); cc++ {
			key := chunkKey{row: cr, col: cc}
			if _, ok := d.chunks[key]; !ok {
				continue
			}
			c0 := cc * int64(l.ChunkCols)
			c1 := min(int64(l.Cols), c0+int64(l.ChunkCols))

			tile, err := d.loadTile(key)
			if err != nil {
				return nil, err
			}

			for r := r0; r < r1; r++ {
				src := tile[(r-tileStart)*int64(l.ChunkCols)*es:]
				copy(out[(r-start)*rowBytes+c0*es:(r-start)*rowBytes+c1*es], src)
			}
		}
	}

	return out, nil
}

func (d *Dataset) span(start int64, data []byte) (int64, error) {
	rowBytes := d.layout.Cols * d.layout.ElemSize
	if len(data)%rowBytes != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte rows", ErrOutOfBounds, len(data), rowBytes)
	}
	n := int64(len(data) / rowBytes)
	if start < 0 || start+n > d.rows {
		return 0, fmt.Errorf("%w: rows [%d, %d) of %s with %d rows", ErrOutOfBounds, start, start+n, d.path, d.rows)
	}
	return n, nil
}

// loadTile returns the decoded tile, or a zero tile if it was never
// written.
func (d *Dataset) loadTile(key chunkKey) ([]byte, error) {
	off, ok := d.chunks[key]
	if !ok {
		return make([]byte, d.layout.tileSize()), nil
	}

	kind, payload, err := d.file.readFrame(off)
	if err != nil {
		return nil, err
	}
	if kind != frameChunk {
		return nil, fmt.Errorf("%w: frame at %d is not a chunk", ErrCorrupt, off)
	}

	var fr chunkFrame
	if err := unmarshal(payload, &fr); err != nil {
		return nil, fmt.Errorf("%w: chunk at %d: %v", ErrCorrupt, off, err)
	}
	if fr.Size != d.layout.tileSize() {
		return nil, fmt.Errorf("%w: chunk at %d holds %d bytes, tile is %d", ErrCorrupt, off, fr.Size, d.layout.tileSize())
	}

	raw, err := decompress(fr.Codec, fr.Data, fr.Size)
	if err != nil {
		return nil, err
	}
	if d.layout.Shuffle {
		raw = unshuffle(raw, d.layout.ElemSize)
	}

	if d.layout.Checksum {
		sum := blake3.Sum256(raw)
		if len(fr.Sum) == 0 || len(fr.Sum) > len(sum) || !bytes.Equal(sum[:len(fr.Sum)], fr.Sum) {
			return nil, fmt.Errorf("%w: %s tile (%d, %d)", ErrChecksum, d.path, key.row, key.col)
		}
	}

	return raw, nil
}

// storeTile runs the filter pipeline over a tile and appends it.
func (d *Dataset) storeTile(key chunkKey, raw []byte) error {
	fr := chunkFrame{
		Path: d.path,
		Row:  key.row,
		Col:  key.col,
		Size: len(raw),
	}

	if d.layout.Checksum {
		sum := blake3.Sum256(raw)
		fr.Sum = sum[:]
	}

	data := raw
	if d.layout.Shuffle {
		data = shuffle(raw, d.layout.ElemSize)
	}

	compressed, err := compress(d.layout.Codec, d.layout.Level, data)
	switch {
	case errors.Is(err, errIncompressible):
		fr.Codec, fr.Data = CodecNone, data
	case err != nil:
		return fmt.Errorf("%s tile (%d, %d): %w", d.path, key.row, key.col, err)
	default:
		fr.Codec, fr.Data = d.layout.Codec, compressed
	}

	off, err := d.file.writeFrame(frameChunk, fr)
	if err != nil {
		return err
	}
	d.chunks[key] = off

	return nil
}
