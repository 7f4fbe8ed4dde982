// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package container_test

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/acquisition/internal/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rows returns n rows of cols little-endian uint32 elements, where element
// (r, c) holds r*1000 + c.
func rows(start, n, cols int) []byte {
	out := make([]byte, n*cols*4)
	for r := 0; r < n; r++ {
		for c := 0; c < cols; c++ {
			binary.LittleEndian.PutUint32(out[(r*cols+c)*4:], uint32((start+r)*1000+c))
		}
	}
	return out
}

func TestDatasetCodecs(t *testing.T) {
	codecs := []container.Codec{
		container.CodecNone,
		container.CodecGzip,
		container.CodecZstd,
		container.CodecLZ4,
		container.CodecSnappy,
		container.CodecLZF,
	}

	for _, codec := range codecs {
		for _, shuffle := range []bool{false, true} {
			for _, checksum := range []bool{false, true} {
				t.Run(fmt.Sprintf("%s/shuffle=%v/checksum=%v", codec, shuffle, checksum), func(t *testing.T) {
					name := filepath.Join(t.TempDir(), "test.ctr")

					level := 0
					switch codec {
					case container.CodecGzip:
						level = 6
					case container.CodecZstd:
						level = 3
					}

					f, err := container.Create(name)
					require.NoError(t, err)

					d, err := f.CreateDataset("/Data", container.Layout{
						DType:     "uint32",
						ElemSize:  4,
						Cols:      5,
						ChunkRows: 8,
						ChunkCols: 2,
						Codec:     codec,
						Level:     level,
						Shuffle:   shuffle,
						Checksum:  checksum,
					})
					require.NoError(t, err)

					// Appends that do not line up with the tile grid.
					for _, n := range []int{3, 10, 1, 16} {
						start := d.Rows()
						require.NoError(t, d.Resize(start+int64(n)))
						require.NoError(t, d.WriteRows(start, rows(int(start), n, 5)))
						require.NoError(t, f.Flush())
					}
					require.NoError(t, f.Close())

					f, err = container.Open(name)
					require.NoError(t, err)
					t.Cleanup(func() {
						require.NoError(t, f.Close())
					})

					assert.Equal(t, []string{"/Data"}, f.Datasets())
					d, ok := f.Dataset("/Data")
					require.True(t, ok)
					assert.Equal(t, int64(30), d.Rows())
					assert.Equal(t, 5, d.Cols())
					assert.Equal(t, codec, d.Layout().Codec)

					got, err := d.ReadRows(0, 30)
					require.NoError(t, err)
					assert.Equal(t, rows(0, 30, 5), got)

					got, err = d.ReadRows(7, 17)
					require.NoError(t, err)
					assert.Equal(t, rows(7, 10, 5), got)
				})
			}
		}
	}
}

func TestDatasetIncompressible(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.ctr")

	f, err := container.Create(name)
	require.NoError(t, err)

	d, err := f.CreateDataset("/Noise", container.Layout{
		DType:     "uint8",
		ElemSize:  1,
		Cols:      64,
		ChunkRows: 64,
		ChunkCols: 64,
		Codec:     container.CodecZstd,
		Level:     19,
		Checksum:  true,
	})
	require.NoError(t, err)

	noise := make([]byte, 64*64)
	_, _ = rand.New(rand.NewSource(1)).Read(noise)

	require.NoError(t, d.Resize(64))
	require.NoError(t, d.WriteRows(0, noise))
	require.NoError(t, f.Close())

	f, err = container.Open(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	d, ok := f.Dataset("/Noise")
	require.True(t, ok)

	got, err := d.ReadRows(0, 64)
	require.NoError(t, err)
	assert.Equal(t, noise, got)
}

func TestDatasetUnwrittenReadsZero(t *testing.T) {
	f, err := container.Create(filepath.Join(t.TempDir(), "test.ctr"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	d, err := f.CreateDataset("/Data", container.Layout{
		DType:     "uint32",
		ElemSize:  4,
		Cols:      3,
		ChunkRows: 4,
		ChunkCols: 3,
		Codec:     container.CodecGzip,
		Level:     1,
	})
	require.NoError(t, err)

	require.NoError(t, d.Resize(12))
	require.NoError(t, d.WriteRows(5, rows(5, 1, 3)))

	got, err := d.ReadRows(0, 12)
	require.NoError(t, err)

	expected := make([]byte, 12*3*4)
	copy(expected[5*3*4:], rows(5, 1, 3))
	assert.Equal(t, expected, got)
}

func TestDatasetAutoChunks(t *testing.T) {
	f, err := container.Create(filepath.Join(t.TempDir(), "test.ctr"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	d, err := f.CreateDataset("/Data", container.Layout{DType: "double", ElemSize: 8, Cols: 4})
	require.NoError(t, err)

	layout := d.Layout()
	assert.Equal(t, 4, layout.ChunkCols)
	assert.Equal(t, (64<<10)/(4*8), layout.ChunkRows)
	assert.Equal(t, container.CodecNone, layout.Codec)
}

func TestDatasetErrors(t *testing.T) {
	f, err := container.Create(filepath.Join(t.TempDir(), "test.ctr"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	layout := container.Layout{DType: "uint32", ElemSize: 4, Cols: 3, ChunkRows: 4, ChunkCols: 3}

	d, err := f.CreateDataset("/Data", layout)
	require.NoError(t, err)

	_, err = f.CreateDataset("/Data", layout)
	require.ErrorIs(t, err, container.ErrExists)
	require.ErrorIs(t, f.SetAttr("/Data", int64(1)), container.ErrExists)

	require.NoError(t, f.SetAttr("/Attr", int64(1)))
	_, err = f.CreateDataset("/Attr", layout)
	require.ErrorIs(t, err, container.ErrExists)

	require.NoError(t, d.Resize(4))
	require.ErrorIs(t, d.Resize(2), container.ErrOutOfBounds)
	require.ErrorIs(t, d.WriteRows(3, rows(3, 2, 3)), container.ErrOutOfBounds)
	require.ErrorIs(t, d.WriteRows(0, []byte{1, 2, 3}), container.ErrOutOfBounds)
	_, err = d.ReadRows(2, 5)
	require.ErrorIs(t, err, container.ErrOutOfBounds)

	for _, bad := range []container.Layout{
		{ElemSize: 3, Cols: 3, ChunkRows: 1, ChunkCols: 1},
		{ElemSize: 4, Cols: 0, ChunkRows: 1, ChunkCols: 1},
		{ElemSize: 4, Cols: 3, ChunkRows: 0, ChunkCols: 3},
		{ElemSize: 4, Cols: 3, ChunkRows: 1, ChunkCols: 4},
		{ElemSize: 8, Cols: 4, ChunkRows: 1 << 40, ChunkCols: 4},
	} {
		_, err := f.CreateDataset("/Bad", bad)
		assert.ErrorIs(t, err, container.ErrInvalidLayout)
	}

	_, err = f.CreateDataset("/Bad", container.Layout{
		ElemSize: 4, Cols: 3, ChunkRows: 1, ChunkCols: 1, Codec: container.CodecGzip, Level: 12,
	})
	require.ErrorIs(t, err, container.ErrInvalidCompression)
}

func TestValidateCompression(t *testing.T) {
	require.NoError(t, container.ValidateCompression("gzip", 0))
	require.NoError(t, container.ValidateCompression("gzip", 9))
	require.NoError(t, container.ValidateCompression("zstd", 22))
	require.NoError(t, container.ValidateCompression("lz4", 100))
	require.NoError(t, container.ValidateCompression("none", -1))

	require.ErrorIs(t, container.ValidateCompression("gzip", 10), container.ErrInvalidCompression)
	require.ErrorIs(t, container.ValidateCompression("gzip", -2), container.ErrInvalidCompression)
	require.ErrorIs(t, container.ValidateCompression("zstd", 0), container.ErrInvalidCompression)
	require.ErrorIs(t, container.ValidateCompression("brotli", 1), container.ErrInvalidCompression)
	require.ErrorIs(t, container.ValidateCompression("", 1), container.ErrInvalidCompression)
}
