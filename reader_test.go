// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package acquisition_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/acquisition"
	"github.com/OpenPSG/acquisition/internal/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFile writes a container by hand, for layouts the writer never
// produces.
func buildFile(t *testing.T, build func(f *container.File)) string {
	t.Helper()

	name := filepath.Join(t.TempDir(), "test.acq")
	f, err := container.Create(name)
	require.NoError(t, err)
	build(f)
	require.NoError(t, f.Close())

	return name
}

func setAttrs(t *testing.T, f *container.File, attrs map[string]any) {
	t.Helper()

	for p, v := range attrs {
		require.NoError(t, f.SetAttr(p, v))
	}
}

func header(version string) map[string]any {
	return map[string]any{
		"/Type":                 acquisition.FileType,
		"/Version":              version,
		"/Software":             "handmade",
		"/Data/Type":            "double",
		"/Data/StorageType":     "double",
		"/Info/NumberChannels":  int64(2),
		"/Info/SampleFrequency": 100.0,
		"/Info/Bits":            int64(12),
	}
}

func doubleLayout(cols int) container.Layout {
	return container.Layout{
		DType:     "double",
		ElemSize:  8,
		Cols:      cols,
		ChunkRows: 16,
		ChunkCols: cols,
		Codec:     container.CodecNone,
	}
}

func TestOpenNotContainer(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.edf")
	require.NoError(t, os.WriteFile(name, []byte("0       this is not a container"), 0o644))

	_, err := acquisition.Open(name)
	require.ErrorIs(t, err, acquisition.ErrUnsupportedFileType)
}

func TestOpenWrongFileType(t *testing.T) {
	name := buildFile(t, func(f *container.File) {
		attrs := header("1.1.0")
		attrs["/Type"] = "Something Else"
		setAttrs(t, f, attrs)
		_, err := f.CreateDataset("/Data/Data", doubleLayout(2))
		require.NoError(t, err)
	})

	_, err := acquisition.Open(name)
	require.ErrorIs(t, err, acquisition.ErrUnsupportedFileType)
}

func TestOpenUnsupportedVersion(t *testing.T) {
	for _, version := range []string{"1.2.0", "0.0.0", "v1.1.0", "latest"} {
		t.Run(version, func(t *testing.T) {
			name := buildFile(t, func(f *container.File) {
				setAttrs(t, f, header(version))
				_, err := f.CreateDataset("/Data/Data", doubleLayout(2))
				require.NoError(t, err)
			})

			_, err := acquisition.Open(name)
			require.ErrorIs(t, err, acquisition.ErrUnsupportedVersion)
		})
	}
}

func TestOpenMissingSoftware(t *testing.T) {
	name := buildFile(t, func(f *container.File) {
		attrs := header("1.1.0")
		delete(attrs, "/Software")
		setAttrs(t, f, attrs)
		_, err := f.CreateDataset("/Data/Data", doubleLayout(2))
		require.NoError(t, err)
	})

	_, err := acquisition.Open(name)
	require.ErrorIs(t, err, acquisition.ErrMissingField)

	// Software is not part of the 1.0 schema.
	name = buildFile(t, func(f *container.File) {
		attrs := header("1.0.0")
		delete(attrs, "/Software")
		setAttrs(t, f, attrs)
		_, err := f.CreateDataset("/Data/Data", doubleLayout(2))
		require.NoError(t, err)
	})

	r, err := acquisition.Open(name)
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestOpenMissingDataBlock(t *testing.T) {
	name := buildFile(t, func(f *container.File) {
		setAttrs(t, f, header("1.1.0"))
	})

	_, err := acquisition.Open(name)
	require.ErrorIs(t, err, acquisition.ErrMissingDataBlock)
}

func TestOpenMissingField(t *testing.T) {
	name := buildFile(t, func(f *container.File) {
		attrs := header("1.1.0")
		delete(attrs, "/Info/NumberChannels")
		setAttrs(t, f, attrs)
		_, err := f.CreateDataset("/Data/Data", doubleLayout(2))
		require.NoError(t, err)
	})

	_, err := acquisition.Open(name)
	require.ErrorIs(t, err, acquisition.ErrMissingField)

	var fe *acquisition.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, acquisition.FieldNumberChannels, fe.Field)
}

func TestOpenDefaultedFields(t *testing.T) {
	name := buildFile(t, func(f *container.File) {
		attrs := header("1.1.0")
		delete(attrs, "/Info/SampleFrequency")
		delete(attrs, "/Info/Bits")
		setAttrs(t, f, attrs)
		_, err := f.CreateDataset("/Data/Data", doubleLayout(2))
		require.NoError(t, err)
	})

	r, err := acquisition.Open(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})

	md := r.Metadata()
	assert.Equal(t, -1.0, md.SampleFrequency)
	assert.Equal(t, int64(-1), md.Bits)
}

func TestOpenUnknownField(t *testing.T) {
	name := buildFile(t, func(f *container.File) {
		attrs := header("1.1.0")
		attrs["/Info/Gain"] = 2.0
		setAttrs(t, f, attrs)
		_, err := f.CreateDataset("/Data/Data", doubleLayout(2))
		require.NoError(t, err)
	})

	_, err := acquisition.Open(name)
	require.ErrorIs(t, err, acquisition.ErrUnknownField)
}

func TestOpenChannelCountMismatch(t *testing.T) {
	name := buildFile(t, func(f *container.File) {
		setAttrs(t, f, header("1.1.0"))
		_, err := f.CreateDataset("/Data/Data", doubleLayout(3))
		require.NoError(t, err)
	})

	_, err := acquisition.Open(name)
	require.ErrorIs(t, err, acquisition.ErrShapeMismatch)
}

func TestOpenSampleCountMismatch(t *testing.T) {
	name := buildFile(t, func(f *container.File) {
		attrs := header("1.1.0")
		attrs["/Info/NumberSamples"] = int64(5)
		setAttrs(t, f, attrs)
		d, err := f.CreateDataset("/Data/Data", doubleLayout(2))
		require.NoError(t, err)
		require.NoError(t, d.Resize(4))
	})

	_, err := acquisition.Open(name)
	require.ErrorIs(t, err, acquisition.ErrShapeMismatch)
}

func TestOpenRecordInfo(t *testing.T) {
	samples, err := acquisition.BlockFromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	name := buildFile(t, func(f *container.File) {
		attrs := header("1.1.0")
		for p := range attrs {
			if filepath.Dir(p) == "/Info" {
				delete(attrs, p)
			}
		}

		// A single row record: scalars are wrapped in one element arrays.
		attrs["/Info"] = map[string]any{
			acquisition.FieldNumberChannels:     []int64{2},
			acquisition.FieldSampleFrequency:    []float64{100},
			acquisition.FieldBits:               []int64{12},
			acquisition.FieldNumberSamples:      int64(2),
			acquisition.FieldDeviceName:         [][]byte{[]byte("Recorder")},
			acquisition.FieldChannelNames:       []string{"C3", "C4"},
			acquisition.FieldScalings:           []float64{10, 1},
			acquisition.FieldChannelInputRanges: [][2]float64{{-1, 1}, {-2, 2}},
		}
		setAttrs(t, f, attrs)

		d, err := f.CreateDataset("/Data/Data", doubleLayout(2))
		require.NoError(t, err)
		require.NoError(t, d.Resize(2))
		require.NoError(t, d.WriteRows(0, samples.Data))
	})

	r, err := acquisition.Open(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})

	md := r.Metadata()
	assert.Equal(t, int64(2), md.NumberChannels)
	assert.Equal(t, 100.0, md.SampleFrequency)
	assert.Equal(t, int64(12), md.Bits)
	assert.Equal(t, "Recorder", md.DeviceName)
	assert.Equal(t, []string{"C3", "C4"}, md.Channels.Names)
	assert.Equal(t, [][2]float64{{-1, 1}, {-2, 2}}, md.Channels.InputRanges)
	assert.Equal(t, []string{"", ""}, md.Channels.Units)

	got, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 2, 30, 4}, acquisition.Values[float64](got))
}

func TestReaderSelection(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.acq")

	cfg := acquisition.DefaultConfig()
	cfg.StorageType = "int32"
	cfg.DataType = "int32"
	cfg.Chunks = acquisition.ChunkShape(4, 2)

	w, err := acquisition.Create(name, testMetadata(3), cfg)
	require.NoError(t, err)

	// Element (r, c) holds 10*r + c.
	values := make([]int32, 10*3)
	for i := range values {
		values[i] = int32(10*(i/3) + i%3)
	}
	b, err := acquisition.BlockOf(10, 3, values)
	require.NoError(t, err)
	require.NoError(t, w.Append(b))
	require.NoError(t, w.Close())

	r, err := acquisition.Open(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})

	tests := []struct {
		name     string
		rows     acquisition.Selection
		channels acquisition.Selection
		expected [][]int32
	}{
		{
			name:     "range",
			rows:     acquisition.Range(3, 6),
			channels: acquisition.Range(1, 3),
			expected: [][]int32{{31, 32}, {41, 42}, {51, 52}},
		},
		{
			name:     "strided",
			rows:     acquisition.Slice(0, 10, 4),
			channels: acquisition.All(),
			expected: [][]int32{{0, 1, 2}, {40, 41, 42}, {80, 81, 82}},
		},
		{
			name:     "negative",
			rows:     acquisition.Range(-2, 100),
			channels: acquisition.Index(-1),
			expected: [][]int32{{82}, {92}},
		},
		{
			name:     "reordered",
			rows:     acquisition.Index(9, 0, 9),
			channels: acquisition.Index(2, 0),
			expected: [][]int32{{92, 90}, {2, 0}, {92, 90}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Read(tt.rows, tt.channels)
			require.NoError(t, err)

			expected, err := acquisition.BlockFromRows(tt.expected)
			require.NoError(t, err)
			assert.Equal(t, expected, got)
		})
	}

	_, err = r.Read(acquisition.Index(10), acquisition.All())
	require.ErrorIs(t, err, acquisition.ErrOutOfRange)

	_, err = r.Read(acquisition.All(), acquisition.Slice(0, 3, 0))
	require.ErrorIs(t, err, acquisition.ErrOutOfRange)

	got, err := r.Read(acquisition.Range(5, 5), acquisition.All())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Rows)
}

func TestReaderIdentityDecode(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.acq")

	cfg := acquisition.DefaultConfig()
	cfg.StorageType = "single"
	cfg.DataType = "single"

	w, err := acquisition.Create(name, testMetadata(2), cfg)
	require.NoError(t, err)

	b, err := acquisition.BlockOf(3, 2, []float32{
		0.1, -0.2,
		math.SmallestNonzeroFloat32, math.MaxFloat32,
		float32(math.Inf(-1)), 1.0 / 3,
	})
	require.NoError(t, err)
	require.NoError(t, w.Append(b))
	require.NoError(t, w.Close())

	r, err := acquisition.Open(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})

	got, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, acquisition.Single, got.Type)
	assert.Equal(t, b.Data, got.Data)
}

func TestReaderClose(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.acq")

	w, err := acquisition.Create(name, testMetadata(1), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := acquisition.Open(name)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.ReadAll()
	require.ErrorIs(t, err, acquisition.ErrClosed)
}
