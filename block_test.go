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
	"testing"

	"github.com/OpenPSG/acquisition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypes(t *testing.T) {
	sizes := map[string]int{
		"uint8": 1, "uint16": 2, "uint32": 4, "uint64": 8,
		"int8": 1, "int16": 2, "int32": 4, "int64": 8,
		"single": 4, "double": 8,
	}

	require.Len(t, acquisition.DataTypes(), len(sizes))
	for _, dt := range acquisition.DataTypes() {
		parsed, err := acquisition.ParseDataType(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, parsed)
		assert.Equal(t, sizes[dt.String()], dt.Size())
	}

	assert.True(t, acquisition.Single.IsFloat())
	assert.False(t, acquisition.Int64.IsFloat())

	for _, name := range []string{"float", "float32", "Double", "complex128", ""} {
		_, err := acquisition.ParseDataType(name)
		assert.ErrorIs(t, err, acquisition.ErrUnsupportedDataType, name)
	}
}

func TestBlockOf(t *testing.T) {
	b, err := acquisition.BlockOf(2, 3, []int16{1, 2, 3, -4, -5, -6})
	require.NoError(t, err)

	assert.Equal(t, acquisition.Int16, b.Type)
	assert.Len(t, b.Data, 12)
	assert.Equal(t, -5.0, b.At(1, 1))
	assert.Equal(t, []float64{-4, -5, -6}, b.Row(1))

	_, err = acquisition.BlockOf(2, 3, []int16{1, 2})
	require.ErrorIs(t, err, acquisition.ErrShapeMismatch)

	_, err = acquisition.BlockFromRows([][]float64{{1, 2}, {3}})
	require.ErrorIs(t, err, acquisition.ErrShapeMismatch)
}

func TestBlockConvert(t *testing.T) {
	b, err := acquisition.BlockOf(1, 5, []float64{-1.75, 0.5, 255, 256, 1e10})
	require.NoError(t, err)

	assert.Same(t, b, b.Convert(acquisition.Double))

	assert.Equal(t, []int32{-1, 0, 255, 256, int32(int64(1e10) & 0xffffffff)}, acquisition.Values[int32](b))
	assert.Equal(t, []uint8{0xff, 0, 255, 0, uint8(int64(1e10) & 0xff)}, acquisition.Values[uint8](b.Convert(acquisition.Uint8)))
	assert.Equal(t, []float32{-1.75, 0.5, 255, 256, 1e10}, acquisition.Values[float32](b))

	i, err := acquisition.BlockOf(1, 2, []int8{-128, 127})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0xff80, 127}, acquisition.Values[uint16](i))
	assert.Equal(t, []float64{-128, 127}, acquisition.Values[float64](i))
}

func TestBlockDense(t *testing.T) {
	b, err := acquisition.BlockFromRows([][]uint16{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)

	m := b.Dense()
	require.NotNil(t, m)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 6.0, m.At(2, 1))

	assert.Nil(t, acquisition.NewBlock(acquisition.Double, 0, 2).Dense())
}
