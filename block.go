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
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Sample is the set of Go types that map onto a DataType.
type Sample interface {
	uint8 | uint16 | uint32 | uint64 | int8 | int16 | int32 | int64 | float32 | float64
}

// Block is a two-dimensional block of samples: one row per sample instant,
// one column per channel. Data holds the elements row-major and
// little-endian.
type Block struct {
	Type DataType
	Rows int
	Cols int
	Data []byte
}

// TypeOf returns the data type matching T.
func TypeOf[T Sample]() DataType {
	var z T
	switch any(z).(type) {
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case float32:
		return Single
	default:
		return Double
	}
}

func numberOf[T Sample](v T) number {
	switch x := any(v).(type) {
	case uint8:
		return number{kind: kindUnsigned, u: uint64(x)}
	case uint16:
		return number{kind: kindUnsigned, u: uint64(x)}
	case uint32:
		return number{kind: kindUnsigned, u: uint64(x)}
	case uint64:
		return number{kind: kindUnsigned, u: x}
	case int8:
		return number{kind: kindSigned, i: int64(x)}
	case int16:
		return number{kind: kindSigned, i: int64(x)}
	case int32:
		return number{kind: kindSigned, i: int64(x)}
	case int64:
		return number{kind: kindSigned, i: x}
	case float32:
		return number{kind: kindFloat, f: float64(x)}
	case float64:
		return number{kind: kindFloat, f: x}
	}
	panic("unreachable")
}

// NewBlock returns a zeroed block.
func NewBlock(t DataType, rows, cols int) *Block {
	return &Block{Type: t, Rows: rows, Cols: cols, Data: make([]byte, rows*cols*t.Size())}
}

// BlockOf builds a block from row-major values.
func BlockOf[T Sample](rows, cols int, values []T) (*Block, error) {
	if rows < 0 || cols < 0 || len(values) != rows*cols {
		return nil, fmt.Errorf("%w: %d values for a %dx%d block", ErrShapeMismatch, len(values), rows, cols)
	}

	b := NewBlock(TypeOf[T](), rows, cols)
	size := b.Type.Size()
	for i, v := range values {
		b.Type.store(b.Data[i*size:], numberOf(v))
	}
	return b, nil
}

// BlockFromRows builds a block from a slice of equally sized rows.
func BlockFromRows[T Sample](rows [][]T) (*Block, error) {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}

	values := make([]T, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrShapeMismatch, i, len(row), cols)
		}
		values = append(values, row...)
	}

	return BlockOf(len(rows), cols, values)
}

// Values returns the elements of b row-major, converted to T.
func Values[T Sample](b *Block) []T {
	c := b.Convert(TypeOf[T]())
	size := c.Type.Size()

	out := make([]T, c.Rows*c.Cols)
	for i := range out {
		n := c.Type.load(c.Data[i*size:])
		switch n.kind {
		case kindSigned:
			out[i] = T(n.i)
		case kindUnsigned:
			out[i] = T(n.u)
		default:
			out[i] = T(n.f)
		}
	}
	return out
}

func (b *Block) validate() error {
	if !b.Type.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedDataType, b.Type)
	}
	if b.Rows < 0 || b.Cols < 0 || len(b.Data) != b.Rows*b.Cols*b.Type.Size() {
		return fmt.Errorf("%w: %d bytes for a %dx%d %v block", ErrShapeMismatch, len(b.Data), b.Rows, b.Cols, b.Type)
	}
	return nil
}

// At returns the element at row r, column c as a float64.
func (b *Block) At(r, c int) float64 {
	size := b.Type.Size()
	return b.Type.load(b.Data[(r*b.Cols+c)*size:]).float()
}

// Row returns row r as float64 values.
func (b *Block) Row(r int) []float64 {
	out := make([]float64, b.Cols)
	for c := range out {
		out[c] = b.At(r, c)
	}
	return out
}

// Convert returns b converted to t. If b already has type t it is returned
// unchanged.
func (b *Block) Convert(t DataType) *Block {
	if b.Type == t {
		return b
	}

	out := NewBlock(t, b.Rows, b.Cols)
	from, to := b.Type.Size(), t.Size()
	for i := 0; i < b.Rows*b.Cols; i++ {
		t.store(out.Data[i*to:], b.Type.load(b.Data[i*from:]))
	}
	return out
}

// Dense returns the block as a float64 matrix. It returns nil for an empty
// block, which gonum cannot represent.
func (b *Block) Dense() *mat.Dense {
	if b.Rows == 0 || b.Cols == 0 {
		return nil
	}
	return mat.NewDense(b.Rows, b.Cols, Values[float64](b))
}

// columns returns a block holding the given columns of b, in order.
func (b *Block) columns(idx []int) *Block {
	out := NewBlock(b.Type, b.Rows, len(idx))
	size := b.Type.Size()
	for r := 0; r < b.Rows; r++ {
		for j, c := range idx {
			copy(out.Data[(r*out.Cols+j)*size:(r*out.Cols+j+1)*size], b.Data[(r*b.Cols+c)*size:])
		}
	}
	return out
}

// decode applies value*scaling+offset to every column. channels maps each
// column of b to its channel index. Integer blocks are promoted to Double
// when any column has a non-identity transform.
func decode(b *Block, channels []int, offsets, scalings []float64) *Block {
	identity := true
	for _, ch := range channels {
		if scalings[ch] != 1 || offsets[ch] != 0 {
			identity = false
			break
		}
	}
	if identity {
		return b
	}

	var out *Block
	if b.Type.IsFloat() {
		out = &Block{Type: b.Type, Rows: b.Rows, Cols: b.Cols, Data: slices.Clone(b.Data)}
	} else {
		out = b.Convert(Double)
	}

	size := out.Type.Size()
	for j, ch := range channels {
		scaling, offset := scalings[ch], offsets[ch]
		for r := 0; r < out.Rows; r++ {
			at := out.Data[(r*out.Cols+j)*size:]
			v := out.Type.load(at).f
			if scaling != 1 {
				v *= scaling
			}
			if offset != 0 {
				v += offset
			}
			out.Type.store(at, number{kind: kindFloat, f: v})
		}
	}
	return out
}
