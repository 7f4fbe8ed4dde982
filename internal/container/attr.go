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
	"fmt"
	"slices"
)

// Kind is the element type of an attribute.
type Kind string

const (
	KindInt64   Kind = "int64"
	KindFloat64 Kind = "float64"
	KindText    Kind = "text"
	// KindRecord is a compound value: named fields, each an attribute.
	KindRecord Kind = "record"
)

// Attr is a typed attribute value. Shape is nil for scalars, otherwise it
// holds the array dimensions in row-major order.
type Attr struct {
	Kind   Kind            `cbor:"k"`
	Shape  []int           `cbor:"s,omitempty"`
	Ints   []int64         `cbor:"i,omitempty"`
	Floats []float64       `cbor:"f,omitempty"`
	Texts  [][]byte        `cbor:"t,omitempty"`
	Fields map[string]Attr `cbor:"r,omitempty"`
}

// NewAttr builds an attribute from a Go value. Supported values are int64,
// float64, string and []byte scalars, slices of those, [][2]float64 and
// rectangular [][]float64 matrices, and map[string]any records of any of
// the above.
func NewAttr(v any) (Attr, error) {
	switch x := v.(type) {
	case Attr:
		return x, nil
	case int64:
		return Attr{Kind: KindInt64, Ints: []int64{x}}, nil
	case []int64:
		return Attr{Kind: KindInt64, Shape: []int{len(x)}, Ints: slices.Clone(x)}, nil
	case float64:
		return Attr{Kind: KindFloat64, Floats: []float64{x}}, nil
	case []float64:
		return Attr{Kind: KindFloat64, Shape: []int{len(x)}, Floats: slices.Clone(x)}, nil
	case [][2]float64:
		a := Attr{Kind: KindFloat64, Shape: []int{len(x), 2}, Floats: make([]float64, 0, 2*len(x))}
		for _, pair := range x {
			a.Floats = append(a.Floats, pair[0], pair[1])
		}
		return a, nil
	case [][]float64:
		cols := 0
		if len(x) > 0 {
			cols = len(x[0])
		}
		a := Attr{Kind: KindFloat64, Shape: []int{len(x), cols}, Floats: make([]float64, 0, cols*len(x))}
		for i, row := range x {
			if len(row) != cols {
				return Attr{}, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrUnsupportedKind, i, len(row), cols)
			}
			a.Floats = append(a.Floats, row...)
		}
		return a, nil
	case string:
		return Attr{Kind: KindText, Texts: [][]byte{[]byte(x)}}, nil
	case []byte:
		return Attr{Kind: KindText, Texts: [][]byte{slices.Clone(x)}}, nil
	case []string:
		a := Attr{Kind: KindText, Shape: []int{len(x)}, Texts: make([][]byte, len(x))}
		for i, s := range x {
			a.Texts[i] = []byte(s)
		}
		return a, nil
	case [][]byte:
		a := Attr{Kind: KindText, Shape: []int{len(x)}, Texts: make([][]byte, len(x))}
		for i, b := range x {
			a.Texts[i] = slices.Clone(b)
		}
		return a, nil
	case map[string]any:
		a := Attr{Kind: KindRecord, Fields: make(map[string]Attr, len(x))}
		for name, fv := range x {
			field, err := NewAttr(fv)
			if err != nil {
				return Attr{}, fmt.Errorf("field %q: %w", name, err)
			}
			a.Fields[name] = field
		}
		return a, nil
	default:
		return Attr{}, fmt.Errorf("%w: %T", ErrUnsupportedKind, v)
	}
}

// Value returns the attribute as a Go value. Scalars come back as int64,
// float64 or []byte; one-dimensional arrays as []int64, []float64 or
// [][]byte; two-dimensional float arrays as [][]float64; records as
// map[string]any. Text is always returned as raw bytes.
func (a Attr) Value() any {
	switch a.Kind {
	case KindInt64:
		if a.Shape == nil {
			return a.Ints[0]
		}
		return slices.Clone(a.Ints)
	case KindFloat64:
		switch len(a.Shape) {
		case 0:
			return a.Floats[0]
		case 1:
			return slices.Clone(a.Floats)
		default:
			rows, cols := a.Shape[0], a.Shape[1]
			out := make([][]float64, rows)
			for i := range out {
				out[i] = slices.Clone(a.Floats[i*cols : (i+1)*cols])
			}
			return out
		}
	case KindText:
		if a.Shape == nil {
			return slices.Clone(a.Texts[0])
		}
		out := make([][]byte, len(a.Texts))
		for i, b := range a.Texts {
			out[i] = slices.Clone(b)
		}
		return out
	case KindRecord:
		out := make(map[string]any, len(a.Fields))
		for name, field := range a.Fields {
			out[name] = field.Value()
		}
		return out
	}
	return nil
}

// validate checks that the element count agrees with the shape. Decoded
// attributes are validated before they become visible.
func (a Attr) validate() error {
	if len(a.Shape) > 2 {
		return fmt.Errorf("%w: rank %d", ErrUnsupportedKind, len(a.Shape))
	}

	want := 1
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension", ErrUnsupportedKind)
		}
		want *= d
	}

	var got int
	switch a.Kind {
	case KindInt64:
		got = len(a.Ints)
	case KindFloat64:
		got = len(a.Floats)
	case KindText:
		got = len(a.Texts)
		if len(a.Shape) > 1 {
			return fmt.Errorf("%w: text of rank %d", ErrUnsupportedKind, len(a.Shape))
		}
	case KindRecord:
		for name, field := range a.Fields {
			if err := field.validate(); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: kind %q", ErrUnsupportedKind, a.Kind)
	}

	if got != want {
		return fmt.Errorf("%w: %d elements for shape %v", ErrUnsupportedKind, got, a.Shape)
	}
	return nil
}
