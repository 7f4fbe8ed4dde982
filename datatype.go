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
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
)

// DataType is one of the numeric types samples can be stored or acquired
// as.
type DataType uint8

const (
	Uint8 DataType = iota + 1
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Single // 32-bit float
	Double // 64-bit float
)

type numKind uint8

const (
	kindUnsigned numKind = iota
	kindSigned
	kindFloat
)

var dataTypes = [...]struct {
	name string
	size int
	kind numKind
}{
	Uint8:  {"uint8", 1, kindUnsigned},
	Uint16: {"uint16", 2, kindUnsigned},
	Uint32: {"uint32", 4, kindUnsigned},
	Uint64: {"uint64", 8, kindUnsigned},
	Int8:   {"int8", 1, kindSigned},
	Int16:  {"int16", 2, kindSigned},
	Int32:  {"int32", 4, kindSigned},
	Int64:  {"int64", 8, kindSigned},
	Single: {"single", 4, kindFloat},
	Double: {"double", 8, kindFloat},
}

// DataTypes returns every supported data type.
func DataTypes() []DataType {
	return []DataType{Uint8, Uint16, Uint32, Uint64, Int8, Int16, Int32, Int64, Single, Double}
}

// ParseDataType returns the data type with the given canonical name.
func ParseDataType(name string) (DataType, error) {
	for _, t := range DataTypes() {
		if dataTypes[t].name == name {
			return t, nil
		}
	}
	names := lo.Map(DataTypes(), func(t DataType, _ int) string { return t.String() })
	return 0, fmt.Errorf("%w: %q, must be one of (%s)", ErrUnsupportedDataType, name, strings.Join(names, ", "))
}

// Valid reports whether t is one of the supported data types.
func (t DataType) Valid() bool {
	return t >= Uint8 && t <= Double
}

func (t DataType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("DataType(%d)", uint8(t))
	}
	return dataTypes[t].name
}

// Size returns the size of one element in bytes.
func (t DataType) Size() int {
	if !t.Valid() {
		return 0
	}
	return dataTypes[t].size
}

// IsFloat reports whether t is a floating point type.
func (t DataType) IsFloat() bool {
	return t.Valid() && dataTypes[t].kind == kindFloat
}

// number holds one element widened to 64 bits, tagged with how it must be
// interpreted.
type number struct {
	kind numKind
	i    int64
	u    uint64
	f    float64
}

func (n number) float() float64 {
	switch n.kind {
	case kindSigned:
		return float64(n.i)
	case kindUnsigned:
		return float64(n.u)
	default:
		return n.f
	}
}

// bits returns the two's complement bit pattern of n converted to an
// integer type. Floats truncate toward zero.
func (n number) bits(signed bool) uint64 {
	switch n.kind {
	case kindSigned:
		return uint64(n.i)
	case kindUnsigned:
		return n.u
	default:
		if signed || n.f < 0 {
			return uint64(int64(n.f))
		}
		return uint64(n.f)
	}
}

// load decodes the little-endian element at the start of b.
func (t DataType) load(b []byte) number {
	switch t {
	case Uint8:
		return number{kind: kindUnsigned, u: uint64(b[0])}
	case Uint16:
		return number{kind: kindUnsigned, u: uint64(binary.LittleEndian.Uint16(b))}
	case Uint32:
		return number{kind: kindUnsigned, u: uint64(binary.LittleEndian.Uint32(b))}
	case Uint64:
		return number{kind: kindUnsigned, u: binary.LittleEndian.Uint64(b)}
	case Int8:
		return number{kind: kindSigned, i: int64(int8(b[0]))}
	case Int16:
		return number{kind: kindSigned, i: int64(int16(binary.LittleEndian.Uint16(b)))}
	case Int32:
		return number{kind: kindSigned, i: int64(int32(binary.LittleEndian.Uint32(b)))}
	case Int64:
		return number{kind: kindSigned, i: int64(binary.LittleEndian.Uint64(b))}
	case Single:
		return number{kind: kindFloat, f: float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))}
	case Double:
		return number{kind: kindFloat, f: math.Float64frombits(binary.LittleEndian.Uint64(b))}
	}
	panic(fmt.Sprintf("acquisition: load of invalid %v", t))
}

// store encodes n as t at the start of b. Integer targets keep the low
// bits, so narrowing wraps around.
func (t DataType) store(b []byte, n number) {
	switch t {
	case Single:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(n.float())))
	case Double:
		binary.LittleEndian.PutUint64(b, math.Float64bits(n.float()))
	default:
		v := n.bits(dataTypes[t].kind == kindSigned)
		switch t.Size() {
		case 1:
			b[0] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(b, uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(b, uint32(v))
		case 8:
			binary.LittleEndian.PutUint64(b, v)
		default:
			panic(fmt.Sprintf("acquisition: store of invalid %v", t))
		}
	}
}
