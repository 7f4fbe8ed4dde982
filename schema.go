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
	"slices"

	"github.com/samber/lo"
)

// Fields is a raw metadata record keyed by on-disk field name, as read
// from a file or assembled by a caller. Text may be given as string or
// []byte.
type Fields map[string]any

// Metadata field names.
const (
	FieldVendorDriverDescription = "VendorDriverDescription"
	FieldDeviceName              = "DeviceName"
	FieldDeviceID                = "ID"
	FieldTriggerType             = "TriggerType"
	FieldStartTime               = "StartTime"
	FieldSampleFrequency         = "SampleFrequency"
	FieldInputType               = "InputType"
	FieldNumberChannels          = "NumberChannels"
	FieldBits                    = "Bits"
	FieldNumberSamples           = "NumberSamples"
	FieldChannelMappings         = "ChannelMappings"
	FieldChannelNames            = "ChannelNames"
	FieldChannelInputRanges      = "ChannelInputRanges"
	FieldOffsets                 = "Offsets"
	FieldScalings                = "Scalings"
	FieldUnits                   = "Units"
)

type fieldKind uint8

const (
	fieldText fieldKind = iota
	fieldFloat
	fieldInt
	fieldStartTime
	fieldIntArray
	fieldTextArray
	fieldRangeArray
	fieldFloatArray
)

type fieldSpec struct {
	name string
	kind fieldKind
	// def synthesizes the value of an absent field.
	def func(n int64) any
	set func(md *Metadata, v any)
}

// schema lists every recognized metadata field in validation order.
var schema = []fieldSpec{
	{
		name: FieldVendorDriverDescription, kind: fieldText,
		def: func(int64) any { return "" },
		set: func(md *Metadata, v any) { md.VendorDriverDescription = v.(string) },
	},
	{
		name: FieldDeviceName, kind: fieldText,
		def: func(int64) any { return "" },
		set: func(md *Metadata, v any) { md.DeviceName = v.(string) },
	},
	{
		name: FieldDeviceID, kind: fieldText,
		def: func(int64) any { return "" },
		set: func(md *Metadata, v any) { md.DeviceID = v.(string) },
	},
	{
		name: FieldTriggerType, kind: fieldText,
		def: func(int64) any { return "" },
		set: func(md *Metadata, v any) { md.TriggerType = v.(string) },
	},
	{
		name: FieldStartTime, kind: fieldStartTime,
		def: func(int64) any { return [6]float64{} },
		set: func(md *Metadata, v any) { md.StartTime = v.([6]float64) },
	},
	{
		name: FieldSampleFrequency, kind: fieldFloat,
		def: func(int64) any { return float64(Unknown) },
		set: func(md *Metadata, v any) { md.SampleFrequency = v.(float64) },
	},
	{
		name: FieldInputType, kind: fieldText,
		def: func(int64) any { return "" },
		set: func(md *Metadata, v any) { md.InputType = v.(string) },
	},
	{
		name: FieldNumberChannels, kind: fieldInt,
		def: func(n int64) any { return n },
		set: func(md *Metadata, v any) { md.NumberChannels = v.(int64) },
	},
	{
		name: FieldBits, kind: fieldInt,
		def: func(int64) any { return int64(Unknown) },
		set: func(md *Metadata, v any) { md.Bits = v.(int64) },
	},
	{
		name: FieldNumberSamples, kind: fieldInt,
		def: func(int64) any { return int64(0) },
		set: func(md *Metadata, v any) { md.NumberSamples = v.(int64) },
	},
	{
		name: FieldChannelMappings, kind: fieldIntArray,
		def: func(n int64) any { return lo.RangeFrom(int64(0), int(n)) },
		set: func(md *Metadata, v any) { md.Channels.Mappings = v.([]int64) },
	},
	{
		name: FieldChannelNames, kind: fieldTextArray,
		def: func(n int64) any { return make([]string, n) },
		set: func(md *Metadata, v any) { md.Channels.Names = v.([]string) },
	},
	{
		name: FieldChannelInputRanges, kind: fieldRangeArray,
		def: func(n int64) any { return make([][2]float64, n) },
		set: func(md *Metadata, v any) { md.Channels.InputRanges = v.([][2]float64) },
	},
	{
		name: FieldOffsets, kind: fieldFloatArray,
		def: func(n int64) any { return make([]float64, n) },
		set: func(md *Metadata, v any) { md.Channels.Offsets = v.([]float64) },
	},
	{
		name: FieldScalings, kind: fieldFloatArray,
		def: func(n int64) any { return lo.Times(int(n), func(int) float64 { return 1 }) },
		set: func(md *Metadata, v any) { md.Channels.Scalings = v.([]float64) },
	},
	{
		name: FieldUnits, kind: fieldTextArray,
		def: func(n int64) any { return make([]string, n) },
		set: func(md *Metadata, v any) { md.Channels.Units = v.([]string) },
	},
}

// Normalize validates a raw metadata record for numberChannels channels
// and returns it in canonical form, with absent optional fields filled in.
// The returned error is a *FieldError wrapping one of ErrTypeMismatch,
// ErrShapeMismatch, ErrUnknownField or ErrInvalidChannelCount. fields is
// not modified.
func Normalize(fields Fields, numberChannels int64) (Metadata, error) {
	if numberChannels < 1 {
		return Metadata{}, fieldError(FieldNumberChannels, ErrInvalidChannelCount, "got %d", numberChannels)
	}

	unknown := lo.Filter(lo.Keys(map[string]any(fields)), func(name string, _ int) bool {
		return !slices.ContainsFunc(schema, func(f fieldSpec) bool { return f.name == name })
	})
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return Metadata{}, fieldError(unknown[0], ErrUnknownField, "")
	}

	var md Metadata
	for _, f := range schema {
		raw, ok := fields[f.name]
		if !ok {
			f.set(&md, f.def(numberChannels))
			continue
		}

		v, err := f.parse(raw, numberChannels)
		if err != nil {
			return Metadata{}, err
		}
		f.set(&md, v)
	}

	if md.NumberChannels != numberChannels {
		return Metadata{}, fieldError(FieldNumberChannels, ErrShapeMismatch,
			"record has %d channels, expected %d", md.NumberChannels, numberChannels)
	}
	if md.NumberSamples < 0 {
		return Metadata{}, fieldError(FieldNumberSamples, ErrShapeMismatch, "negative sample count %d", md.NumberSamples)
	}

	return md, nil
}

// parse type checks a supplied value and checks its shape against n. The
// result never aliases raw.
func (f fieldSpec) parse(raw any, n int64) (any, error) {
	mismatch := func() error {
		return fieldError(f.name, ErrTypeMismatch, "unexpected %T", raw)
	}
	length := func(got int) error {
		if int64(got) != n {
			return fieldError(f.name, ErrShapeMismatch, "%d entries for %d channels", got, n)
		}
		return nil
	}

	switch f.kind {
	case fieldText:
		s, ok := text(raw)
		if !ok {
			return nil, mismatch()
		}
		return s, nil

	case fieldFloat:
		v, ok := raw.(float64)
		if !ok {
			return nil, mismatch()
		}
		return v, nil

	case fieldInt:
		v, ok := raw.(int64)
		if !ok {
			return nil, mismatch()
		}
		return v, nil

	case fieldStartTime:
		switch v := raw.(type) {
		case [6]float64:
			return v, nil
		case []float64:
			if len(v) != 6 {
				return nil, fieldError(f.name, ErrShapeMismatch, "%d elements, expected 6", len(v))
			}
			return [6]float64(v), nil
		}
		return nil, mismatch()

	case fieldIntArray:
		v, ok := raw.([]int64)
		if !ok {
			return nil, mismatch()
		}
		if err := length(len(v)); err != nil {
			return nil, err
		}
		return slices.Clone(v), nil

	case fieldFloatArray:
		v, ok := raw.([]float64)
		if !ok {
			return nil, mismatch()
		}
		if err := length(len(v)); err != nil {
			return nil, err
		}
		return slices.Clone(v), nil

	case fieldTextArray:
		var out []string
		switch v := raw.(type) {
		case []string:
			out = slices.Clone(v)
		case [][]byte:
			out = lo.Map(v, func(b []byte, _ int) string { return string(b) })
		default:
			return nil, mismatch()
		}
		if err := length(len(out)); err != nil {
			return nil, err
		}
		return out, nil

	case fieldRangeArray:
		var out [][2]float64
		switch v := raw.(type) {
		case [][2]float64:
			out = slices.Clone(v)
		case [][]float64:
			out = make([][2]float64, len(v))
			for i, pair := range v {
				if len(pair) != 2 {
					return nil, fieldError(f.name, ErrShapeMismatch, "row %d has %d columns, expected 2", i, len(pair))
				}
				out[i] = [2]float64(pair)
			}
		default:
			return nil, mismatch()
		}
		if err := length(len(out)); err != nil {
			return nil, err
		}
		return out, nil
	}

	return nil, mismatch()
}

// text accepts either textual representation and returns a string.
func text(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// Fields returns md as a raw record. Nil channel slices and a zero
// SampleFrequency or Bits are left out so that normalization fills them
// in. NumberSamples is left out since it is derived from the data block.
func (md Metadata) Fields() Fields {
	fields := Fields{
		FieldVendorDriverDescription: md.VendorDriverDescription,
		FieldDeviceName:              md.DeviceName,
		FieldDeviceID:                md.DeviceID,
		FieldTriggerType:             md.TriggerType,
		FieldStartTime:               md.StartTime,
		FieldInputType:               md.InputType,
		FieldNumberChannels:          md.NumberChannels,
	}
	if md.SampleFrequency != 0 {
		fields[FieldSampleFrequency] = md.SampleFrequency
	}
	if md.Bits != 0 {
		fields[FieldBits] = md.Bits
	}

	cs := md.Channels
	if cs.Mappings != nil {
		fields[FieldChannelMappings] = cs.Mappings
	}
	if cs.Names != nil {
		fields[FieldChannelNames] = cs.Names
	}
	if cs.InputRanges != nil {
		fields[FieldChannelInputRanges] = cs.InputRanges
	}
	if cs.Offsets != nil {
		fields[FieldOffsets] = cs.Offsets
	}
	if cs.Scalings != nil {
		fields[FieldScalings] = cs.Scalings
	}
	if cs.Units != nil {
		fields[FieldUnits] = cs.Units
	}

	return fields
}

// attrs returns the stored form of every field of a normalized record.
func (md Metadata) attrs() map[string]any {
	cs := md.Channels
	return map[string]any{
		FieldVendorDriverDescription: md.VendorDriverDescription,
		FieldDeviceName:              md.DeviceName,
		FieldDeviceID:                md.DeviceID,
		FieldTriggerType:             md.TriggerType,
		FieldStartTime:               md.StartTime[:],
		FieldSampleFrequency:         md.SampleFrequency,
		FieldInputType:               md.InputType,
		FieldNumberChannels:          md.NumberChannels,
		FieldBits:                    md.Bits,
		FieldNumberSamples:           md.NumberSamples,
		FieldChannelMappings:         cs.Mappings,
		FieldChannelNames:            cs.Names,
		FieldChannelInputRanges:      cs.InputRanges,
		FieldOffsets:                 cs.Offsets,
		FieldScalings:                cs.Scalings,
		FieldUnits:                   cs.Units,
	}
}
