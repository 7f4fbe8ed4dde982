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

	"github.com/OpenPSG/acquisition/internal/container"
)

// Reader reads acquisition files. The file must not be written to while it
// is open for reading.
type Reader struct {
	f        *container.File
	data     *container.Dataset
	version  Version
	software string
	md       Metadata
	storage  DataType
	acquired DataType
}

// Open opens an acquisition file for reading and validates its header.
func Open(name string) (*Reader, error) {
	f, err := container.Open(name, container.WithLogger(log))
	if err != nil {
		if errors.Is(err, container.ErrNotContainer) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFileType, err)
		}
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	r := &Reader{f: f}
	if err := r.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}

	log.Debug().Str("path", name).Str("version", string(r.version)).
		Int64("channels", r.md.NumberChannels).Int64("samples", r.md.NumberSamples).
		Msg("acquisition file opened")

	return r, nil
}

func (r *Reader) readHeader() error {
	typ, err := r.text(pathType)
	if err != nil || typ != FileType {
		return fmt.Errorf("%w: %q", ErrUnsupportedFileType, typ)
	}

	v, err := r.text(pathVersion)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
	}
	if r.version, err = ResolveVersion(v); err != nil {
		return err
	}

	if r.version.AtLeast(Version1_1) {
		if r.software, err = r.text(pathSoftware); err != nil {
			return err
		}
	}

	fields, err := r.infoFields()
	if err != nil {
		return err
	}
	raw, ok := fields[FieldNumberChannels]
	if !ok {
		return fieldError(FieldNumberChannels, ErrMissingField, "")
	}
	n, ok := raw.(int64)
	if !ok {
		return fieldError(FieldNumberChannels, ErrTypeMismatch, "unexpected %T", raw)
	}
	if r.md, err = Normalize(fields, n); err != nil {
		return err
	}

	if r.acquired, err = r.dataType(pathDataType); err != nil {
		return err
	}
	if r.storage, err = r.dataType(pathStorageType); err != nil {
		return err
	}

	data, ok := r.f.Dataset(pathData)
	if !ok {
		return ErrMissingDataBlock
	}
	layout := data.Layout()
	if int64(layout.Cols) != n {
		return fmt.Errorf("%w: data block has %d columns, metadata has %d channels", ErrShapeMismatch, layout.Cols, n)
	}
	if layout.DType != r.storage.String() || layout.ElemSize != r.storage.Size() {
		return fmt.Errorf("%w: data block holds %s, storage type is %v", ErrTypeMismatch, layout.DType, r.storage)
	}
	if data.Rows() != r.md.NumberSamples {
		return fieldError(FieldNumberSamples, ErrShapeMismatch,
			"%d samples recorded, data block has %d rows", r.md.NumberSamples, data.Rows())
	}
	r.data = data

	return nil
}

// infoFields returns the raw metadata record. It is either stored as one
// attribute per field under /Info, or as a single record attribute at
// /Info whose scalar fields may be wrapped in one element arrays.
func (r *Reader) infoFields() (Fields, error) {
	fields := Fields{}

	if a, ok := r.f.Attr(pathInfo); ok {
		if a.Kind != container.KindRecord {
			return nil, fieldError(pathInfo, ErrTypeMismatch, "attribute of kind %s", a.Kind)
		}
		for name, v := range a.Value().(map[string]any) {
			fields[name] = unwrapRow(name, v)
		}
		return fields, nil
	}

	for name, a := range r.f.Attrs(pathInfo) {
		fields[name] = a.Value()
	}
	return fields, nil
}

// unwrapRow unwraps a scalar field stored as a single element array.
func unwrapRow(name string, v any) any {
	for _, f := range schema {
		if f.name != name {
			continue
		}
		switch f.kind {
		case fieldText, fieldFloat, fieldInt:
		default:
			return v
		}
		switch x := v.(type) {
		case []int64:
			if len(x) == 1 {
				return x[0]
			}
		case []float64:
			if len(x) == 1 {
				return x[0]
			}
		case [][]byte:
			if len(x) == 1 {
				return x[0]
			}
		}
	}
	return v
}

func (r *Reader) text(p string) (string, error) {
	a, ok := r.f.Attr(p)
	if !ok {
		return "", fieldError(p, ErrMissingField, "")
	}
	s, ok := text(a.Value())
	if !ok {
		return "", fieldError(p, ErrTypeMismatch, "attribute of kind %s", a.Kind)
	}
	return s, nil
}

func (r *Reader) dataType(p string) (DataType, error) {
	name, err := r.text(p)
	if err != nil {
		return 0, err
	}
	t, err := ParseDataType(name)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p, err)
	}
	return t, nil
}

// Version returns the schema version of the file.
func (r *Reader) Version() Version {
	return r.version
}

// Software returns the program that wrote the file. It is only recorded
// from schema 1.1 on.
func (r *Reader) Software() (string, bool) {
	return r.software, r.version.AtLeast(Version1_1)
}

// Metadata returns the normalized metadata of the file.
func (r *Reader) Metadata() Metadata {
	return r.md.clone()
}

// NumberSamples returns the number of rows in the data block.
func (r *Reader) NumberSamples() int64 {
	return r.md.NumberSamples
}

// StartTime returns the acquisition start time.
func (r *Reader) StartTime() [6]float64 {
	return r.md.StartTime
}

// StorageType returns the type samples are stored as.
func (r *Reader) StorageType() DataType {
	return r.storage
}

// DataType returns the type samples are decoded as.
func (r *Reader) DataType() DataType {
	return r.acquired
}

// Read returns the selected rows and channels in physical units. Samples
// are converted to the acquisition type, then each returned channel has
// its scaling and offset applied. The columns of the result follow the
// order of the channel selection.
func (r *Reader) Read(rows, channels Selection) (*Block, error) {
	if r.f == nil {
		return nil, ErrClosed
	}

	ri, err := rows.resolve(int(r.data.Rows()))
	if err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	ci, err := channels.resolve(int(r.md.NumberChannels))
	if err != nil {
		return nil, fmt.Errorf("channels: %w", err)
	}

	cols := int(r.md.NumberChannels)
	rowBytes := cols * r.storage.Size()
	raw := NewBlock(r.storage, len(ri), cols)

	at := 0
	for _, run := range runs(ri) {
		b, err := r.data.ReadRows(int64(run[0]), int64(run[1]))
		if err != nil {
			return nil, fmt.Errorf("error reading data block: %w", err)
		}
		copy(raw.Data[at*rowBytes:], b)
		at += run[1] - run[0]
	}

	block := raw.columns(ci).Convert(r.acquired)
	return decode(block, ci, r.md.Channels.Offsets, r.md.Channels.Scalings), nil
}

// ReadAll returns every sample in physical units.
func (r *Reader) ReadAll() (*Block, error) {
	return r.Read(All(), All())
}

// Close closes the file. Calling Close more than once is a no-op.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	f := r.f
	r.f, r.data = nil, nil
	return f.Close()
}
