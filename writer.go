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
	"path"
	"runtime"
	"time"

	"github.com/OpenPSG/acquisition/internal/container"
	"github.com/rs/zerolog"
)

// SoftwareVersion is recorded in the /Software attribute of files written
// with schema 1.1 or later.
const SoftwareVersion = "0.1"

var createDataset = (*container.File).CreateDataset

// Writer writes acquisition files. A Writer must not be used from more than
// one goroutine, and no other writer or reader may have the same file open.
type Writer struct {
	f        *container.File
	data     *container.Dataset
	version  Version
	md       Metadata
	storage  DataType
	acquired DataType
	err      error // sticky I/O failure
	log      zerolog.Logger
}

// Create creates a new acquisition file at name, truncating any existing
// file. The header and an empty data block are durable when Create returns.
// A nil cfg selects DefaultConfig.
func Create(name string, md Metadata, cfg *Config) (*Writer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	version, err := ResolveVersion(cfg.Version)
	if err != nil {
		return nil, err
	}

	acquired, err := ParseDataType(cfg.DataType)
	if err != nil {
		return nil, fmt.Errorf("data type: %w", err)
	}
	storage, err := ParseDataType(cfg.StorageType)
	if err != nil {
		return nil, fmt.Errorf("storage type: %w", err)
	}

	norm, err := Normalize(md.Fields(), md.NumberChannels)
	if err != nil {
		return nil, err
	}

	chunkRows, chunkCols, err := cfg.Chunks.Normalize(norm.NumberChannels)
	if err != nil {
		return nil, err
	}
	if chunkRows != 0 && !container.ChunkFits(chunkRows, chunkCols, storage.Size()) {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidChunkSpec, cfg.Chunks, container.MaxChunkBytes)
	}

	if err := container.ValidateCompression(cfg.Compression, cfg.CompressionLevel); err != nil {
		return nil, err
	}

	f, err := container.Create(name, container.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("error creating file: %w", err)
	}

	ok := false
	defer func() {
		if !ok {
			_ = f.Abort()
		}
	}()

	type attr struct {
		path  string
		value any
	}
	attrs := []attr{
		{pathType, FileType},
		{pathVersion, string(version)},
	}
	if version.AtLeast(Version1_1) {
		attrs = append(attrs, attr{pathSoftware, software()})
	}
	info := norm.attrs()
	for _, fs := range schema {
		attrs = append(attrs, attr{path.Join(pathInfo, fs.name), info[fs.name]})
	}
	attrs = append(attrs,
		attr{pathDataType, acquired.String()},
		attr{pathStorageType, storage.String()},
	)

	for _, a := range attrs {
		if err := f.SetAttr(a.path, a.value); err != nil {
			return nil, fmt.Errorf("error writing header: %w", err)
		}
	}

	data, err := createDataset(f, pathData, container.Layout{
		DType:     storage.String(),
		ElemSize:  storage.Size(),
		Cols:      int(norm.NumberChannels),
		ChunkRows: chunkRows,
		ChunkCols: chunkCols,
		Codec:     container.Codec(cfg.Compression),
		Level:     cfg.CompressionLevel,
		Shuffle:   cfg.Shuffle,
		Checksum:  cfg.Checksum,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating data block: %w", err)
	}

	if err := f.Flush(); err != nil {
		return nil, err
	}
	ok = true

	w := &Writer{
		f:        f,
		data:     data,
		version:  version,
		md:       norm,
		storage:  storage,
		acquired: acquired,
		log:      log.With().Str("path", name).Logger(),
	}

	w.log.Info().Str("version", string(version)).Int64("channels", norm.NumberChannels).
		Str("storage_type", storage.String()).Str("data_type", acquired.String()).
		Msg("acquisition file created")

	return w, nil
}

// Append adds samples to the end of the data block and flushes the file.
// samples must have one column per channel; it is converted to the storage
// type if needed. Once Append returns nil the samples are durable.
func (w *Writer) Append(samples *Block) error {
	if err := w.usable(); err != nil {
		return err
	}

	if samples == nil {
		return fmt.Errorf("%w: nil block", ErrShapeMismatch)
	}
	if err := samples.validate(); err != nil {
		return err
	}
	if int64(samples.Cols) != w.md.NumberChannels {
		return fmt.Errorf("%w: block has %d columns, file has %d channels", ErrShapeMismatch, samples.Cols, w.md.NumberChannels)
	}

	stored := samples.Convert(w.storage)
	start := w.data.Rows()
	total := start + int64(samples.Rows)

	if err := w.data.Resize(total); err != nil {
		return w.fail(err)
	}
	if err := w.data.WriteRows(start, stored.Data); err != nil {
		return w.fail(err)
	}
	if err := w.f.SetAttr(path.Join(pathInfo, FieldNumberSamples), total); err != nil {
		return w.fail(err)
	}
	if err := w.f.Flush(); err != nil {
		return w.fail(err)
	}

	w.md.NumberSamples = total
	w.log.Debug().Int("rows", samples.Rows).Int64("total", total).Msg("appended samples")

	return nil
}

// SetStartTime sets the acquisition start time: year, month, day, hour,
// minute and second.
func (w *Writer) SetStartTime(v []float64) error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(v) != 6 {
		return fieldError(FieldStartTime, ErrShapeMismatch, "%d elements, expected 6", len(v))
	}

	if err := w.f.SetAttr(path.Join(pathInfo, FieldStartTime), v); err != nil {
		return w.fail(err)
	}
	if err := w.f.Flush(); err != nil {
		return w.fail(err)
	}
	w.md.StartTime = [6]float64(v)

	return nil
}

// SetStartTimeFrom sets the start time from t.
func (w *Writer) SetStartTimeFrom(t time.Time) error {
	st := StartTimeOf(t)
	return w.SetStartTime(st[:])
}

// StartTime returns the acquisition start time.
func (w *Writer) StartTime() [6]float64 {
	return w.md.StartTime
}

// NumberSamples returns the number of rows appended so far.
func (w *Writer) NumberSamples() int64 {
	return w.md.NumberSamples
}

// Metadata returns the normalized metadata of the file.
func (w *Writer) Metadata() Metadata {
	return w.md.clone()
}

// Version returns the schema version being written.
func (w *Writer) Version() Version {
	return w.version
}

// StorageType returns the type samples are stored as.
func (w *Writer) StorageType() DataType {
	return w.storage
}

// DataType returns the type samples are decoded as.
func (w *Writer) DataType() DataType {
	return w.acquired
}

// Close flushes and closes the file. Calling Close more than once is a
// no-op. After a failed write, changes since the last successful Append are
// discarded rather than committed.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}

	f := w.f
	w.f, w.data = nil, nil

	if w.err != nil {
		return f.Abort()
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing file: %w", err)
	}

	w.log.Info().Int64("samples", w.md.NumberSamples).Msg("acquisition file closed")

	return nil
}

func (w *Writer) usable() error {
	if w.f == nil {
		return ErrClosed
	}
	return w.err
}

// fail records an I/O failure. The file is left at its last committed
// state and every later call returns the same error.
func (w *Writer) fail(err error) error {
	w.err = fmt.Errorf("writer failed: %w", err)
	w.log.Error().Err(err).Msg("write failed")
	return w.err
}

func software() string {
	return fmt.Sprintf("acquisition %s on Go %s %s/%s", SoftwareVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
