// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package container implements a small hierarchical store: typed
// attributes and growable, chunked, filtered two-dimensional datasets
// addressed by slash-separated paths.
//
// A container file is append-only. It starts with a fixed superblock and
// continues with a sequence of frames, each one recording a single change
// (attribute set, dataset created, dataset resized, chunk written). Flush
// appends a commit frame and syncs the file. When a file is opened only
// committed changes are visible; frames after the last commit were never
// acknowledged and are dropped.
//
// A File is not safe for concurrent use, and a file must not be opened for
// writing by more than one process.
package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
	"go.uber.org/multierr"
)

const (
	// signature follows the HDF5 convention of a high-bit byte and line
	// ending bytes that break under text-mode transfer.
	signature      = "\x89ACQ\r\n\x1a\n"
	formatVersion  = 1
	superblockSize = 16

	frameHeaderSize = 13 // kind (1) + length (4) + digest (8)
	digestSize      = 8
	maxFrameSize    = 1 << 30
)

type frameKind uint8

const (
	frameAttr frameKind = iota + 1
	frameDataset
	frameResize
	frameChunk
	frameCommit
)

type attrFrame struct {
	Path string `cbor:"p"`
	Attr Attr   `cbor:"a"`
}

type datasetFrame struct {
	Path   string `cbor:"p"`
	Layout Layout `cbor:"l"`
}

type resizeFrame struct {
	Path string `cbor:"p"`
	Rows int64  `cbor:"r"`
}

type chunkFrame struct {
	Path  string `cbor:"p"`
	Row   int64  `cbor:"r"`
	Col   int64  `cbor:"c"`
	Codec Codec  `cbor:"z"`
	Size  int    `cbor:"n"`
	Sum   []byte `cbor:"h,omitempty"`
	Data  []byte `cbor:"d"`
}

type commitFrame struct {
	Seq uint64 `cbor:"s"`
}

// Option configures a File.
type Option func(*File)

// WithLogger sets the logger used for replay and lifecycle events.
func WithLogger(log zerolog.Logger) Option {
	return func(f *File) {
		f.log = log
	}
}

// File is an open container.
type File struct {
	name     string
	fd       *os.File
	readOnly bool
	closed   bool
	end      int64  // offset of the next frame
	dirty    bool   // frames written since the last commit
	seq      uint64 // last commit sequence number
	attrs    map[string]Attr
	datasets map[string]*Dataset
	log      zerolog.Logger
}

func newFile(name string, fd *os.File, readOnly bool, opts []Option) *File {
	f := &File{
		name:     name,
		fd:       fd,
		readOnly: readOnly,
		attrs:    make(map[string]Attr),
		datasets: make(map[string]*Dataset),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create creates a new container, truncating any existing file. Nothing is
// durable until the first Flush.
func Create(name string, opts ...Option) (*File, error) {
	fd, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	f := newFile(name, fd, false, opts)

	sb := make([]byte, superblockSize)
	copy(sb, signature)
	binary.LittleEndian.PutUint16(sb[len(signature):], formatVersion)
	if _, err := fd.WriteAt(sb, 0); err != nil {
		return nil, multierr.Combine(fmt.Errorf("error writing superblock: %w", err), fd.Close())
	}
	f.end = superblockSize

	f.log.Debug().Str("path", name).Msg("container created")

	return f, nil
}

// Open opens an existing container read-only and replays its committed
// state.
func Open(name string, opts ...Option) (*File, error) {
	fd, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	f := newFile(name, fd, true, opts)
	if err := f.replay(); err != nil {
		return nil, multierr.Combine(err, fd.Close())
	}

	return f, nil
}

// Name returns the file name the container was opened with.
func (f *File) Name() string {
	return f.name
}

// SetAttr sets the attribute at path, replacing any previous value.
func (f *File) SetAttr(p string, v any) error {
	if err := f.writable(); err != nil {
		return err
	}

	p, err := cleanPath(p)
	if err != nil {
		return err
	}
	if _, ok := f.datasets[p]; ok {
		return fmt.Errorf("%w: %s is a dataset", ErrExists, p)
	}

	a, err := NewAttr(v)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", p, err)
	}

	if _, err := f.writeFrame(frameAttr, attrFrame{Path: p, Attr: a}); err != nil {
		return err
	}
	f.attrs[p] = a

	return nil
}

// Attr returns the attribute at path.
func (f *File) Attr(p string) (Attr, bool) {
	p, err := cleanPath(p)
	if err != nil {
		return Attr{}, false
	}
	a, ok := f.attrs[p]
	return a, ok
}

// Attrs returns the attributes that are direct children of group, keyed by
// their base name.
func (f *File) Attrs(group string) map[string]Attr {
	group, err := cleanPath(group)
	if err != nil {
		return nil
	}

	out := make(map[string]Attr)
	for p, a := range f.attrs {
		if path.Dir(p) == group && p != group {
			out[path.Base(p)] = a
		}
	}
	return out
}

// Datasets returns the paths of all datasets, sorted.
func (f *File) Datasets() []string {
	out := make([]string, 0, len(f.datasets))
	for p := range f.datasets {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CreateDataset creates an empty dataset with zero rows.
func (f *File) CreateDataset(p string, layout Layout) (*Dataset, error) {
	if err := f.writable(); err != nil {
		return nil, err
	}

	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	if _, ok := f.datasets[p]; ok {
		return nil, fmt.Errorf("%w: dataset %s", ErrExists, p)
	}
	if _, ok := f.attrs[p]; ok {
		return nil, fmt.Errorf("%w: %s is an attribute", ErrExists, p)
	}

	layout, err = layout.normalize()
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", p, err)
	}

	if _, err := f.writeFrame(frameDataset, datasetFrame{Path: p, Layout: layout}); err != nil {
		return nil, err
	}

	d := newDataset(f, p, layout)
	f.datasets[p] = d

	f.log.Debug().Str("path", f.name).Str("dataset", p).
		Int("chunk_rows", layout.ChunkRows).Int("chunk_cols", layout.ChunkCols).
		Str("codec", string(layout.Codec)).Msg("dataset created")

	return d, nil
}

// Dataset returns the dataset at path.
func (f *File) Dataset(p string) (*Dataset, bool) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, false
	}
	d, ok := f.datasets[p]
	return d, ok
}

// Flush commits every change made since the previous flush and syncs the
// file to stable storage.
func (f *File) Flush() error {
	if err := f.writable(); err != nil {
		return err
	}

	if f.dirty {
		if _, err := f.writeFrame(frameCommit, commitFrame{Seq: f.seq + 1}); err != nil {
			return err
		}
		f.seq++
		f.dirty = false
	}

	if err := f.fd.Sync(); err != nil {
		return fmt.Errorf("error syncing container: %w", err)
	}

	return nil
}

// Close flushes pending changes and releases the file. Calling Close more
// than once is a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}

	var err error
	if !f.readOnly {
		err = f.Flush()
	}
	f.closed = true

	return multierr.Append(err, f.fd.Close())
}

// Abort releases the file without committing pending changes, which are
// lost. Calling Abort after Close is a no-op.
func (f *File) Abort() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if f.dirty {
		f.log.Warn().Str("path", f.name).Msg("aborting with uncommitted changes")
	}

	return f.fd.Close()
}

func (f *File) writable() error {
	if f.closed {
		return ErrClosed
	}
	if f.readOnly {
		return ErrReadOnly
	}
	return nil
}

// writeFrame appends a frame and returns its offset.
func (f *File) writeFrame(kind frameKind, v any) (int64, error) {
	payload, err := marshal(v)
	if err != nil {
		return 0, fmt.Errorf("error encoding frame: %w", err)
	}
	if len(payload) > maxFrameSize {
		return 0, fmt.Errorf("frame of %d bytes exceeds limit", len(payload))
	}

	buf := make([]byte, frameHeaderSize+len(payload))
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(payload)))
	sum := blake3.Sum256(payload)
	copy(buf[5:frameHeaderSize], sum[:digestSize])
	copy(buf[frameHeaderSize:], payload)

	off := f.end
	if _, err := f.fd.WriteAt(buf, off); err != nil {
		return 0, fmt.Errorf("error writing frame: %w", err)
	}
	f.end += int64(len(buf))
	if kind != frameCommit {
		f.dirty = true
	}

	return off, nil
}

// readFrame reads and verifies the frame at off.
func (f *File) readFrame(off int64) (frameKind, []byte, error) {
	if f.closed {
		return 0, nil, ErrClosed
	}

	hdr := make([]byte, frameHeaderSize)
	if _, err := f.fd.ReadAt(hdr, off); err != nil {
		return 0, nil, fmt.Errorf("error reading frame header: %w", err)
	}

	n := binary.LittleEndian.Uint32(hdr[1:5])
	if n > maxFrameSize {
		return 0, nil, fmt.Errorf("%w: frame at %d claims %d bytes", ErrCorrupt, off, n)
	}

	payload := make([]byte, n)
	if _, err := f.fd.ReadAt(payload, off+frameHeaderSize); err != nil {
		return 0, nil, fmt.Errorf("error reading frame: %w", err)
	}

	sum := blake3.Sum256(payload)
	if !bytes.Equal(sum[:digestSize], hdr[5:frameHeaderSize]) {
		return 0, nil, fmt.Errorf("%w: digest mismatch in frame at %d", ErrCorrupt, off)
	}

	return frameKind(hdr[0]), payload, nil
}

func (f *File) replay() error {
	fi, err := f.fd.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()

	sb := make([]byte, superblockSize)
	if _, err := f.fd.ReadAt(sb, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrNotContainer
		}
		return fmt.Errorf("error reading superblock: %w", err)
	}
	if string(sb[:len(signature)]) != signature {
		return ErrNotContainer
	}
	if v := binary.LittleEndian.Uint16(sb[len(signature):]); v != formatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrNotContainer, v)
	}

	var (
		staged    []func() error
		committed int
		off       = int64(superblockSize)
		end       = off // offset after the last commit
		bad       error // first invalid frame since the last commit
		n         = make([]byte, 4)
	)

	// An invalid frame only means corruption if a valid commit follows it.
	// Otherwise it belongs to a write that was never acknowledged.
	for off < size {
		if off+frameHeaderSize > size {
			break
		}
		if _, err := f.fd.ReadAt(n, off+1); err != nil {
			return fmt.Errorf("error reading frame header: %w", err)
		}
		next := off + frameHeaderSize + int64(binary.LittleEndian.Uint32(n))
		if next > size {
			break
		}

		kind, payload, err := f.readFrame(off)
		switch {
		case err != nil && !errors.Is(err, ErrCorrupt):
			return err

		case err != nil:
			if bad == nil {
				bad = err
			}

		case kind == frameCommit:
			if bad != nil {
				return bad
			}
			var c commitFrame
			if err := unmarshal(payload, &c); err != nil {
				bad = fmt.Errorf("%w: commit frame at %d: %v", ErrCorrupt, off, err)
				break
			}
			for _, apply := range staged {
				if err := apply(); err != nil {
					return err
				}
			}
			committed += len(staged)
			staged = staged[:0]
			f.seq = c.Seq
			end = next

		case bad == nil:
			apply, err := f.stage(kind, payload, off)
			if err != nil {
				bad = err
				break
			}
			staged = append(staged, apply)
		}

		off = next
	}

	if f.seq == 0 {
		if bad != nil {
			return bad
		}
		return fmt.Errorf("%w: no committed state", ErrCorrupt)
	}

	if end < size {
		ev := f.log.Warn().Str("path", f.name).Int("frames", len(staged)).Int64("bytes", size-end)
		if bad != nil {
			ev = ev.Err(bad)
		}
		ev.Msg("discarding uncommitted tail")
	}

	f.end = end
	f.log.Debug().Str("path", f.name).Uint64("commits", f.seq).Int("frames", committed).
		Msg("container replayed")

	return nil
}

// stage decodes a frame and returns the change it describes, to be applied
// once a commit frame confirms it.
func (f *File) stage(kind frameKind, payload []byte, off int64) (func() error, error) {
	corrupt := func(err error) error {
		return fmt.Errorf("%w: frame at %d: %v", ErrCorrupt, off, err)
	}

	switch kind {
	case frameAttr:
		var fr attrFrame
		if err := unmarshal(payload, &fr); err != nil {
			return nil, corrupt(err)
		}
		if err := fr.Attr.validate(); err != nil {
			return nil, corrupt(err)
		}
		return func() error {
			f.attrs[fr.Path] = fr.Attr
			return nil
		}, nil

	case frameDataset:
		var fr datasetFrame
		if err := unmarshal(payload, &fr); err != nil {
			return nil, corrupt(err)
		}
		if err := fr.Layout.validate(); err != nil {
			return nil, corrupt(err)
		}
		return func() error {
			if _, ok := f.datasets[fr.Path]; ok {
				return corrupt(fmt.Errorf("dataset %s created twice", fr.Path))
			}
			f.datasets[fr.Path] = newDataset(f, fr.Path, fr.Layout)
			return nil
		}, nil

	case frameResize:
		var fr resizeFrame
		if err := unmarshal(payload, &fr); err != nil {
			return nil, corrupt(err)
		}
		return func() error {
			d, ok := f.datasets[fr.Path]
			if !ok {
				return corrupt(fmt.Errorf("resize of unknown dataset %s", fr.Path))
			}
			if fr.Rows < d.rows {
				return corrupt(fmt.Errorf("dataset %s shrinks from %d to %d rows", fr.Path, d.rows, fr.Rows))
			}
			d.rows = fr.Rows
			return nil
		}, nil

	case frameChunk:
		var fr chunkFrame
		if err := unmarshal(payload, &fr); err != nil {
			return nil, corrupt(err)
		}
		return func() error {
			d, ok := f.datasets[fr.Path]
			if !ok {
				return corrupt(fmt.Errorf("chunk of unknown dataset %s", fr.Path))
			}
			d.chunks[chunkKey{row: fr.Row, col: fr.Col}] = off
			return nil
		}, nil

	default:
		return nil, corrupt(fmt.Errorf("unknown frame kind %d", kind))
	}
}

func cleanPath(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: path %q is not absolute", ErrNotFound, p)
	}
	return path.Clean(p), nil
}
