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
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	lzf "github.com/zhuyie/golzf"
)

// Codec names a chunk compression algorithm. Names are stored in chunk
// frames, changing them breaks file compatibility.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecGzip   Codec = "gzip"
	CodecZstd   Codec = "zstd"
	CodecLZ4    Codec = "lz4"
	CodecSnappy Codec = "snappy"
	CodecLZF    Codec = "lzf"
)

// ParseCodec parses a compression algorithm name.
func ParseCodec(name string) (Codec, error) {
	switch c := Codec(name); c {
	case CodecNone, CodecGzip, CodecZstd, CodecLZ4, CodecSnappy, CodecLZF:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown algorithm %q", ErrInvalidCompression, name)
	}
}

// ValidateCompression checks an algorithm name and level pair. Levels are
// only meaningful for gzip (0-9) and zstd (1-22), other algorithms ignore
// them.
func ValidateCompression(name string, level int) error {
	c, err := ParseCodec(name)
	if err != nil {
		return err
	}

	switch c {
	case CodecGzip:
		if level < gzip.NoCompression || level > gzip.BestCompression {
			return fmt.Errorf("%w: gzip level %d not in [0, 9]", ErrInvalidCompression, level)
		}
	case CodecZstd:
		if level < 1 || level > 22 {
			return fmt.Errorf("%w: zstd level %d not in [1, 22]", ErrInvalidCompression, level)
		}
	}

	return nil
}

// errIncompressible is returned by compress when the output would not be
// smaller than the input. The tile is then stored with CodecNone.
var errIncompressible = errors.New("data is incompressible")

func compress(c Codec, level int, data []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)

	switch c {
	case CodecNone:
		return data, nil
	case CodecGzip:
		out, err = compressGzip(data, level)
	case CodecZstd:
		out, err = compressZstd(data, level)
	case CodecLZ4:
		out, err = compressLZ4(data)
	case CodecSnappy:
		out = snappy.Encode(nil, data)
	case CodecLZF:
		out, err = compressLZF(data)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidCompression, c)
	}
	if err != nil {
		return nil, err
	}

	if len(out) >= len(data) {
		return nil, errIncompressible
	}

	return out, nil
}

func decompress(c Codec, data []byte, size int) ([]byte, error) {
	var (
		out []byte
		err error
	)

	switch c {
	case CodecNone:
		out = data
	case CodecGzip:
		var zr *gzip.Reader
		zr, err = gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		out, err = io.ReadAll(io.LimitReader(zr, int64(size)+1))
		if err == nil {
			err = zr.Close()
		}
	case CodecZstd:
		out, err = zstdDecoder.DecodeAll(data, make([]byte, 0, size))
	case CodecLZ4:
		out = make([]byte, size)
		var n int
		n, err = lz4.UncompressBlock(data, out)
		out = out[:n]
	case CodecSnappy:
		out, err = snappy.Decode(nil, data)
	case CodecLZF:
		out = make([]byte, size)
		var n int
		n, err = lzf.Decompress(data, out)
		out = out[:n]
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidCompression, c)
	}
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", c, err)
	}

	if len(out) != size {
		return nil, fmt.Errorf("%w: %s decompress: got %d bytes, expected %d", ErrCorrupt, c, len(out), size)
	}

	return out, nil
}

func compressGzip(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Encoders are kept per level. zstd.Encoder.EncodeAll and
// zstd.Decoder.DecodeAll are safe for concurrent use.
var (
	zstdMu       sync.Mutex
	zstdEncoders = map[int]*zstd.Encoder{}
	zstdDecoder  *zstd.Decoder
)

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("container: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte, level int) ([]byte, error) {
	zstdMu.Lock()
	enc, ok := zstdEncoders[level]
	if !ok {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			zstdMu.Unlock()
			return nil, fmt.Errorf("zstd compress: %w", err)
		}
		zstdEncoders[level] = enc
	}
	zstdMu.Unlock()

	return enc.EncodeAll(data, nil), nil
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if n == 0 {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func compressLZF(data []byte) ([]byte, error) {
	dst := make([]byte, len(data))
	n, err := lzf.Compress(data, dst)
	// LZF reports an undersized output buffer as an error, which here just
	// means the tile did not shrink.
	if err != nil || n == 0 {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

// shuffle groups the bytes of fixed-size elements by byte position, so the
// high-order bytes of similar samples end up adjacent. Trailing bytes that
// do not form a whole element are kept as-is.
func shuffle(data []byte, size int) []byte {
	if size <= 1 {
		return data
	}

	count := len(data) / size
	out := make([]byte, len(data))
	for i := 0; i < count; i++ {
		for j := 0; j < size; j++ {
			out[j*count+i] = data[i*size+j]
		}
	}
	copy(out[count*size:], data[count*size:])

	return out
}

// unshuffle reverses shuffle.
func unshuffle(data []byte, size int) []byte {
	if size <= 1 {
		return data
	}

	count := len(data) / size
	out := make([]byte, len(data))
	for i := 0; i < count; i++ {
		for j := 0; j < size; j++ {
			out[i*size+j] = data[j*count+i]
		}
	}
	copy(out[count*size:], data[count*size:])

	return out
}
