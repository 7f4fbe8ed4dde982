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
)

var (
	// ErrInvalidChannelCount is returned when NumberChannels is below one.
	ErrInvalidChannelCount = errors.New("there must be at least one channel")
	// ErrMissingField is returned when a required header field is absent.
	ErrMissingField = errors.New("missing field")
	// ErrTypeMismatch is returned when a field or block has the wrong type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrShapeMismatch is returned when a value has the wrong length or
	// dimensions for the channel count.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrUnknownField is returned for metadata fields outside the schema.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnsupportedDataType is returned for unrecognised type names.
	ErrUnsupportedDataType = errors.New("unsupported data type")
	// ErrUnsupportedVersion is returned for schema versions that cannot be
	// read or written.
	ErrUnsupportedVersion = errors.New("unsupported version")
	// ErrUnsupportedFileType is returned when a file is not an acquisition
	// container.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrInvalidChunkSpec is returned for chunk shapes that cannot be stored.
	ErrInvalidChunkSpec = errors.New("invalid chunk specification")
	// ErrMissingDataBlock is returned when a file has no /Data/Data dataset.
	ErrMissingDataBlock = errors.New("missing data block")
	// ErrOutOfRange is returned for selections outside the recorded block.
	ErrOutOfRange = errors.New("index out of range")
	// ErrClosed is returned by operations on a closed Reader or Writer.
	ErrClosed = errors.New("file closed")
)

// FieldError reports a metadata field that failed validation. Err is one of
// the sentinel errors above.
type FieldError struct {
	Field  string
	Err    error
	Detail string
}

func (e *FieldError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Field, e.Err, e.Detail)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldError(field string, err error, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Err: err, Detail: fmt.Sprintf(format, args...)}
}
