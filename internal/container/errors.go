// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package container

import "errors"

var (
	// ErrNotContainer is returned when a file does not start with the
	// container signature.
	ErrNotContainer = errors.New("not a container file")
	// ErrCorrupt is returned when committed content fails validation.
	ErrCorrupt = errors.New("container corrupt")
	// ErrChecksum is returned when a chunk checksum does not match.
	ErrChecksum = errors.New("chunk checksum mismatch")
	// ErrInvalidCompression is returned for unknown algorithms and
	// out-of-range levels.
	ErrInvalidCompression = errors.New("invalid compression")

	ErrReadOnly        = errors.New("container opened read-only")
	ErrClosed          = errors.New("container closed")
	ErrExists          = errors.New("object already exists")
	ErrNotFound        = errors.New("object not found")
	ErrInvalidLayout   = errors.New("invalid dataset layout")
	ErrOutOfBounds     = errors.New("region out of bounds")
	ErrUnsupportedKind = errors.New("unsupported attribute value")
)
