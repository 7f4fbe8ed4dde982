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

	"github.com/Masterminds/semver/v3"
)

// Version is a canonical file schema version.
type Version string

const (
	// Version1_0 is the first stable schema.
	Version1_0 Version = "1.0.0"
	// Version1_1 adds the /Software provenance string.
	Version1_1 Version = "1.1.0"
)

var (
	oldestVersion = semver.MustParse("0.0.1")
	version1_0    = semver.MustParse(string(Version1_0))
	version1_1    = semver.MustParse(string(Version1_1))
)

// ResolveVersion maps a version string onto a supported schema version.
// Every release from 0.0.1 up to and including 1.0.0 is treated as 1.0.0.
// Later versions must match a canonical tag exactly.
func ResolveVersion(s string) (Version, error) {
	if v, err := semver.StrictNewVersion(s); err == nil && v.Equal(version1_1) {
		return Version1_1, nil
	}

	v, err := semver.NewVersion(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, s)
	}
	if v.Compare(oldestVersion) >= 0 && v.Compare(version1_0) <= 0 {
		return Version1_0, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, s)
}

// AtLeast reports whether v is the same as or newer than o.
func (v Version) AtLeast(o Version) bool {
	a, err := semver.NewVersion(string(v))
	if err != nil {
		return false
	}
	b, err := semver.NewVersion(string(o))
	if err != nil {
		return false
	}
	return a.Compare(b) >= 0
}
