// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package acquisition_test

import (
	"testing"

	"github.com/OpenPSG/acquisition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveVersion(t *testing.T) {
	for _, v := range []string{"0.0.1", "0.1.0", "0.5.0", "0.9.13", "1.0.0"} {
		got, err := acquisition.ResolveVersion(v)
		require.NoError(t, err, v)
		assert.Equal(t, acquisition.Version1_0, got, v)
	}

	got, err := acquisition.ResolveVersion("1.1.0")
	require.NoError(t, err)
	assert.Equal(t, acquisition.Version1_1, got)

	for _, v := range []string{"", "0.0.0", "1.0.1", "1.1", "1.1.1", "1.2.0", "9.9.9", "v1.1.0", "one"} {
		_, err := acquisition.ResolveVersion(v)
		assert.ErrorIs(t, err, acquisition.ErrUnsupportedVersion, v)
	}
}

func TestVersionAtLeast(t *testing.T) {
	assert.True(t, acquisition.Version1_1.AtLeast(acquisition.Version1_0))
	assert.True(t, acquisition.Version1_1.AtLeast(acquisition.Version1_1))
	assert.False(t, acquisition.Version1_0.AtLeast(acquisition.Version1_1))
}
