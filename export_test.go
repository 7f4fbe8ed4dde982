// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package acquisition

import "github.com/OpenPSG/acquisition/internal/container"

// FailDataBlockCreation makes Create fail with err once the header has been
// written, until the returned function is called.
func FailDataBlockCreation(err error) (restore func()) {
	prev := createDataset
	createDataset = func(*container.File, string, container.Layout) (*container.Dataset, error) {
		return nil, err
	}
	return func() { createDataset = prev }
}
