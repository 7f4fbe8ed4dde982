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
	"slices"
)

type selectionKind uint8

const (
	selectAll selectionKind = iota
	selectSlice
	selectIndex
)

// Selection picks rows or columns of the data block. Negative positions
// count back from the end. The zero value selects everything.
type Selection struct {
	kind              selectionKind
	start, stop, step int
	idx               []int
}

// All selects every row or column.
func All() Selection {
	return Selection{}
}

// Range selects [start, stop).
func Range(start, stop int) Selection {
	return Slice(start, stop, 1)
}

// Slice selects every step-th position of [start, stop). step must be
// positive.
func Slice(start, stop, step int) Selection {
	return Selection{kind: selectSlice, start: start, stop: stop, step: step}
}

// Index selects the given positions, in order. Repeats are allowed.
func Index(idx ...int) Selection {
	return Selection{kind: selectIndex, idx: slices.Clone(idx)}
}

// resolve returns the concrete positions selected out of n.
func (s Selection) resolve(n int) ([]int, error) {
	switch s.kind {
	case selectSlice:
		if s.step < 1 {
			return nil, fmt.Errorf("%w: step %d", ErrOutOfRange, s.step)
		}
		start, stop := clamp(s.start, n), clamp(s.stop, n)
		out := make([]int, 0, max(0, (stop-start+s.step-1)/s.step))
		for i := start; i < stop; i += s.step {
			out = append(out, i)
		}
		return out, nil

	case selectIndex:
		out := make([]int, len(s.idx))
		for i, v := range s.idx {
			if v < 0 {
				v += n
			}
			if v < 0 || v >= n {
				return nil, fmt.Errorf("%w: %d of %d", ErrOutOfRange, s.idx[i], n)
			}
			out[i] = v
		}
		return out, nil

	default:
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
}

// clamp resolves a slice bound, counting negative values from the end.
func clamp(v, n int) int {
	if v < 0 {
		v += n
	}
	return min(max(v, 0), n)
}

// runs splits ascending consecutive positions into [start, stop) runs.
func runs(idx []int) [][2]int {
	var out [][2]int
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && idx[j] == idx[j-1]+1 {
			j++
		}
		out = append(out, [2]int{idx[i], idx[j-1] + 1})
		i = j
	}
	return out
}
