// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/biggrid/grid"
)

// SplitEqual splits the subrange sr of the given task dimensionality
// into n contiguous chunks along axis 0. Chunks have equal extent except
// the last, which absorbs the remainder; trailing axes are inherited
// unchanged, so a 2-D split is a row split. The chunks' union is sr and
// their interiors are disjoint. 3-D splits are not implemented and
// return a configuration error.
func SplitEqual(sr grid.Subrange, dim, n int) ([]grid.Subrange, error) {
	if n <= 0 {
		panic("split into zero chunks")
	}
	switch dim {
	case 1, 2:
	case 3:
		return nil, errors.E(errors.NotSupported, "3-D equal split not implemented")
	default:
		return nil, errors.E(errors.Invalid, "invalid task dimensionality")
	}
	var (
		chunks = make([]grid.Subrange, n)
		step   = sr.Range[0] / uint64(n)
		off    = sr.Offset[0]
	)
	for i := range chunks {
		chunk := sr
		chunk.Offset[0] = off
		chunk.Range[0] = step
		if i == n-1 {
			chunk.Range[0] += sr.Range[0] % uint64(n)
		}
		chunks[i] = chunk
		off += step
	}
	return chunks, nil
}
