// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package grid

import "fmt"

// MaxRange is a range of maximal extent along every axis. Passing it as a
// subrange's global size disables clamping in Region.
var MaxRange = Range{^uint64(0), ^uint64(0), ^uint64(0)}

// A Subrange is a contiguous box of a buffer or iteration space,
// identified by its offset and extent together with the global size of
// the space it is taken from. Lower-dimensional subranges carry extent 1
// (and global size 1) along trailing axes.
type Subrange struct {
	Offset Point
	Range  Range
	Global Range
}

// Box returns the subrange's box [Offset, Offset+Range), unclamped.
func (sr Subrange) Box() Box {
	return MakeBox(sr.Offset, sr.Range)
}

// Region returns the subrange's box clamped to [0, Global) along every
// axis, as a region.
func (sr Subrange) Region() Region {
	b := sr.Box()
	for d := 0; d < Dims; d++ {
		b.Min[d] = minu(b.Min[d], sr.Global[d])
		b.Max[d] = minu(b.Max[d], sr.Global[d])
	}
	return BoxRegion(b)
}

// Area returns the number of elements covered by the subrange's extent.
func (sr Subrange) Area() uint64 { return sr.Range.Area() }

// String returns the subrange formatted as offset+range/global.
func (sr Subrange) String() string {
	return fmt.Sprintf("%v+%v/%v", sr.Offset, sr.Range, sr.Global)
}
