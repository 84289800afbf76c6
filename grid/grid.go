// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package grid implements a small algebra over three-dimensional,
// half-open integer boxes and normalized unions of such boxes (regions).
// It is the coordinate substrate for buffer residency tracking and
// command-graph construction: lower-dimensional data is represented in
// three dimensions with extent 1 along unused trailing axes.
//
// All coordinates are unsigned 64-bit element indices. Areas are element
// counts; overflow of the extent product is the caller's responsibility
// (buffers are expected to be bounded by their global size).
package grid

import "fmt"

// Dims is the fixed dimensionality of all points, boxes and regions.
const Dims = 3

// A Point is a single coordinate in the element grid.
type Point [Dims]uint64

// A Range is a (per-axis) extent in the element grid.
type Range [Dims]uint64

// Pt is a convenience constructor for a Point.
func Pt(x, y, z uint64) Point { return Point{x, y, z} }

// Rng is a convenience constructor for a Range.
func Rng(x, y, z uint64) Range { return Range{x, y, z} }

// Area returns the number of elements covered by the range.
func (r Range) Area() uint64 {
	return r[0] * r[1] * r[2]
}

// A Box is a half-open axis-aligned box [Min, Max). A box with
// Max[d] <= Min[d] along any axis is empty.
type Box struct {
	Min, Max Point
}

// MakeBox returns the box [min, min+rng).
func MakeBox(min Point, rng Range) Box {
	var max Point
	for d := 0; d < Dims; d++ {
		max[d] = satAdd(min[d], rng[d])
	}
	return Box{min, max}
}

// Empty tells whether the box covers no elements.
func (b Box) Empty() bool {
	for d := 0; d < Dims; d++ {
		if b.Max[d] <= b.Min[d] {
			return true
		}
	}
	return false
}

// Range returns the box's per-axis extent. It is zero along axes where
// the box is empty.
func (b Box) Range() Range {
	var r Range
	for d := 0; d < Dims; d++ {
		if b.Max[d] > b.Min[d] {
			r[d] = b.Max[d] - b.Min[d]
		}
	}
	return r
}

// Area returns the number of elements covered by the box.
func (b Box) Area() uint64 {
	if b.Empty() {
		return 0
	}
	return b.Range().Area()
}

// Intersect returns the intersection of boxes b and c and whether it is
// nonempty.
func (b Box) Intersect(c Box) (Box, bool) {
	var i Box
	for d := 0; d < Dims; d++ {
		i.Min[d] = maxu(b.Min[d], c.Min[d])
		i.Max[d] = minu(b.Max[d], c.Max[d])
	}
	if i.Empty() {
		return Box{}, false
	}
	return i, true
}

// Contains tells whether point p lies inside the box.
func (b Box) Contains(p Point) bool {
	for d := 0; d < Dims; d++ {
		if p[d] < b.Min[d] || p[d] >= b.Max[d] {
			return false
		}
	}
	return true
}

// String returns the box formatted as [min0,max0)x[min1,max1)x[min2,max2).
func (b Box) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)x[%d,%d)",
		b.Min[0], b.Max[0], b.Min[1], b.Max[1], b.Min[2], b.Max[2])
}

// subtract returns a set of disjoint boxes covering b with c removed.
// The result is not canonical; callers normalize.
func subtract(b, c Box) []Box {
	i, ok := b.Intersect(c)
	if !ok {
		return []Box{b}
	}
	var out []Box
	rem := b
	for d := 0; d < Dims; d++ {
		if rem.Min[d] < i.Min[d] {
			lo := rem
			lo.Max[d] = i.Min[d]
			out = append(out, lo)
			rem.Min[d] = i.Min[d]
		}
		if i.Max[d] < rem.Max[d] {
			hi := rem
			hi.Min[d] = i.Max[d]
			out = append(out, hi)
			rem.Max[d] = i.Max[d]
		}
	}
	return out
}

func satAdd(a, b uint64) uint64 {
	if c := a + b; c >= a {
		return c
	}
	return ^uint64(0)
}

func minu(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxu(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
