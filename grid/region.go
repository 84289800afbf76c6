// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package grid

import (
	"sort"
	"strings"
)

// A Region is a set of grid elements represented as a normalized union of
// disjoint boxes. The canonical decomposition is computed by slab
// decomposition: boxes are maximal along the first axis on which they
// differ, pairwise disjoint, and stored in ascending coordinate order.
// Two regions covering the same elements therefore compare equal box by
// box. The zero Region is empty.
type Region struct {
	boxes []Box
}

// BoxRegion returns the region covering exactly box b.
func BoxRegion(b Box) Region {
	if b.Empty() {
		return Region{}
	}
	return Region{[]Box{b}}
}

// Normalize returns the region covering the union of the given boxes,
// which may overlap.
func Normalize(boxes []Box) Region {
	nonempty := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		if !b.Empty() {
			nonempty = append(nonempty, b)
		}
	}
	return Region{canonicalize(nonempty, 0)}
}

// Empty tells whether the region covers no elements.
func (r Region) Empty() bool { return len(r.boxes) == 0 }

// Area returns the total number of elements covered by the region.
func (r Region) Area() uint64 {
	var total uint64
	for _, b := range r.boxes {
		total += b.Area()
	}
	return total
}

// Boxes returns the region's canonical box decomposition. The returned
// slice is shared with the region and must not be modified.
func (r Region) Boxes() []Box { return r.boxes }

// NumBoxes returns the number of boxes in the canonical decomposition.
func (r Region) NumBoxes() int { return len(r.boxes) }

// Merge returns the union of regions r and s.
func (r Region) Merge(s Region) Region {
	if r.Empty() {
		return s
	}
	if s.Empty() {
		return r
	}
	all := make([]Box, 0, len(r.boxes)+len(s.boxes))
	all = append(all, r.boxes...)
	all = append(all, s.boxes...)
	return Region{canonicalize(all, 0)}
}

// Intersect returns the intersection of regions r and s.
func (r Region) Intersect(s Region) Region {
	var out []Box
	for _, b := range r.boxes {
		for _, c := range s.boxes {
			if i, ok := b.Intersect(c); ok {
				out = append(out, i)
			}
		}
	}
	return Region{canonicalize(out, 0)}
}

// Difference returns the region covering r with s removed.
func (r Region) Difference(s Region) Region {
	cur := r.boxes
	for _, c := range s.boxes {
		var next []Box
		for _, b := range cur {
			next = append(next, subtract(b, c)...)
		}
		cur = next
	}
	return Region{canonicalize(cur, 0)}
}

// Equal tells whether r and s cover the same elements. Since both are in
// canonical form, this is a box-by-box comparison.
func (r Region) Equal(s Region) bool {
	if len(r.boxes) != len(s.boxes) {
		return false
	}
	for i, b := range r.boxes {
		if b != s.boxes[i] {
			return false
		}
	}
	return true
}

// String returns the region's boxes joined by " u ".
func (r Region) String() string {
	if r.Empty() {
		return "{}"
	}
	strs := make([]string, len(r.boxes))
	for i, b := range r.boxes {
		strs[i] = b.String()
	}
	return strings.Join(strs, " u ")
}

// canonicalize computes the canonical decomposition of the union of the
// given (possibly overlapping) nonempty boxes, considering axes d..Dims.
// It slices the boxes into slabs at every distinct axis-d boundary,
// recursively canonicalizes each slab's residual structure, and merges
// adjacent slabs whose residual structure is identical.
func canonicalize(boxes []Box, d int) []Box {
	if len(boxes) == 0 {
		return nil
	}
	if d == Dims {
		// A fully-sliced cell: presence is all that remains. The box
		// template's coordinates are filled in on the way back up.
		return []Box{{}}
	}
	cuts := make([]uint64, 0, 2*len(boxes))
	for _, b := range boxes {
		cuts = append(cuts, b.Min[d], b.Max[d])
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })
	cuts = dedup(cuts)

	type slab struct {
		lo, hi uint64
		sub    []Box
	}
	var slabs []slab
	for i := 0; i+1 < len(cuts); i++ {
		lo, hi := cuts[i], cuts[i+1]
		var in []Box
		for _, b := range boxes {
			if b.Min[d] <= lo && hi <= b.Max[d] {
				in = append(in, b)
			}
		}
		if len(in) == 0 {
			continue
		}
		sub := canonicalize(in, d+1)
		if n := len(slabs); n > 0 && slabs[n-1].hi == lo && boxesEqual(slabs[n-1].sub, sub) {
			slabs[n-1].hi = hi
			continue
		}
		slabs = append(slabs, slab{lo, hi, sub})
	}
	var out []Box
	for _, s := range slabs {
		for _, b := range s.sub {
			b.Min[d], b.Max[d] = s.lo, s.hi
			out = append(out, b)
		}
	}
	return out
}

func boxesEqual(a, b []Box) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dedup(sorted []uint64) []uint64 {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
