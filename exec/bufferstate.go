// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"sort"

	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/grid"
)

// A BufferState tracks, for one buffer, which nodes hold a valid copy of
// which region. Entries partition the portion of the buffer ever
// written; the remainder is semantically undefined and must not be read.
// Writers overwrite residency: after an update, every point of the
// updated region belongs to exactly the updating node set.
type BufferState struct {
	entries []stateEntry
}

type stateEntry struct {
	region grid.Region
	// nodes is sorted ascending for deterministic iteration.
	nodes []biggrid.NodeID
}

// A BoxNodes attributes one box of a queried region to the maximal set
// of nodes known to hold a valid copy of it.
type BoxNodes struct {
	Box   grid.Box
	Nodes []biggrid.NodeID
}

// HasNode tells whether the given node holds the box.
func (bn BoxNodes) HasNode(nid biggrid.NodeID) bool {
	for _, n := range bn.Nodes {
		if n == nid {
			return true
		}
	}
	return false
}

// NewBufferState returns a buffer state with the given region initially
// resident on the given nodes. An empty region yields an empty state
// (nothing written yet).
func NewBufferState(region grid.Region, nodes []biggrid.NodeID) *BufferState {
	bs := &BufferState{}
	if !region.Empty() {
		bs.Update(region, nodes)
	}
	return bs
}

// Update records that the given nodes now hold the only valid copy of
// the region. Every existing entry is reduced by the region; the region
// is then inserted with the given node set.
func (bs *BufferState) Update(region grid.Region, nodes []biggrid.NodeID) {
	if region.Empty() {
		return
	}
	if len(nodes) == 0 {
		panic("update with empty node set")
	}
	entries := bs.entries[:0]
	for _, e := range bs.entries {
		e.region = e.region.Difference(region)
		if e.region.Empty() {
			continue
		}
		entries = append(entries, e)
	}
	sorted := append([]biggrid.NodeID(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	bs.entries = append(entries, stateEntry{region: region, nodes: sorted})
}

// SourceNodes returns the queried region decomposed into boxes, each
// attributed to the nodes holding a valid copy, in entry insertion
// order. The entire region must have been written: querying an
// uncovered part is a programmer error in the builder.
func (bs *BufferState) SourceNodes(region grid.Region) []BoxNodes {
	var (
		out     []BoxNodes
		covered grid.Region
	)
	for _, e := range bs.entries {
		common := e.region.Intersect(region)
		if common.Empty() {
			continue
		}
		for _, box := range common.Boxes() {
			out = append(out, BoxNodes{Box: box, Nodes: e.nodes})
		}
		covered = covered.Merge(common)
	}
	if !covered.Equal(region) {
		panic("read from unwritten buffer region " + region.Difference(covered).String())
	}
	return out
}
