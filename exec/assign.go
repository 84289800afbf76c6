// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"sort"

	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/grid"
)

// chunkRequirements accumulates, per chunk, the union of all range
// mapper outputs for each buffer and access mode.
type chunkRequirements map[biggrid.ChunkID]map[biggrid.BufferID]map[biggrid.AccessMode]grid.Region

func (r chunkRequirements) add(chunk biggrid.ChunkID, bid biggrid.BufferID, mode biggrid.AccessMode, region grid.Region) {
	buffers := r[chunk]
	if buffers == nil {
		buffers = make(map[biggrid.BufferID]map[biggrid.AccessMode]grid.Region)
		r[chunk] = buffers
	}
	modes := buffers[bid]
	if modes == nil {
		modes = make(map[biggrid.AccessMode]grid.Region)
		buffers[bid] = modes
	}
	modes[mode] = modes[mode].Merge(region)
}

// buffers returns the chunk's buffer ids in ascending order, for
// deterministic iteration over the unordered requirement maps.
func (r chunkRequirements) buffers(chunk biggrid.ChunkID) []biggrid.BufferID {
	bids := make([]biggrid.BufferID, 0, len(r[chunk]))
	for bid := range r[chunk] {
		bids = append(bids, bid)
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i] < bids[j] })
	return bids
}

// chunkSources records, per chunk and read buffer, the box-to-holders
// attribution computed during assignment, for reuse by the push planner.
type chunkSources map[biggrid.ChunkID]map[biggrid.BufferID][]BoxNodes

func (s chunkSources) set(chunk biggrid.ChunkID, bid biggrid.BufferID, sources []BoxNodes) {
	buffers := s[chunk]
	if buffers == nil {
		buffers = make(map[biggrid.BufferID][]BoxNodes)
		s[chunk] = buffers
	}
	buffers[bid] = sources
}

// assignChunks assigns each chunk to one node from free, preferring a
// free node that already holds data the chunk reads. The heuristic is
// deliberately cheap: only the first source entry of the first read
// buffer (in ascending buffer order) is considered as the candidate set.
// Source attributions for all read buffers are recorded in the returned
// chunkSources. free must contain at least numChunks nodes; chosen nodes
// are consumed.
func assignChunks(numChunks int, reqs chunkRequirements, states map[biggrid.BufferID]*BufferState, free []biggrid.NodeID) (map[biggrid.ChunkID]biggrid.NodeID, chunkSources) {
	var (
		nodes   = make(map[biggrid.ChunkID]biggrid.NodeID)
		sources = make(chunkSources)
	)
	free = append([]biggrid.NodeID(nil), free...)
	sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })
	for i := 0; i < numChunks; i++ {
		chunk := biggrid.ChunkID(i)
		var candidates []biggrid.NodeID
		for _, bid := range reqs.buffers(chunk) {
			readReq, ok := reqs[chunk][bid][biggrid.Read]
			if !ok || readReq.Empty() {
				continue
			}
			bs := states[bid]
			if bs == nil {
				panic("read from unregistered buffer")
			}
			sn := bs.SourceNodes(readReq)
			sources.set(chunk, bid, sn)
			if candidates == nil && len(sn) > 0 {
				candidates = sn[0].Nodes
			}
		}
		if len(free) == 0 {
			panic("more chunks than free nodes")
		}
		nid := free[0]
		for _, cand := range intersectNodes(free, candidates) {
			nid = cand
			break
		}
		nodes[chunk] = nid
		free = removeNode(free, nid)
	}
	return nodes, sources
}

// intersectNodes returns the members of candidates present in free, in
// free's (ascending) order. Both slices are sorted ascending.
func intersectNodes(free, candidates []biggrid.NodeID) []biggrid.NodeID {
	var out []biggrid.NodeID
	for _, n := range free {
		for _, c := range candidates {
			if n == c {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func removeNode(nodes []biggrid.NodeID, nid biggrid.NodeID) []biggrid.NodeID {
	out := nodes[:0]
	for _, n := range nodes {
		if n != nid {
			out = append(out, n)
		}
	}
	return out
}
