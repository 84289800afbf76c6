// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/grid"
)

// A Builder transforms a stream of satisfied tasks into a distributed
// command graph. For each task it splits the iteration space into
// chunks, assigns chunks to nodes, emits execution commands, repairs
// missing read regions with push/await-push pairs, and updates buffer
// residency from the task's writes. Programmer errors (reads from
// unwritten regions, cross-node dependencies) panic and may leave the
// builder in a partial state; there are no transient failures here.
type Builder struct {
	graph    *Graph
	src      biggrid.TaskSource
	numNodes int

	states map[biggrid.BufferID]*BufferState

	// lastEnd chains each task's per-node start vertex to the previous
	// task's end vertex on the same node. The satisfied-task iterator
	// yields tasks in dependency order, so this realizes cross-task
	// joins without access to the task graph itself.
	lastEnd map[biggrid.NodeID]*Command
}

// NewBuilder returns a builder emitting into graph for a world of
// numNodes nodes (node 0 is the coordinator).
func NewBuilder(graph *Graph, src biggrid.TaskSource, numNodes int) (*Builder, error) {
	if numNodes <= 0 {
		return nil, errors.E(errors.Invalid, "world size must be at least 1")
	}
	return &Builder{
		graph:    graph,
		src:      src,
		numNodes: numNodes,
		states:   make(map[biggrid.BufferID]*BufferState),
		lastEnd:  make(map[biggrid.NodeID]*Command),
	}, nil
}

// Graph returns the builder's command graph.
func (b *Builder) Graph() *Graph { return b.graph }

// RegisterBuffer registers a buffer of the given global size. Host
// initialized buffers start fully resident on node 0; otherwise the
// buffer starts unwritten.
func (b *Builder) RegisterBuffer(bid biggrid.BufferID, global grid.Range, hostInit bool) {
	var region grid.Region
	if hostInit {
		region = grid.BoxRegion(grid.MakeBox(grid.Point{}, global))
	}
	b.states[bid] = NewBufferState(region, []biggrid.NodeID{0})
}

// BufferState returns the residency state of the given buffer.
func (b *Builder) BufferState(bid biggrid.BufferID) *BufferState {
	bs, ok := b.states[bid]
	if !ok {
		panic("unknown buffer id")
	}
	return bs
}

// Build consumes satisfied tasks until none remain, emitting each task's
// commands and marking it processed.
func (b *Builder) Build() error {
	for {
		tid, ok := b.src.NextSatisfiedTask()
		if !ok {
			return nil
		}
		if err := b.buildTask(tid); err != nil {
			return err
		}
		b.src.MarkProcessed(tid)
	}
}

// taskVertices are the per-node Nop join points of one task: the task's
// commands on a node run after start and before end, and the next task's
// start chains to end.
type taskVertices struct {
	start, end *Command
}

func (b *Builder) buildTask(tid biggrid.TaskID) error {
	var (
		task       = b.src.Task(tid)
		numWorkers = b.numNodes - 1
		masterOnly = b.numNodes == 1
		vertices   = make(map[biggrid.NodeID]*taskVertices)
	)
	if masterOnly {
		// Single-node runs still get one split so that programs can be
		// debugged on the master alone.
		numWorkers = 1
	}
	vertex := func(nid biggrid.NodeID) *taskVertices {
		if tv := vertices[nid]; tv != nil {
			return tv
		}
		tv := &taskVertices{
			start: b.graph.CreateNop(nid, tid),
			end:   b.graph.CreateNop(nid, tid),
		}
		if prev := b.lastEnd[nid]; prev != nil {
			// Cross-task joins order writes after earlier reads.
			b.graph.AddDependency(tv.start, prev, true)
		}
		vertices[nid] = tv
		return tv
	}

	var (
		numChunks  int
		chunks     []grid.Subrange
		reqs       = make(chunkRequirements)
		chunkNodes map[biggrid.ChunkID]biggrid.NodeID
		sources    chunkSources
		chunkCmds  map[biggrid.ChunkID]*Command
	)
	switch task.Kind {
	case biggrid.Compute:
		// Equal chunks for every worker node. The split could take range
		// mapper results and data location into account; it does not.
		numChunks = numWorkers
		sr := grid.Subrange{Range: task.GlobalRange, Global: task.GlobalRange}
		var err error
		chunks, err = SplitEqual(sr, task.Dim, numChunks)
		if err != nil {
			return err
		}
		for _, rm := range task.RangeMappers {
			for i, chunk := range chunks {
				var mapped grid.Subrange
				switch rm.BufferDims() {
				default:
					fallthrough
				case 1:
					mapped = rm.Map1(chunk)
				case 2:
					mapped = rm.Map2(chunk)
				case 3:
					mapped = rm.Map3(chunk)
				}
				reqs.add(biggrid.ChunkID(i), rm.Buffer(), rm.Mode(), mapped.Region())
			}
		}
		var free []biggrid.NodeID
		for n := 0; n < b.numNodes; n++ {
			if n == 0 && !masterOnly {
				continue
			}
			free = append(free, biggrid.NodeID(n))
		}
		chunkNodes, sources = assignChunks(numChunks, reqs, b.states, free)
		chunkCmds = make(map[biggrid.ChunkID]*Command, numChunks)
		for i := 0; i < numChunks; i++ {
			chunk := biggrid.ChunkID(i)
			nid := chunkNodes[chunk]
			cmd := b.graph.CreateCompute(nid, tid, chunks[i])
			tv := vertex(nid)
			b.graph.AddDependency(cmd, tv.start, false)
			b.graph.AddDependency(tv.end, cmd, false)
			chunkCmds[chunk] = cmd
			log.Debug.Printf("task %d: %s", tid, cmd)
		}

	case biggrid.MasterAccess:
		numChunks = 1
		chunkNodes = map[biggrid.ChunkID]biggrid.NodeID{0: 0}
		sources = make(chunkSources)
		for _, acc := range task.Accesses {
			// The maximal global size disables clamping: master accesses
			// are declared in absolute buffer coordinates.
			sr := grid.Subrange{Offset: acc.Offset, Range: acc.Range, Global: grid.MaxRange}
			reqs.add(0, acc.Buffer, acc.Mode, sr.Region())
		}
		for _, bid := range reqs.buffers(0) {
			readReq, ok := reqs[0][bid][biggrid.Read]
			if !ok || readReq.Empty() {
				continue
			}
			sources.set(0, bid, b.BufferState(bid).SourceNodes(readReq))
		}
		cmd := b.graph.CreateMasterAccess(tid)
		tv := vertex(0)
		b.graph.AddDependency(cmd, tv.start, false)
		b.graph.AddDependency(tv.end, cmd, false)
		chunkCmds = map[biggrid.ChunkID]*Command{0: cmd}
		log.Debug.Printf("task %d: %s", tid, cmd)
	}

	b.processDataRequirements(tid, numChunks, chunkNodes, reqs, sources, chunkCmds, vertex)

	for nid, tv := range vertices {
		b.lastEnd[nid] = tv.end
	}
	return nil
}

// processDataRequirements records each chunk's writes, emits a
// push/await-push pair for every read box the executing node does not
// hold, and updates buffer residency from the accumulated writes.
func (b *Builder) processDataRequirements(tid biggrid.TaskID, numChunks int,
	chunkNodes map[biggrid.ChunkID]biggrid.NodeID, reqs chunkRequirements,
	sources chunkSources, chunkCmds map[biggrid.ChunkID]*Command,
	vertex func(biggrid.NodeID) *taskVertices) {

	// writers accumulates the regions written per buffer and node.
	writers := make(map[biggrid.BufferID]map[biggrid.NodeID]grid.Region)

	for i := 0; i < numChunks; i++ {
		chunk := biggrid.ChunkID(i)
		nid := chunkNodes[chunk]
		for _, bid := range reqs.buffers(chunk) {
			modes := reqs[chunk][bid]

			if writeReq, ok := modes[biggrid.Write]; ok && !writeReq.Empty() {
				byNode := writers[bid]
				if byNode == nil {
					byNode = make(map[biggrid.NodeID]grid.Region)
					writers[bid] = byNode
				}
				byNode[nid] = byNode[nid].Merge(writeReq)
			}

			if _, ok := modes[biggrid.Read]; !ok {
				continue
			}
			for _, bn := range sources[chunk][bid] {
				if bn.HasNode(nid) {
					// Already resident; no transfer.
					continue
				}
				// Node sets are sorted, so the first holder is the
				// numerically smallest.
				src := bn.Nodes[0]
				push := b.graph.CreatePush(src, tid, bid, bn.Box, nid)
				srcTV := vertex(src)
				b.graph.AddDependency(push, srcTV.start, false)
				b.graph.AddDependency(srcTV.end, push, false)

				await := b.graph.CreateAwaitPush(nid, tid, bid, bn.Box, push.CID)
				b.graph.AddDependency(await, vertex(nid).start, false)
				b.graph.AddDependency(chunkCmds[chunk], await, false)
				log.Debug.Printf("task %d: %s; %s", tid, push, await)
			}
		}
	}

	bids := make([]biggrid.BufferID, 0, len(writers))
	for bid := range writers {
		bids = append(bids, bid)
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i] < bids[j] })
	for _, bid := range bids {
		byNode := writers[bid]
		nids := make([]biggrid.NodeID, 0, len(byNode))
		for nid := range byNode {
			nids = append(nids, nid)
		}
		sort.Slice(nids, func(i, j int) bool { return nids[i] < nids[j] })
		for _, nid := range nids {
			b.BufferState(bid).Update(byNode[nid], []biggrid.NodeID{nid})
		}
	}
}

// EmitOrder returns the graph's non-Nop commands in an order consistent
// with a breadth-first walk of the per-node dependency DAGs from the
// synthetic root: a command appears only after everything it depends on.
// Ties are broken by ascending command id.
func (b *Builder) EmitOrder() []*Command {
	var (
		indeg      = make(map[biggrid.CommandID]int)
		dependents = make(map[biggrid.CommandID][]*Command)
		ready      []*Command
	)
	for s := b.graph.Commands(); s.Scan(); {
		c := s.Command()
		indeg[c.CID] = len(c.Deps)
		for _, d := range c.Deps {
			dependents[d.On] = append(dependents[d.On], c)
		}
		if len(c.Deps) == 0 {
			ready = append(ready, c)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].CID < ready[j].CID })
	var order []*Command
	for len(ready) > 0 {
		c := ready[0]
		ready = ready[1:]
		if c.Kind != Nop {
			order = append(order, c)
		}
		next := append([]*Command(nil), dependents[c.CID]...)
		sort.Slice(next, func(i, j int) bool { return next[i].CID < next[j].CID })
		for _, d := range next {
			indeg[d.CID]--
			if indeg[d.CID] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return order
}
