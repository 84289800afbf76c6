// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"context"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/comm"
	"github.com/grailbio/biggrid/exec"
)

// A Coordinator is node 0: it builds the command graph from the task
// stream, flushes every command to its node (queueing its own commands
// locally), broadcasts shutdown, and then executes its share of the
// graph like any other node.
type Coordinator struct {
	node    *Node
	builder *exec.Builder
}

// NewCoordinator returns a coordinator flushing the given builder's
// graph and executing node-0 commands on node.
func NewCoordinator(node *Node, builder *exec.Builder) *Coordinator {
	return &Coordinator{node: node, builder: builder}
}

// Builder returns the coordinator's graph builder.
func (c *Coordinator) Builder() *exec.Builder { return c.builder }

// Run builds the full command graph, flushes it, and runs the node
// loop to completion.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.builder.Build(); err != nil {
		return err
	}
	graph := c.builder.Graph()
	for _, cmd := range c.builder.EmitOrder() {
		if err := c.flush(graph, cmd); err != nil {
			return err
		}
	}
	// Shutdown is broadcast last; each node terminates after its
	// preceding commands' jobs complete.
	for nid := 1; nid < c.node.tr.Size(); nid++ {
		cmd := graph.CreateShutdown(biggrid.NodeID(nid))
		if err := c.flush(graph, cmd); err != nil {
			return err
		}
	}
	c.node.EnqueueLocal(graph.CreateShutdown(0), nil)
	log.Debug.Printf("coordinator: flushed %d commands", graph.NumCommands())
	return c.node.Loop(ctx)
}

// flush sends one command to its node, together with the ids of the
// non-Nop commands it transitively depends on through Nop join points.
func (c *Coordinator) flush(graph *exec.Graph, cmd *exec.Command) error {
	deps := flushDeps(graph, cmd)
	if cmd.NID == c.node.tr.Rank() {
		c.node.EnqueueLocal(cmd, deps)
		return nil
	}
	msg, err := comm.EncodeCommand(cmd, deps)
	if err != nil {
		return err
	}
	// Command packets are small; completion of the buffered in-order
	// send needs no tracking.
	c.node.tr.Send(cmd.NID, comm.TagCmd, msg)
	return nil
}

// flushDeps resolves the command's dependencies to executable commands:
// Nop join points are not flushed, so dependencies are followed through
// them transitively. The result is deduplicated and sorted.
func flushDeps(graph *exec.Graph, cmd *exec.Command) []biggrid.CommandID {
	var (
		seen = make(map[biggrid.CommandID]bool)
		out  []biggrid.CommandID
	)
	var visit func(deps []exec.Dep)
	visit = func(deps []exec.Dep) {
		for _, d := range deps {
			if seen[d.On] {
				continue
			}
			seen[d.On] = true
			dep := graph.Get(d.On)
			if dep.Kind == exec.Nop {
				visit(dep.Deps)
				continue
			}
			out = append(out, dep.CID)
		}
	}
	visit(cmd.Deps)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
