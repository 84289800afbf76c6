// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/grid"
)

// A Graph owns the commands of a distributed command graph and maintains
// the indexes used during construction: commands by id, task commands by
// task, and per-node execution fronts. The graph is mutated only by the
// coordinator while building; it is not safe for concurrent use.
type Graph struct {
	nextCID  biggrid.CommandID
	commands map[biggrid.CommandID]*Command
	byTask   map[biggrid.TaskID][]*Command

	// fronts holds, per node, the commands on that node that no other
	// command depends on yet. Nops never enter fronts.
	fronts map[biggrid.NodeID]map[biggrid.CommandID]*Command

	// maxPCPL only grows as dependencies are added; it is not reduced by
	// removals further up the chain.
	maxPCPL uint32
}

// NewGraph returns an empty command graph.
func NewGraph() *Graph {
	return &Graph{
		commands: make(map[biggrid.CommandID]*Command),
		byTask:   make(map[biggrid.TaskID][]*Command),
		fronts:   make(map[biggrid.NodeID]map[biggrid.CommandID]*Command),
	}
}

// create allocates the next command id and inserts the command into the
// graph's indexes.
func (g *Graph) create(c *Command) *Command {
	c.CID = g.nextCID
	g.nextCID++
	c.PCPL = 1
	if _, ok := g.commands[c.CID]; ok {
		panic("duplicate command id")
	}
	g.commands[c.CID] = c
	if c.HasTask {
		g.byTask[c.TID] = append(g.byTask[c.TID], c)
	}
	if c.Kind != Nop {
		front := g.fronts[c.NID]
		if front == nil {
			front = make(map[biggrid.CommandID]*Command)
			g.fronts[c.NID] = front
		}
		front[c.CID] = c
	}
	return c
}

// CreateNop creates a task-vertex placeholder on the given node.
func (g *Graph) CreateNop(nid biggrid.NodeID, tid biggrid.TaskID) *Command {
	return g.create(&Command{NID: nid, Kind: Nop, TID: tid, HasTask: true})
}

// CreateCompute creates a compute command for one chunk of a task.
func (g *Graph) CreateCompute(nid biggrid.NodeID, tid biggrid.TaskID, sr grid.Subrange) *Command {
	return g.create(&Command{NID: nid, Kind: ComputeCmd, TID: tid, HasTask: true, SR: sr})
}

// CreateMasterAccess creates a master-access command on node 0.
func (g *Graph) CreateMasterAccess(tid biggrid.TaskID) *Command {
	return g.create(&Command{NID: 0, Kind: MasterAccessCmd, TID: tid, HasTask: true})
}

// CreatePush creates a push command on the source node nid, sending box
// of the buffer to target.
func (g *Graph) CreatePush(nid biggrid.NodeID, tid biggrid.TaskID, bid biggrid.BufferID, box grid.Box, target biggrid.NodeID) *Command {
	return g.create(&Command{NID: nid, Kind: PushCmd, TID: tid, HasTask: true,
		Buffer: bid, Box: box, Target: target})
}

// CreateAwaitPush creates an await-push command on the destination node,
// matched against the push with id source.
func (g *Graph) CreateAwaitPush(nid biggrid.NodeID, tid biggrid.TaskID, bid biggrid.BufferID, box grid.Box, source biggrid.CommandID) *Command {
	return g.create(&Command{NID: nid, Kind: AwaitPushCmd, TID: tid, HasTask: true,
		Buffer: bid, Box: box, SourceCID: source})
}

// CreateShutdown creates a shutdown command on the given node.
func (g *Graph) CreateShutdown(nid biggrid.NodeID) *Command {
	return g.create(&Command{NID: nid, Kind: ShutdownCmd})
}

// Get returns the command with the given id, which must exist.
func (g *Graph) Get(cid biggrid.CommandID) *Command {
	c, ok := g.commands[cid]
	if !ok {
		panic("unknown command id")
	}
	return c
}

// NumCommands returns the total number of commands in the graph.
func (g *Graph) NumCommands() int { return len(g.commands) }

// NumTaskCommands returns the number of commands indexed under the task.
func (g *Graph) NumTaskCommands(tid biggrid.TaskID) int { return len(g.byTask[tid]) }

// AddDependency adds an edge from depender to dependee, marking it anti
// for write-after-read ordering. Both commands must live on the same
// node: cross-node coordination is expressed by push/await-push pairs.
// The dependee leaves its node's execution front; the depender's
// pseudo-critical-path length is raised to at least dependee's plus one.
func (g *Graph) AddDependency(depender, dependee *Command, anti bool) {
	if depender.NID != dependee.NID {
		panic("cannot depend on a command executed on another node")
	}
	if depender == dependee {
		panic("command cannot depend on itself")
	}
	depender.Deps = append(depender.Deps, Dep{On: dependee.CID, Anti: anti})
	if pcpl := dependee.PCPL + 1; pcpl > depender.PCPL {
		depender.PCPL = pcpl
	}
	delete(g.fronts[dependee.NID], dependee.CID)
	if depender.PCPL > g.maxPCPL {
		g.maxPCPL = depender.PCPL
	}
}

// RemoveDependency removes all edges from depender on dependee. The
// dependee is not restored to its execution front: front maintenance is
// lossy under removal, and callers that need an accurate front rebuild
// the graph.
func (g *Graph) RemoveDependency(depender, dependee *Command) {
	deps := depender.Deps[:0]
	for _, d := range depender.Deps {
		if d.On == dependee.CID {
			continue
		}
		deps = append(deps, d)
	}
	depender.Deps = deps
}

// Erase removes the command from all of the graph's indexes. Edges held
// by other commands on cmd become dangling: the caller must have removed
// any it still cares about.
func (g *Graph) Erase(cmd *Command) {
	delete(g.commands, cmd.CID)
	if cmd.HasTask {
		cmds := g.byTask[cmd.TID][:0]
		for _, c := range g.byTask[cmd.TID] {
			if c != cmd {
				cmds = append(cmds, c)
			}
		}
		if len(cmds) == 0 {
			delete(g.byTask, cmd.TID)
		} else {
			g.byTask[cmd.TID] = cmds
		}
	}
	delete(g.fronts[cmd.NID], cmd.CID)
}

// Front returns the ids of the given node's execution front: its
// commands that no other command depends on, in ascending id order.
func (g *Graph) Front(nid biggrid.NodeID) []biggrid.CommandID {
	front := g.fronts[nid]
	cids := make([]biggrid.CommandID, 0, len(front))
	for cid := range front {
		cids = append(cids, cid)
	}
	sort.Slice(cids, func(i, j int) bool { return cids[i] < cids[j] })
	return cids
}

// MaxPCPL returns the largest pseudo-critical-path length observed while
// adding dependencies. It is a monotone scheduling heuristic, not a true
// critical path.
func (g *Graph) MaxPCPL() uint32 { return g.maxPCPL }

// A Scanner is a forward iterator over commands. Scan advances to the
// next command, returning false when none remain; Command returns the
// current command.
type Scanner struct {
	cmds  []*Command
	kinds []CommandKind
	cur   *Command
}

func (s *Scanner) match(c *Command) bool {
	if len(s.kinds) == 0 {
		return true
	}
	for _, k := range s.kinds {
		if c.Kind == k {
			return true
		}
	}
	return false
}

// Scan advances the scanner to the next matching command.
func (s *Scanner) Scan() bool {
	for len(s.cmds) > 0 {
		c := s.cmds[0]
		s.cmds = s.cmds[1:]
		if s.match(c) {
			s.cur = c
			return true
		}
	}
	s.cur = nil
	return false
}

// Command returns the scanner's current command.
func (s *Scanner) Command() *Command { return s.cur }

// Commands returns a scanner over all commands in the graph, in
// ascending id order.
func (g *Graph) Commands() *Scanner {
	cmds := make([]*Command, 0, len(g.commands))
	for _, c := range g.commands {
		cmds = append(cmds, c)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].CID < cmds[j].CID })
	return &Scanner{cmds: cmds}
}

// TaskCommands returns a scanner over the task's commands in creation
// order, restricted to the given kinds (all kinds if none are given).
func (g *Graph) TaskCommands(tid biggrid.TaskID, kinds ...CommandKind) *Scanner {
	cmds := g.byTask[tid]
	return &Scanner{cmds: append([]*Command(nil), cmds...), kinds: kinds}
}

// GraphString returns a schematic string of the graph.
func (g *Graph) GraphString() string {
	var b bytes.Buffer
	g.WriteGraph(&b)
	return b.String()
}

// WriteGraph writes a schematic listing of the graph's commands and
// dependency edges into w.
func (g *Graph) WriteGraph(w io.Writer) {
	var tw tabwriter.Writer
	tw.Init(w, 4, 4, 1, ' ', 0)
	fmt.Fprintln(&tw, "commands:")
	for s := g.Commands(); s.Scan(); {
		c := s.Command()
		fmt.Fprintf(&tw, "\t%d\tnode %d\t%s\tpcpl %d\n", c.CID, c.NID, c.Kind, c.PCPL)
	}
	fmt.Fprintln(&tw, "dependencies:")
	for s := g.Commands(); s.Scan(); {
		c := s.Command()
		for _, d := range c.Deps {
			edge := "->"
			if d.Anti {
				edge = "~>"
			}
			fmt.Fprintf(&tw, "\t%d\t%s\t%d\n", c.CID, edge, d.On)
		}
	}
	tw.Flush()
}
