// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package exec implements the coordinator-side core of biggrid: the
// command graph and its builder, buffer-region residency tracking, and
// the chunk splitter and assigner. The coordinator runs the builder to
// completion for each satisfied task; nothing in this package blocks or
// is safe for concurrent use.
package exec

import (
	"fmt"

	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/grid"
)

// CommandKind discriminates the command variants of the command graph.
type CommandKind int

const (
	// Nop commands are placeholders used as per-task, per-node join
	// points. They never enter execution fronts and are not flushed.
	Nop CommandKind = iota
	// ComputeCmd executes one chunk of a compute task on its node.
	ComputeCmd
	// MasterAccessCmd executes a master-access functor on node 0.
	MasterAccessCmd
	// PushCmd sends a box of a buffer to a target node.
	PushCmd
	// AwaitPushCmd waits for the push identified by its source command.
	AwaitPushCmd
	// ShutdownCmd terminates a node's command loop.
	ShutdownCmd

	numCommandKinds
)

var commandKinds = [...]string{
	Nop:             "nop",
	ComputeCmd:      "compute",
	MasterAccessCmd: "master-access",
	PushCmd:         "push",
	AwaitPushCmd:    "await-push",
	ShutdownCmd:     "shutdown",
}

// String returns the command kind as a lower-case string.
func (k CommandKind) String() string { return commandKinds[k] }

// A Dep is one dependency edge of a command. Anti marks write-after-read
// ordering; an anti edge and a true edge on the same pair are distinct
// edges and may coexist. Depender and dependee always live on the same
// node: cross-node ordering is expressed by push/await-push pairs, never
// by dependency edges.
type Dep struct {
	On   biggrid.CommandID
	Anti bool
}

// A Command is an atomic unit of per-node work or coordination in the
// command graph. Commands are created by the graph and owned by it;
// holders outside the graph refer to commands by id.
type Command struct {
	// CID is the command's process-unique id.
	CID biggrid.CommandID
	// NID is the node the command executes on.
	NID biggrid.NodeID
	// Kind discriminates the variant payload below.
	Kind CommandKind
	// TID is the task this command belongs to; valid iff HasTask. Push
	// and await-push commands belong to the task that required the
	// transfer.
	TID     biggrid.TaskID
	HasTask bool

	// Deps holds the command's dependency edges, in insertion order.
	Deps []Dep

	// PCPL is the command's pseudo-critical-path length: an upper bound,
	// valid at edge-insertion time, on the longest dependency chain
	// ending at this command. It is never reduced by edge removal.
	PCPL uint32

	// SR is the chunk executed by a compute command.
	SR grid.Subrange

	// Push payload: send Box of Buffer to Target.
	Buffer biggrid.BufferID
	Box    grid.Box
	Target biggrid.NodeID

	// SourceCID identifies the matching push for an await-push command.
	SourceCID biggrid.CommandID
}

// IsTaskCommand tells whether the command is indexed under a task.
func (c *Command) IsTaskCommand() bool { return c.HasTask }

// DependsOn tells whether c holds an edge on the given command with the
// given anti bit.
func (c *Command) DependsOn(cid biggrid.CommandID, anti bool) bool {
	for _, d := range c.Deps {
		if d.On == cid && d.Anti == anti {
			return true
		}
	}
	return false
}

// String returns a short human-readable description of the command.
func (c *Command) String() string {
	switch c.Kind {
	case ComputeCmd:
		return fmt.Sprintf("command %d: compute %s on node %d", c.CID, c.SR, c.NID)
	case MasterAccessCmd:
		return fmt.Sprintf("command %d: master access on node %d", c.CID, c.NID)
	case PushCmd:
		return fmt.Sprintf("command %d: push buffer %d %s to node %d from node %d",
			c.CID, c.Buffer, c.Box, c.Target, c.NID)
	case AwaitPushCmd:
		return fmt.Sprintf("command %d: await push %d of buffer %d %s on node %d",
			c.CID, c.SourceCID, c.Buffer, c.Box, c.NID)
	}
	return fmt.Sprintf("command %d: %s on node %d", c.CID, c.Kind, c.NID)
}
