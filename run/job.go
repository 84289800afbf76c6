// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package run drives command execution on each node: it decodes flushed
// commands into jobs, orders jobs by their dependencies, and makes
// cooperative progress by polling the transfer manager. The model is
// single-threaded per node: a main loop calls the transfer manager's
// Poll followed by a job-update sweep, and nothing here blocks.
package run

import (
	"context"

	"github.com/grailbio/base/status"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/exec"
	"github.com/grailbio/biggrid/grid"
	"github.com/grailbio/biggrid/transfer"
)

// A Kernel executes the computational payload of commands. Kernel
// execution proper (devices, queues) is outside the scheduling core;
// implementations read and write the node's buffer store directly.
type Kernel interface {
	// RunChunk executes one chunk of the given compute task.
	RunChunk(ctx context.Context, tid biggrid.TaskID, sr grid.Subrange) error
	// RunMaster executes the given master-access task. It is only ever
	// invoked on node 0.
	RunMaster(ctx context.Context, tid biggrid.TaskID) error
}

// jobState represents the runtime state of a job. States are ordered by
// job progression.
type jobState int

const (
	// jobInit jobs are queued but still waiting for their dependencies.
	jobInit jobState = iota
	// jobRunning jobs have an in-flight transfer.
	jobRunning
	// jobDone jobs have completed; their command id counts as done for
	// dependents.
	jobDone
)

var jobStates = [...]string{
	jobInit:    "INIT",
	jobRunning: "RUNNING",
	jobDone:    "DONE",
}

// String returns the job's state as an upper-case string.
func (s jobState) String() string { return jobStates[s] }

// A job tracks the execution of one command on its node.
type job struct {
	cmd *exec.Command
	// deps holds the ids of the commands that must complete before this
	// job starts, as flushed by the coordinator.
	deps  []biggrid.CommandID
	state jobState

	// handle tracks the job's transfer while state is jobRunning.
	handle *transfer.Handle

	// status reports the job on the node's status group.
	status *status.Task
}
