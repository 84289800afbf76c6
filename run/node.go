// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"context"
	"runtime"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/comm"
	"github.com/grailbio/biggrid/exec"
	"github.com/grailbio/biggrid/store"
	"github.com/grailbio/biggrid/transfer"
	metrics "github.com/rcrowley/go-metrics"
)

// A Node executes its share of a distributed command graph. Commands
// arrive as flushed packets (or, on the coordinator, through the local
// queue) and are queued as jobs in arrival order; jobs start once the
// commands they depend on have completed. A node runs until it has
// received a shutdown command and drained all of its jobs.
type Node struct {
	tr     comm.Transport
	store  *store.Store
	btm    *transfer.Manager
	kernel Kernel
	group  *status.Group

	jobsRun metrics.Counter

	jobs []*job
	// done records completed command ids; dependencies of later tasks'
	// jobs refer to them.
	done map[biggrid.CommandID]bool

	// local queues commands dispatched by the coordinator to itself.
	local       []*job
	pendingRecv comm.RecvState
	shutdown    bool
}

// NewNode returns a node executing commands with the given kernel,
// moving data through tr and st. Job status is reported to group, and
// counters are registered on reg; both may be nil.
func NewNode(tr comm.Transport, st *store.Store, kernel Kernel, group *status.Group, reg metrics.Registry) *Node {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Node{
		tr:      tr,
		store:   st,
		btm:     transfer.NewManager(tr, st, reg),
		kernel:  kernel,
		group:   group,
		jobsRun: metrics.GetOrRegisterCounter("biggrid.node.jobs_run", reg),
		done:    make(map[biggrid.CommandID]bool),
	}
}

// Store returns the node's buffer store.
func (n *Node) Store() *store.Store { return n.store }

// EnqueueLocal queues a command on the node without going through the
// transport. The coordinator uses it for its own commands.
func (n *Node) EnqueueLocal(cmd *exec.Command, deps []biggrid.CommandID) {
	n.local = append(n.local, &job{cmd: cmd, deps: deps})
}

// Loop runs the node's main loop: poll the transfer manager, sweep
// jobs, accept the next command. It returns once a shutdown command has
// been received and all jobs have drained, or with the context's error.
func (n *Node) Loop(ctx context.Context) error {
	for !n.shutdown || len(n.jobs) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.btm.Poll(); err != nil {
			return err
		}
		if err := n.sweep(ctx); err != nil {
			return err
		}
		if err := n.accept(); err != nil {
			return err
		}
		// Yield so that peer nodes in the same process make progress.
		runtime.Gosched()
	}
	log.Debug.Printf("node %d: shut down", n.tr.Rank())
	return nil
}

// accept dequeues at most one pending command and turns it into a job.
func (n *Node) accept() error {
	var j *job
	switch {
	case len(n.local) > 0:
		j = n.local[0]
		n.local = n.local[1:]
	default:
		if n.pendingRecv == nil {
			msg, ok := n.tr.Probe(comm.TagCmd)
			if !ok {
				return nil
			}
			n.pendingRecv = msg.Recv()
		}
		if !n.pendingRecv.Test() {
			return nil
		}
		cmd, deps, err := comm.DecodeCommand(n.pendingRecv.Payload())
		n.pendingRecv = nil
		if err != nil {
			return err
		}
		// Flushed packets do not carry the node id; commands arrive only
		// at their own node.
		cmd.NID = n.tr.Rank()
		j = &job{cmd: cmd, deps: deps}
	}
	if j.cmd.Kind == exec.ShutdownCmd {
		n.shutdown = true
		return nil
	}
	log.Debug.Printf("node %d: queued %s", n.tr.Rank(), j.cmd)
	n.jobs = append(n.jobs, j)
	return nil
}

// sweep advances every job one step and retires completed jobs.
func (n *Node) sweep(ctx context.Context) error {
	live := n.jobs[:0]
	for _, j := range n.jobs {
		if err := n.update(ctx, j); err != nil {
			return err
		}
		if j.state == jobDone {
			n.done[j.cmd.CID] = true
			n.jobsRun.Inc(1)
			continue
		}
		live = append(live, j)
	}
	n.jobs = live
	return nil
}

func (n *Node) ready(j *job) bool {
	for _, cid := range j.deps {
		if !n.done[cid] {
			return false
		}
	}
	return true
}

func (n *Node) update(ctx context.Context, j *job) error {
	switch j.state {
	case jobInit:
		if !n.ready(j) {
			return nil
		}
		j.status = n.group.Startf("%s", j.cmd)
		switch j.cmd.Kind {
		case exec.ComputeCmd:
			// Kernels run synchronously inside the sweep.
			if err := n.kernel.RunChunk(ctx, j.cmd.TID, j.cmd.SR); err != nil {
				return err
			}
			j.state = jobDone
		case exec.MasterAccessCmd:
			if err := n.kernel.RunMaster(ctx, j.cmd.TID); err != nil {
				return err
			}
			j.state = jobDone
		case exec.PushCmd:
			h, err := n.btm.Push(j.cmd)
			if err != nil {
				return err
			}
			j.handle = h
			j.state = jobRunning
		case exec.AwaitPushCmd:
			h, err := n.btm.AwaitPush(j.cmd)
			if err != nil {
				return err
			}
			j.handle = h
			j.state = jobRunning
		default:
			panic("unexpected command kind " + j.cmd.Kind.String())
		}
		if j.state == jobDone {
			j.status.Done()
		}
	case jobRunning:
		if j.handle.Complete() {
			j.state = jobDone
			j.status.Done()
		}
	}
	return nil
}
