// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"context"

	"github.com/grailbio/base/status"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/comm"
	"github.com/grailbio/biggrid/exec"
	"github.com/grailbio/biggrid/grid"
	"github.com/grailbio/biggrid/store"
	metrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
)

// A Cluster assembles an in-process world: a mesh transport, one store
// and node per rank, and a coordinator on rank 0. It is the harness
// used by tests and single-process runs; multi-process deployments wire
// the same pieces to a real transport instead.
type Cluster struct {
	mesh    *comm.Mesh
	stores  []*store.Store
	nodes   []*Node
	coord   *Coordinator
	builder *exec.Builder

	nextBuffer biggrid.BufferID
}

// NewCluster returns a cluster of numNodes nodes executing the given
// task stream. kernels supplies each node's kernel, typically closing
// over the node's store. group may be nil.
func NewCluster(numNodes int, src biggrid.TaskSource, kernels func(nid biggrid.NodeID, st *store.Store) Kernel, group *status.Group) (*Cluster, error) {
	builder, err := exec.NewBuilder(exec.NewGraph(), src, numNodes)
	if err != nil {
		return nil, err
	}
	c := &Cluster{
		mesh:    comm.NewMesh(numNodes),
		builder: builder,
	}
	for i := 0; i < numNodes; i++ {
		nid := biggrid.NodeID(i)
		st := store.New()
		node := NewNode(c.mesh.Endpoint(nid), st, kernels(nid, st), group, metrics.NewRegistry())
		c.stores = append(c.stores, st)
		c.nodes = append(c.nodes, node)
	}
	c.coord = NewCoordinator(c.nodes[0], builder)
	return c, nil
}

// RegisterBuffer registers a buffer of the given global size and
// element size on every node. If init is non-nil it holds the buffer's
// full linearized contents, host-initialized on node 0.
func (c *Cluster) RegisterBuffer(global grid.Range, elemSize int, init []byte) (biggrid.BufferID, error) {
	bid := c.nextBuffer
	c.nextBuffer++
	for _, st := range c.stores {
		if err := st.Register(bid, global, elemSize); err != nil {
			return 0, err
		}
	}
	if init != nil {
		if err := c.stores[0].Init(bid, init); err != nil {
			return 0, err
		}
	}
	c.builder.RegisterBuffer(bid, global, init != nil)
	return bid, nil
}

// Store returns the store of the given node.
func (c *Cluster) Store(nid biggrid.NodeID) *store.Store { return c.stores[nid] }

// Builder returns the coordinator's graph builder.
func (c *Cluster) Builder() *exec.Builder { return c.builder }

// Run drives all nodes to completion: the coordinator builds and
// flushes the command graph while every node executes its commands.
// Run returns when all node loops have shut down, or with the first
// node's error.
func (c *Cluster) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.coord.Run(ctx) })
	for _, node := range c.nodes[1:] {
		node := node
		g.Go(func() error { return node.Loop(ctx) })
	}
	return g.Wait()
}
