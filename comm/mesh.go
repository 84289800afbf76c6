// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"sync"

	"github.com/grailbio/biggrid"
)

// A Mesh is an in-process transport connecting n endpoints through
// per-(source, target, tag) FIFO queues. Sends complete as soon as the
// message is enqueued at the target; probes claim the pending message
// with the lowest source rank, so drain order is deterministic. Each
// endpoint is driven by its own node goroutine; the queues themselves
// are mutex-protected.
type Mesh struct {
	endpoints []*Endpoint
}

// NewMesh returns a mesh of n connected endpoints, one per node rank.
func NewMesh(n int) *Mesh {
	m := &Mesh{}
	for i := 0; i < n; i++ {
		m.endpoints = append(m.endpoints, &Endpoint{
			mesh:   m,
			rank:   biggrid.NodeID(i),
			queues: make(map[Tag][][]*meshMessage),
		})
	}
	return m
}

// Endpoint returns the endpoint for the given rank.
func (m *Mesh) Endpoint(nid biggrid.NodeID) *Endpoint {
	return m.endpoints[nid]
}

// Size returns the number of endpoints in the mesh.
func (m *Mesh) Size() int { return len(m.endpoints) }

// An Endpoint is one node's view of a Mesh.
type Endpoint struct {
	mesh *Mesh
	rank biggrid.NodeID

	mu sync.Mutex
	// queues maps tag to a per-source FIFO.
	queues map[Tag][][]*meshMessage
}

type meshMessage struct {
	source biggrid.NodeID
	data   []byte
}

// Rank implements Transport.
func (e *Endpoint) Rank() biggrid.NodeID { return e.rank }

// Size implements Transport.
func (e *Endpoint) Size() int { return e.mesh.Size() }

// Send implements Transport. The message is copied, so the in-process
// send completes immediately.
func (e *Endpoint) Send(target biggrid.NodeID, tag Tag, msg []byte) SendState {
	dst := e.mesh.endpoints[target]
	m := &meshMessage{source: e.rank, data: append([]byte(nil), msg...)}
	dst.mu.Lock()
	queues := dst.queues[tag]
	if queues == nil {
		queues = make([][]*meshMessage, dst.mesh.Size())
		dst.queues[tag] = queues
	}
	queues[e.rank] = append(queues[e.rank], m)
	dst.mu.Unlock()
	return meshDone{}
}

// Probe implements Transport.
func (e *Endpoint) Probe(tag Tag) (InboundMessage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	queues := e.queues[tag]
	for src, q := range queues {
		if len(q) == 0 {
			continue
		}
		m := q[0]
		queues[src] = q[1:]
		return &meshInbound{m: m}, true
	}
	return nil, false
}

type meshDone struct{}

func (meshDone) Test() bool { return true }

type meshInbound struct {
	m *meshMessage
}

func (i *meshInbound) Source() biggrid.NodeID { return i.m.source }
func (i *meshInbound) Size() int              { return len(i.m.data) }
func (i *meshInbound) Recv() RecvState        { return &meshRecv{m: i.m} }

type meshRecv struct {
	m *meshMessage
}

func (r *meshRecv) Test() bool             { return true }
func (r *meshRecv) Source() biggrid.NodeID { return r.m.source }
func (r *meshRecv) Payload() []byte        { return r.m.data }
