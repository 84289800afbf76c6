// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package transfer realizes push and await-push commands over the
// message-passing substrate. A Manager is driven by periodic Poll calls
// from its node's command loop; it never blocks. Incoming data and
// await-push commands rendezvous on a blackboard keyed by the push
// command's id, so data messages for distinct pushes may arrive in any
// order, before or after the matching await-push is issued.
package transfer

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/comm"
	"github.com/grailbio/biggrid/exec"
	"github.com/grailbio/biggrid/grid"
	"github.com/grailbio/biggrid/store"
	metrics "github.com/rcrowley/go-metrics"
)

// A Handle tracks one transfer. Its completion flag flips inside Poll;
// AwaitPush for data that already arrived returns a handle that is
// complete at once. Handles are polled, never waited on.
type Handle struct {
	complete bool

	// transfer holds a drained inbound transfer that is still waiting
	// for its await-push command.
	transfer *inbound
}

// Complete tells whether the transfer has finished. For outbound
// handles this means the send completed; for inbound handles it means
// the payload was received (though it is written to buffer storage only
// once the await-push command has been issued).
func (h *Handle) Complete() bool { return h.complete }

type inbound struct {
	recv    comm.RecvState
	header  comm.DataHeader
	payload []byte
}

type outbound struct {
	send   comm.SendState
	handle *Handle
}

// A Manager moves buffer regions between nodes. It owns its transfer
// lists exclusively and is driven by a single goroutine.
type Manager struct {
	tr    comm.Transport
	store *store.Store

	incoming []*inbound
	outgoing []*outbound

	// blackboard is the rendezvous between await-push commands and
	// drained incoming transfers, keyed by push command id.
	blackboard map[biggrid.CommandID]*Handle

	bytesSent     metrics.Counter
	bytesReceived metrics.Counter
	matched       metrics.Counter
}

// NewManager returns a transfer manager for the node connected by tr,
// reading and writing buffer data through st. Transfer counters are
// registered on reg (the shared registry of the node's loop, or a
// private one).
func NewManager(tr comm.Transport, st *store.Store, reg metrics.Registry) *Manager {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Manager{
		tr:            tr,
		store:         st,
		blackboard:    make(map[biggrid.CommandID]*Handle),
		bytesSent:     metrics.GetOrRegisterCounter("biggrid.transfer.bytes_sent", reg),
		bytesReceived: metrics.GetOrRegisterCounter("biggrid.transfer.bytes_received", reg),
		matched:       metrics.GetOrRegisterCounter("biggrid.transfer.matched", reg),
	}
}

// Push starts sending the command's box to its target node. The
// returned handle completes when the send has finished.
func (m *Manager) Push(cmd *exec.Command) (*Handle, error) {
	if cmd.Kind != exec.PushCmd {
		panic("push of non-push command")
	}
	var (
		offset = cmd.Box.Min
		rng    = cmd.Box.Range()
	)
	payload, err := m.store.Get(cmd.Buffer, offset, rng)
	if err != nil {
		return nil, err
	}
	global, err := m.store.Global(cmd.Buffer)
	if err != nil {
		return nil, err
	}
	header := comm.DataHeader{
		Buffer:   cmd.Buffer,
		Subrange: grid.Subrange{Offset: offset, Range: rng, Global: global},
		PushCID:  cmd.CID,
	}
	msg := header.Encode(make([]byte, 0, comm.DataHeaderSize+len(payload)))
	msg = append(msg, payload...)
	h := &Handle{}
	m.outgoing = append(m.outgoing, &outbound{
		send:   m.tr.Send(cmd.Target, comm.TagDataTransfer, msg),
		handle: h,
	})
	m.bytesSent.Inc(int64(len(payload)))
	log.Debug.Printf("node %d: pushing buffer %d %s to node %d (push %d)",
		m.tr.Rank(), cmd.Buffer, cmd.Box, cmd.Target, cmd.CID)
	return h, nil
}

// AwaitPush registers interest in the push identified by the command's
// source id. If the data already arrived and was drained into the
// blackboard, the payload is written to buffer storage now and the
// returned handle is already complete. Otherwise the handle completes
// in a later Poll.
func (m *Manager) AwaitPush(cmd *exec.Command) (*Handle, error) {
	if cmd.Kind != exec.AwaitPushCmd {
		panic("await-push of non-await-push command")
	}
	if h, ok := m.blackboard[cmd.SourceCID]; ok {
		// The push has been fully received already.
		delete(m.blackboard, cmd.SourceCID)
		if h.transfer == nil {
			panic("duplicate await-push for one push")
		}
		if h.transfer.header.Buffer != cmd.Buffer {
			panic("await-push buffer does not match pushed data")
		}
		if err := m.writeTransfer(h.transfer); err != nil {
			return nil, err
		}
		h.transfer = nil
		m.matched.Inc(1)
		return h, nil
	}
	h := &Handle{}
	m.blackboard[cmd.SourceCID] = h
	return h, nil
}

// Poll makes progress on all transfers: it probes for newly arrived
// data, drains completed incoming transfers into buffer storage or the
// blackboard, and retires completed outgoing transfers. Poll never
// blocks.
func (m *Manager) Poll() error {
	m.probe()
	if err := m.drainIncoming(); err != nil {
		return err
	}
	m.drainOutgoing()
	return nil
}

func (m *Manager) probe() {
	msg, ok := m.tr.Probe(comm.TagDataTransfer)
	if !ok {
		return
	}
	log.Debug.Printf("node %d: receiving %d bytes from node %d",
		m.tr.Rank(), msg.Size(), msg.Source())
	m.incoming = append(m.incoming, &inbound{recv: msg.Recv()})
}

func (m *Manager) drainIncoming() error {
	live := m.incoming[:0]
	for _, t := range m.incoming {
		if !t.recv.Test() {
			live = append(live, t)
			continue
		}
		header, payload, err := comm.DecodeDataHeader(t.recv.Payload())
		if err != nil {
			return err
		}
		t.header, t.payload = header, payload
		m.bytesReceived.Inc(int64(len(payload)))
		if h, ok := m.blackboard[header.PushCID]; ok {
			// The await-push is already registered: write through now.
			delete(m.blackboard, header.PushCID)
			if err := m.writeTransfer(t); err != nil {
				return err
			}
			h.complete = true
			m.matched.Inc(1)
		} else {
			h := &Handle{complete: true, transfer: t}
			m.blackboard[header.PushCID] = h
		}
	}
	m.incoming = live
	return nil
}

func (m *Manager) drainOutgoing() {
	live := m.outgoing[:0]
	for _, t := range m.outgoing {
		if !t.send.Test() {
			live = append(live, t)
			continue
		}
		t.handle.complete = true
	}
	m.outgoing = live
}

func (m *Manager) writeTransfer(t *inbound) error {
	return m.store.Set(t.header.Buffer, t.payload, t.header.Subrange.Offset, t.header.Subrange.Range)
}
