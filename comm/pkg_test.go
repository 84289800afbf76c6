// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/exec"
	"github.com/grailbio/biggrid/grid"
)

func TestCommandPacketLayout(t *testing.T) {
	cmd := &exec.Command{
		CID:     42,
		NID:     1,
		Kind:    exec.ComputeCmd,
		TID:     7,
		HasTask: true,
		SR: grid.Subrange{
			Offset: grid.Pt(512, 0, 0),
			Range:  grid.Rng(512, 1, 1),
			Global: grid.Rng(1024, 1, 1),
		},
	}
	msg, err := EncodeCommand(cmd, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(msg), PacketSize; got != want {
		t.Fatalf("got %v bytes, want %v", got, want)
	}
	// Fixed little-endian header layout: tid, cid, kind, padding.
	if got, want := binary.LittleEndian.Uint64(msg[0:]), uint64(7); got != want {
		t.Errorf("tid: got %v, want %v", got, want)
	}
	if got, want := binary.LittleEndian.Uint64(msg[8:]), uint64(42); got != want {
		t.Errorf("cid: got %v, want %v", got, want)
	}
	if got, want := msg[16], byte(exec.ComputeCmd); got != want {
		t.Errorf("kind: got %v, want %v", got, want)
	}
	if !bytes.Equal(msg[17:24], make([]byte, 7)) {
		t.Error("padding not zero")
	}
	if got, want := binary.LittleEndian.Uint32(msg[24:]), uint32(512); got != want {
		t.Errorf("offset: got %v, want %v", got, want)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	box := grid.MakeBox(grid.Pt(512, 0, 0), grid.Rng(512, 1, 1))
	for _, cmd := range []*exec.Command{
		{CID: 1, Kind: exec.ComputeCmd, TID: 3, HasTask: true,
			SR: grid.Subrange{Offset: grid.Pt(2, 3, 4), Range: grid.Rng(5, 6, 7), Global: grid.Rng(8, 9, 10)}},
		{CID: 2, Kind: exec.MasterAccessCmd, TID: 3, HasTask: true},
		{CID: 3, Kind: exec.PushCmd, TID: 4, HasTask: true, Buffer: 9, Box: box, Target: 2},
		{CID: 4, Kind: exec.AwaitPushCmd, TID: 4, HasTask: true, Buffer: 9, Box: box, SourceCID: 3},
		{CID: 5, Kind: exec.ShutdownCmd},
	} {
		deps := []biggrid.CommandID{11, 13}
		if cmd.Kind == exec.ShutdownCmd {
			deps = nil
		}
		msg, err := EncodeCommand(cmd, deps)
		if err != nil {
			t.Fatal(err)
		}
		dec, gotDeps, err := DecodeCommand(msg)
		if err != nil {
			t.Fatal(err)
		}
		if dec.CID != cmd.CID || dec.Kind != cmd.Kind || dec.TID != cmd.TID {
			t.Errorf("got %v, want %v", dec, cmd)
		}
		switch cmd.Kind {
		case exec.ComputeCmd:
			if dec.SR != cmd.SR {
				t.Errorf("got %v, want %v", dec.SR, cmd.SR)
			}
		case exec.PushCmd:
			if dec.Buffer != cmd.Buffer || dec.Box != cmd.Box || dec.Target != cmd.Target {
				t.Errorf("got %v, want %v", dec, cmd)
			}
		case exec.AwaitPushCmd:
			if dec.Buffer != cmd.Buffer || dec.Box != cmd.Box || dec.SourceCID != cmd.SourceCID {
				t.Errorf("got %v, want %v", dec, cmd)
			}
		}
		if len(gotDeps) != len(deps) {
			t.Fatalf("got deps %v, want %v", gotDeps, deps)
		}
		for i := range deps {
			if gotDeps[i] != deps[i] {
				t.Errorf("got deps %v, want %v", gotDeps, deps)
			}
		}
	}
}

func TestCommandEncodeOverflow(t *testing.T) {
	cmd := &exec.Command{
		Kind: exec.ComputeCmd,
		SR:   grid.Subrange{Range: grid.Rng(1<<33, 1, 1), Global: grid.Rng(1<<33, 1, 1)},
	}
	if _, err := EncodeCommand(cmd, nil); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestDataHeaderRoundTrip(t *testing.T) {
	h := DataHeader{
		Buffer: 5,
		Subrange: grid.Subrange{
			Offset: grid.Pt(512, 0, 0),
			Range:  grid.Rng(512, 1, 1),
			Global: grid.Rng(1024, 1, 1),
		},
		PushCID: 42,
	}
	payload := []byte{1, 2, 3, 4}
	msg := append(h.Encode(nil), payload...)
	if got, want := len(msg), DataHeaderSize+4; got != want {
		t.Fatalf("got %v bytes, want %v", got, want)
	}
	dec, p, err := DecodeDataHeader(msg)
	if err != nil {
		t.Fatal(err)
	}
	if dec != h {
		t.Errorf("got %v, want %v", dec, h)
	}
	if !bytes.Equal(p, payload) {
		t.Errorf("got payload %v, want %v", p, payload)
	}
}
