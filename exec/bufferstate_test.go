// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"testing"

	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/grid"
)

func region1(min, max uint64) grid.Region {
	return grid.BoxRegion(grid.Box{Min: grid.Pt(min, 0, 0), Max: grid.Point{max, 1, 1}})
}

func TestBufferStateRoundTrip(t *testing.T) {
	bs := NewBufferState(region1(0, 1024), []biggrid.NodeID{0})
	r := region1(0, 1024)
	sn := bs.SourceNodes(r)
	if got, want := len(sn), 1; got != want {
		t.Fatalf("got %v entries, want %v", got, want)
	}
	if got, want := grid.BoxRegion(sn[0].Box), r; !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if len(sn[0].Nodes) != 1 || sn[0].Nodes[0] != 0 {
		t.Errorf("got nodes %v, want [0]", sn[0].Nodes)
	}
}

func TestBufferStateOverwrite(t *testing.T) {
	bs := NewBufferState(region1(0, 1024), []biggrid.NodeID{0})
	bs.Update(region1(0, 512), []biggrid.NodeID{1})
	bs.Update(region1(512, 1024), []biggrid.NodeID{2})

	sn := bs.SourceNodes(region1(0, 1024))
	if got, want := len(sn), 2; got != want {
		t.Fatalf("got %v entries, want %v", got, want)
	}
	for _, bn := range sn {
		switch bn.Box.Min[0] {
		case 0:
			if bn.Box.Max[0] != 512 || len(bn.Nodes) != 1 || bn.Nodes[0] != 1 {
				t.Errorf("wrong attribution %v %v", bn.Box, bn.Nodes)
			}
		case 512:
			if bn.Box.Max[0] != 1024 || len(bn.Nodes) != 1 || bn.Nodes[0] != 2 {
				t.Errorf("wrong attribution %v %v", bn.Box, bn.Nodes)
			}
		default:
			t.Errorf("unexpected box %v", bn.Box)
		}
	}
}

func TestBufferStatePartialOverwrite(t *testing.T) {
	bs := NewBufferState(region1(0, 100), []biggrid.NodeID{0})
	bs.Update(region1(25, 75), []biggrid.NodeID{3})
	sn := bs.SourceNodes(region1(0, 100))
	var zero, three uint64
	for _, bn := range sn {
		area := bn.Box.Area()
		switch {
		case len(bn.Nodes) == 1 && bn.Nodes[0] == 0:
			zero += area
		case len(bn.Nodes) == 1 && bn.Nodes[0] == 3:
			three += area
		default:
			t.Errorf("unexpected nodes %v", bn.Nodes)
		}
	}
	if zero != 50 || three != 50 {
		t.Errorf("got areas %d/%d, want 50/50", zero, three)
	}
}

func TestBufferStateMultiNode(t *testing.T) {
	// A multi-node update makes every member a valid source, with node
	// sets stored sorted.
	bs := NewBufferState(region1(0, 64), []biggrid.NodeID{2, 0, 1})
	sn := bs.SourceNodes(region1(16, 32))
	if got, want := len(sn), 1; got != want {
		t.Fatalf("got %v entries, want %v", got, want)
	}
	if got := sn[0].Nodes; len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("got nodes %v, want [0 1 2]", got)
	}
	if !sn[0].HasNode(1) || sn[0].HasNode(3) {
		t.Error("wrong membership")
	}
}

func TestBufferStateUnwrittenRead(t *testing.T) {
	bs := NewBufferState(region1(0, 512), []biggrid.NodeID{0})
	mustPanic(t, func() { bs.SourceNodes(region1(0, 1024)) })
}
