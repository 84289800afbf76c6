// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"strings"
	"testing"

	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/grid"
)

func TestGraphCreate(t *testing.T) {
	g := NewGraph()
	sr := grid.Subrange{Range: grid.Rng(16, 1, 1), Global: grid.Rng(16, 1, 1)}
	c := g.CreateCompute(1, 7, sr)
	if got, want := c.CID, biggrid.CommandID(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := c.PCPL, uint32(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := g.NumTaskCommands(7), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := g.Front(1), []biggrid.CommandID{0}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("got %v, want %v", got, want)
	}
	// Nops are task commands but never enter fronts.
	nop := g.CreateNop(1, 7)
	if got, want := g.NumTaskCommands(7), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := g.Front(1); len(got) != 1 {
		t.Errorf("nop entered front: %v", got)
	}
	if nop.CID != 1 {
		t.Errorf("got %v, want 1", nop.CID)
	}
}

// TestFrontMaintenance is the chain scenario: three commands, two
// dependencies, a single-command front and max PCPL 3.
func TestFrontMaintenance(t *testing.T) {
	g := NewGraph()
	sr := grid.Subrange{Range: grid.Rng(4, 1, 1), Global: grid.Rng(4, 1, 1)}
	c1 := g.CreateCompute(0, 0, sr)
	c2 := g.CreateCompute(0, 0, sr)
	c3 := g.CreateCompute(0, 0, sr)
	g.AddDependency(c2, c1, false)
	g.AddDependency(c3, c2, false)
	front := g.Front(0)
	if len(front) != 1 || front[0] != c3.CID {
		t.Errorf("got front %v, want {%v}", front, c3.CID)
	}
	if got, want := g.MaxPCPL(), uint32(3); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := c2.PCPL, uint32(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAddDependencyPanics(t *testing.T) {
	g := NewGraph()
	sr := grid.Subrange{Range: grid.Rng(4, 1, 1), Global: grid.Rng(4, 1, 1)}
	c1 := g.CreateCompute(0, 0, sr)
	c2 := g.CreateCompute(1, 0, sr)
	mustPanic(t, func() { g.AddDependency(c1, c2, false) })
	mustPanic(t, func() { g.AddDependency(c1, c1, false) })
}

func TestTrueAndAntiEdgesCoexist(t *testing.T) {
	g := NewGraph()
	sr := grid.Subrange{Range: grid.Rng(4, 1, 1), Global: grid.Rng(4, 1, 1)}
	c1 := g.CreateCompute(0, 0, sr)
	c2 := g.CreateCompute(0, 0, sr)
	g.AddDependency(c2, c1, false)
	g.AddDependency(c2, c1, true)
	if got, want := len(c2.Deps), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if !c2.DependsOn(c1.CID, false) || !c2.DependsOn(c1.CID, true) {
		t.Error("true and anti edges must coexist")
	}
}

func TestRemoveDependencyKeepsFront(t *testing.T) {
	g := NewGraph()
	sr := grid.Subrange{Range: grid.Rng(4, 1, 1), Global: grid.Rng(4, 1, 1)}
	c1 := g.CreateCompute(0, 0, sr)
	c2 := g.CreateCompute(0, 0, sr)
	g.AddDependency(c2, c1, false)
	g.RemoveDependency(c2, c1)
	if c2.DependsOn(c1.CID, false) {
		t.Error("edge not removed")
	}
	// Front maintenance is intentionally lossy: c1 stays out.
	front := g.Front(0)
	if len(front) != 1 || front[0] != c2.CID {
		t.Errorf("got front %v, want {%v}", front, c2.CID)
	}
}

func TestErase(t *testing.T) {
	g := NewGraph()
	sr := grid.Subrange{Range: grid.Rng(4, 1, 1), Global: grid.Rng(4, 1, 1)}
	c1 := g.CreateCompute(0, 3, sr)
	c2 := g.CreateCompute(0, 3, sr)
	g.Erase(c1)
	if got, want := g.NumCommands(), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := g.NumTaskCommands(3), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	front := g.Front(0)
	if len(front) != 1 || front[0] != c2.CID {
		t.Errorf("got front %v, want {%v}", front, c2.CID)
	}
}

func TestScanners(t *testing.T) {
	g := NewGraph()
	sr := grid.Subrange{Range: grid.Rng(4, 1, 1), Global: grid.Rng(4, 1, 1)}
	g.CreateCompute(1, 0, sr)
	g.CreatePush(0, 0, 9, grid.MakeBox(grid.Point{}, grid.Rng(4, 1, 1)), 1)
	g.CreateAwaitPush(1, 0, 9, grid.MakeBox(grid.Point{}, grid.Rng(4, 1, 1)), 1)
	g.CreateCompute(2, 1, sr)

	var kinds []CommandKind
	for s := g.TaskCommands(0); s.Scan(); {
		kinds = append(kinds, s.Command().Kind)
	}
	if got, want := len(kinds), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if kinds[0] != ComputeCmd || kinds[1] != PushCmd || kinds[2] != AwaitPushCmd {
		t.Errorf("wrong command order: %v", kinds)
	}

	n := 0
	for s := g.TaskCommands(0, PushCmd, AwaitPushCmd); s.Scan(); {
		n++
		if k := s.Command().Kind; k != PushCmd && k != AwaitPushCmd {
			t.Errorf("filter passed %v", k)
		}
	}
	if got, want := n, 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	var cids []biggrid.CommandID
	for s := g.Commands(); s.Scan(); {
		cids = append(cids, s.Command().CID)
	}
	for i := 1; i < len(cids); i++ {
		if cids[i-1] >= cids[i] {
			t.Fatalf("commands not in id order: %v", cids)
		}
	}
	if got, want := len(cids), 4; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestGraphString(t *testing.T) {
	g := NewGraph()
	sr := grid.Subrange{Range: grid.Rng(4, 1, 1), Global: grid.Rng(4, 1, 1)}
	c1 := g.CreateCompute(0, 0, sr)
	c2 := g.CreateCompute(0, 0, sr)
	g.AddDependency(c2, c1, true)
	s := g.GraphString()
	if !strings.Contains(s, "compute") || !strings.Contains(s, "~>") {
		t.Errorf("unexpected graph listing:\n%s", s)
	}
}

func mustPanic(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	f()
}
