// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"testing"

	"github.com/grailbio/biggrid/grid"
)

func TestStoreRoundTrip1D(t *testing.T) {
	s := New()
	if err := s.Register(0, grid.Rng(16, 1, 1), 1); err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	if err := s.Init(0, data); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(0, grid.Pt(4, 0, 0), grid.Rng(8, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data[4:12]) {
		t.Errorf("got %v, want %v", got, data[4:12])
	}
	if err := s.Set(0, []byte{9, 9}, grid.Pt(0, 0, 0), grid.Rng(2, 1, 1)); err != nil {
		t.Fatal(err)
	}
	got, err = s.Get(0, grid.Pt(0, 0, 0), grid.Rng(3, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{9, 9, 2}) {
		t.Errorf("got %v", got)
	}
}

func TestStoreRowMajor(t *testing.T) {
	// 2x3 grid of 2-byte elements: axis 2 varies fastest.
	s := New()
	if err := s.Register(1, grid.Rng(2, 3, 1), 2); err != nil {
		t.Fatal(err)
	}
	var init []byte
	for e := byte(0); e < 6; e++ {
		init = append(init, e, 0xf0|e)
	}
	if err := s.Init(1, init); err != nil {
		t.Fatal(err)
	}
	// The middle column is elements 1 and 4.
	got, err := s.Get(1, grid.Pt(0, 1, 0), grid.Rng(2, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 0xf1, 4, 0xf4}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	// Writing it back through Set is the inverse of Get.
	if err := s.Set(1, got, grid.Pt(0, 1, 0), grid.Rng(2, 1, 1)); err != nil {
		t.Fatal(err)
	}
	all, err := s.Get(1, grid.Pt(0, 0, 0), grid.Rng(2, 3, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(all, init) {
		t.Errorf("got %v, want %v", all, init)
	}
}

func TestStoreErrors(t *testing.T) {
	s := New()
	if _, err := s.Get(7, grid.Point{}, grid.Rng(1, 1, 1)); err == nil {
		t.Error("expected error for unknown buffer")
	}
	if err := s.Register(0, grid.Rng(4, 1, 1), 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(0, grid.Rng(4, 1, 1), 1); err == nil {
		t.Error("expected error for duplicate registration")
	}
	if _, err := s.Get(0, grid.Pt(2, 0, 0), grid.Rng(4, 1, 1)); err == nil {
		t.Error("expected out-of-bounds error")
	}
	if err := s.Set(0, []byte{1}, grid.Point{}, grid.Rng(2, 1, 1)); err == nil {
		t.Error("expected payload size error")
	}
}
