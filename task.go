// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package biggrid

import "github.com/grailbio/biggrid/grid"

// TaskKind discriminates the task variants consumed from the task layer.
type TaskKind int

const (
	// Compute tasks execute a kernel over an N-dimensional iteration
	// space, split into chunks across the worker nodes.
	Compute TaskKind = iota
	// MasterAccess tasks execute a functor on node 0 with direct access
	// to the declared buffer regions.
	MasterAccess
)

var taskKinds = [...]string{
	Compute:      "compute",
	MasterAccess: "master-access",
}

// String returns the task kind as a lower-case string.
func (k TaskKind) String() string { return taskKinds[k] }

// A RangeMapper maps a chunk of a compute task's iteration space to the
// buffer subrange accessed by that chunk. Range mappers are supplied by
// the program; the graph builder invokes the map method matching the
// buffer's dimensionality. Subranges use the fixed 3-D representation
// with extent 1 along unused trailing axes.
type RangeMapper interface {
	// Buffer returns the accessed buffer.
	Buffer() BufferID
	// Mode returns the access mode declared for this mapper.
	Mode() AccessMode
	// BufferDims returns the dimensionality of the accessed buffer.
	BufferDims() int

	// Map1, Map2 and Map3 map a chunk subrange to the accessed buffer
	// subrange of the respective buffer dimensionality.
	Map1(chunk grid.Subrange) grid.Subrange
	Map2(chunk grid.Subrange) grid.Subrange
	Map3(chunk grid.Subrange) grid.Subrange
}

// A BufferAccess declares one buffer region accessed by a master-access
// task. The region is not clamped to the buffer's global size.
type BufferAccess struct {
	Buffer BufferID
	Mode   AccessMode
	Offset grid.Point
	Range  grid.Range
}

// A Task is one unit of work submitted by the program, as surfaced by
// the task layer's satisfied-task iterator.
type Task struct {
	Kind TaskKind

	// Dim and GlobalRange describe a compute task's iteration space;
	// Dim is 1, 2 or 3. RangeMappers declares its buffer accesses.
	Dim          int
	GlobalRange  grid.Range
	RangeMappers []RangeMapper

	// Accesses declares a master-access task's buffer accesses.
	Accesses []BufferAccess
}

// A TaskSource iterates over satisfied tasks in dependency order. It is
// implemented by the task layer: a task is surfaced only once all of its
// predecessors have been marked processed.
type TaskSource interface {
	// NextSatisfiedTask returns the id of a task whose predecessors have
	// all been processed, or false if no such task remains.
	NextSatisfiedTask() (TaskID, bool)
	// Task returns the task with the given id.
	Task(tid TaskID) *Task
	// MarkProcessed records that the task's commands have been emitted.
	MarkProcessed(tid TaskID)
}

// FixedTasks is a TaskSource over a fixed, dependency-ordered task list.
// It surfaces tasks one at a time in list order.
type FixedTasks struct {
	tasks     map[TaskID]*Task
	order     []TaskID
	processed map[TaskID]bool
}

// NewFixedTasks returns a FixedTasks yielding the given tasks in order,
// with task ids assigned from their list positions.
func NewFixedTasks(tasks ...*Task) *FixedTasks {
	f := &FixedTasks{
		tasks:     make(map[TaskID]*Task),
		processed: make(map[TaskID]bool),
	}
	for i, task := range tasks {
		tid := TaskID(i)
		f.tasks[tid] = task
		f.order = append(f.order, tid)
	}
	return f
}

// NextSatisfiedTask implements TaskSource.
func (f *FixedTasks) NextSatisfiedTask() (TaskID, bool) {
	for _, tid := range f.order {
		if !f.processed[tid] {
			return tid, true
		}
	}
	return 0, false
}

// Task implements TaskSource.
func (f *FixedTasks) Task(tid TaskID) *Task {
	task, ok := f.tasks[tid]
	if !ok {
		panic("unknown task")
	}
	return task
}

// MarkProcessed implements TaskSource.
func (f *FixedTasks) MarkProcessed(tid TaskID) {
	f.processed[tid] = true
}
