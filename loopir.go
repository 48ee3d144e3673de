// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package loopir is a small buffer-level intermediate representation (IR)
// plus the legalization pass (see sub-package lower) that rewrites its two
// high-level reduction operations -- Reduce and ReduceWindow -- into explicit
// nested parallel loops with scalar combiners.
//
// The IR is deliberately close to a buffer ("memref") dialect: values are
// either buffer references (typed, shaped, mutable memory handles) or scalar
// register values. Operations are Statements owned by a Function; structured
// operations (ParallelLoop, Combine, If, Reduce, ReduceWindow) carry nested
// closure Functions as their regions.
//
// Typical use:
//
//	b := loopir.New("pool")
//	fn := b.Main()
//	operand, _ := fn.RefInput("operand", shapes.Make(dtypes.Float32, 4, 4))
//	init, _ := fn.RefInput("init", shapes.Scalar(dtypes.Float32))
//	out, _ := fn.RefInput("out", shapes.Make(dtypes.Float32, 2, 2))
//	body := fn.Closure("max")
//	... build the 3-buffer-argument reduction body ...
//	fn.ReduceWindow(operand, init, out, body, []int{2, 2}, []int{2, 2}, nil, nil, [][2]int{{0, 0}, {0, 0}})
//	err := lower.LegalizeToParallelLoops(fn)
//
// After legalization no Reduce or ReduceWindow statement remains; the
// function holds only parallel-loop, combiner and primitive operations, which
// the interp sub-package can evaluate on concrete buffers.
package loopir

import (
	"github.com/gomlx/gopjrt/dtypes"
)

// IndexDType is the dtype used for loop induction variables, buffer indices
// and dimension queries.
const IndexDType = dtypes.Int64

// Builder owns a main Function and hands out unique value ids for everything
// built under it.
type Builder struct {
	name   string
	main   *Function
	nextID int
}

// New creates a Builder with an empty main function.
func New(name string) *Builder {
	b := &Builder{name: name}
	b.main = b.newFunction("main", nil, nil)
	return b
}

// Name of the builder, for error messages and the textual printer.
func (b *Builder) Name() string { return b.name }

// Main returns the top-level function.
func (b *Builder) Main() *Function { return b.main }

// String prints the main function. See Function.String.
func (b *Builder) String() string { return b.main.String() }
