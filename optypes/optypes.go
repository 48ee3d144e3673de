// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package optypes enumerates the operation types of the loopir vocabulary:
// the buffer and arithmetic primitives, the parallel-loop/combiner constructs
// the legalization produces, and the two high-level reduction operations it
// consumes.
package optypes

// OpType identifies the operation performed by a Statement.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optypes.go

const (
	OpTypeInvalid OpType = iota

	// Buffer and scalar primitives.
	OpTypeAlloc
	OpTypeConstant
	OpTypeDim
	OpTypeLoad
	OpTypeStore

	// Scalar arithmetic and logic.
	OpTypeAdd
	OpTypeSub
	OpTypeMul
	OpTypeMax
	OpTypeMin
	OpTypeAnd
	OpTypeCompare

	// Structured control flow.
	OpTypeIf
	OpTypeParallelLoop
	OpTypeCombine
	OpTypeReturn

	// High-level reductions, legalized away by the lower package.
	OpTypeReduce
	OpTypeReduceWindow
)
