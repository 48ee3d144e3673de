// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the ranked, typed extent description used by
// the loopir buffer references and scalar values.
//
// A Shape holds a DType (defined in github.com/gomlx/gopjrt/dtypes) and one
// dimension per axis. A dimension is either a static positive integer or the
// DynamicDim sentinel, meaning the extent is only known at runtime and must be
// queried from the buffer with a dimension-query operation.
//
// ## Glossary
//
//   - Rank: number of axes of a buffer.
//   - Axis: the index of a dimension. A shape of rank 2 has axes 0 and 1.
//   - Dimension: the size of a buffer in one of its axes.
//   - Scalar: a shape with no axes (rank == 0), a single value of the DType.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// DynamicDim is the sentinel dimension value for an extent only known at
// runtime.
const DynamicDim = -1

// Shape represents the shape of a buffer reference or of a scalar value
// (rank 0).
//
// Use Make to create a new shape. Dimensions may be DynamicDim.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape structure filled with the values given.
// Each dimension must be positive or DynamicDim.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	for _, dim := range dimensions {
		if dim <= 0 && dim != DynamicDim {
			exceptions.Panicf("shapes.Make(%s): dimensions must be positive or DynamicDim, got %v", dtype, dimensions)
		}
	}
	return s
}

// Scalar returns a scalar (rank-0) Shape for the given dtype.
func Scalar(dtype dtypes.DType) Shape {
	return Shape{DType: dtype}
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is there are no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts from the end -- so axis=-1 refers to the last axis.
// It panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// IsDynamicDim returns whether the dimension of the given axis is only known at runtime.
func (s Shape) IsDynamicDim(axis int) bool {
	return s.Dim(axis) == DynamicDim
}

// HasDynamicDims returns whether any axis has a runtime-resolved dimension.
func (s Shape) HasDynamicDims() bool {
	return slices.Contains(s.Dimensions, DynamicDim)
}

// Shape returns a shallow copy of itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// String implements stringer, pretty-prints the shape. Dynamic dimensions
// print as "?".
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	parts := make([]string, s.Rank())
	for axis, dim := range s.Dimensions {
		if dim == DynamicDim {
			parts[axis] = "?"
		} else {
			parts[axis] = fmt.Sprintf("%d", dim)
		}
	}
	return fmt.Sprintf("(%s)[%s]", s.DType, strings.Join(parts, " "))
}

// Size returns the number of elements of DType needed for this shape, the
// product of all dimensions. It returns DynamicDim if any dimension is
// dynamic.
func (s Shape) Size() int {
	size := 1
	for _, d := range s.Dimensions {
		if d == DynamicDim {
			return DynamicDim
		}
		size *= d
	}
	return size
}

// Equal compares two shapes for equality: dtype and dimensions are compared,
// and a dynamic dimension is only equal to another dynamic dimension.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType {
		return false
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// CompatibleWith compares dtype and rank, and the dimensions of every axis
// where both shapes are static. A dynamic dimension is compatible with any
// dimension on the same axis.
func (s Shape) CompatibleWith(s2 Shape) bool {
	if s.DType != s2.DType || s.Rank() != s2.Rank() {
		return false
	}
	for axis, dim := range s.Dimensions {
		if dim == DynamicDim || s2.Dimensions[axis] == DynamicDim {
			continue
		}
		if dim != s2.Dimensions[axis] {
			return false
		}
	}
	return true
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}
