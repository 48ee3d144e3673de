// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference computes and validates the output shapes of the
// loopir high-level reduction operations.
//
// Dynamic dimensions (shapes.DynamicDim) propagate: a reduction over an
// operand with a dynamic parallel dimension yields a dynamic output
// dimension, and a windowed reduction over a dynamic axis yields a dynamic
// output for that axis.
package shapeinference

import (
	"github.com/pkg/errors"

	"github.com/gomlx/loopir/types"
	"github.com/gomlx/loopir/types/shapes"
)

// ReduceOp returns the output shape of a Reduce operation: the operand shape
// with the reduced axes removed, in original order. Reducing all axes yields
// a scalar (rank-0) shape.
func ReduceOp(operand shapes.Shape, axes []int) (shapes.Shape, error) {
	if !operand.Ok() {
		return shapes.Invalid(), errors.Errorf("ReduceOp: invalid operand shape %s", operand)
	}
	if len(axes) == 0 {
		return shapes.Invalid(), errors.Errorf("ReduceOp: at least one axis to reduce is required for operand %s", operand)
	}
	axesSet := types.MakeSet[int](len(axes))
	for _, axis := range axes {
		if axis < 0 || axis >= operand.Rank() {
			return shapes.Invalid(), errors.Errorf("ReduceOp: axis %d out of range for operand %s", axis, operand)
		}
		if axesSet.Has(axis) {
			return shapes.Invalid(), errors.Errorf("ReduceOp: axis %d listed more than once in %v", axis, axes)
		}
		axesSet.Insert(axis)
	}
	output := shapes.Shape{DType: operand.DType}
	for axis, dim := range operand.Dimensions {
		if !axesSet.Has(axis) {
			output.Dimensions = append(output.Dimensions, dim)
		}
	}
	return output, nil
}

// ReduceWindowOp returns the expected output shape for a windowed reduction.
//
// windowDimensions must have one entry per operand axis. strides defaults to
// 1 per axis, paddings to [0, 0] and both dilations to 1 -- the same defaults
// the legalization applies when the attributes are absent.
//
// Each output dimension is calculated orthogonally to the others:
//
//	output_dim = floor((padded_input - effective_window) / stride) + 1
//
// where padded_input = (input-1)*baseDilation + 1 + padLow + padHigh and
// effective_window = (window-1)*windowDilation + 1.
func ReduceWindowOp(operand shapes.Shape, windowDimensions, strides, baseDilations, windowDilations []int, paddings [][2]int) (shapes.Shape, error) {
	if !operand.Ok() {
		return shapes.Invalid(), errors.Errorf("ReduceWindowOp: invalid operand shape %s", operand)
	}
	rank := operand.Rank()
	if len(windowDimensions) != rank {
		return shapes.Invalid(), errors.Errorf("ReduceWindowOp: len(windowDimensions)=%d, but operand rank is %d", len(windowDimensions), rank)
	}
	if strides != nil && len(strides) != rank {
		return shapes.Invalid(), errors.Errorf("ReduceWindowOp: len(strides)=%d, but operand rank is %d", len(strides), rank)
	}
	if paddings != nil && len(paddings) != rank {
		return shapes.Invalid(), errors.Errorf("ReduceWindowOp: len(paddings)=%d, but operand rank is %d", len(paddings), rank)
	}
	if baseDilations != nil && len(baseDilations) != rank {
		return shapes.Invalid(), errors.Errorf("ReduceWindowOp: len(baseDilations)=%d, but operand rank is %d", len(baseDilations), rank)
	}
	if windowDilations != nil && len(windowDilations) != rank {
		return shapes.Invalid(), errors.Errorf("ReduceWindowOp: len(windowDilations)=%d, but operand rank is %d", len(windowDilations), rank)
	}
	if rank == 0 {
		return operand, nil
	}

	outputDims := make([]int, rank)
	for i := 0; i < rank; i++ {
		windowDim := windowDimensions[i]
		if windowDim < 1 {
			return shapes.Invalid(), errors.Errorf("ReduceWindowOp: windowDimensions[%d]=%d must be >= 1 for operand %s", i, windowDim, operand)
		}
		stride := 1
		if strides != nil {
			stride = strides[i]
			if stride < 1 {
				return shapes.Invalid(), errors.Errorf("ReduceWindowOp: strides[%d]=%d must be >= 1 for operand %s", i, stride, operand)
			}
		}
		padLow, padHigh := 0, 0
		if paddings != nil {
			padLow, padHigh = paddings[i][0], paddings[i][1]
			if padLow < 0 || padHigh < 0 {
				return shapes.Invalid(), errors.Errorf("ReduceWindowOp: paddings[%d]=[%d, %d] must be non-negative for operand %s", i, padLow, padHigh, operand)
			}
		}
		baseDilation := 1
		if baseDilations != nil {
			baseDilation = baseDilations[i]
			if baseDilation < 1 {
				return shapes.Invalid(), errors.Errorf("ReduceWindowOp: baseDilations[%d]=%d must be >= 1 for operand %s", i, baseDilation, operand)
			}
		}
		windowDilation := 1
		if windowDilations != nil {
			windowDilation = windowDilations[i]
			if windowDilation < 1 {
				return shapes.Invalid(), errors.Errorf("ReduceWindowOp: windowDilations[%d]=%d must be >= 1 for operand %s", i, windowDilation, operand)
			}
		}

		inputDim := operand.Dimensions[i]
		if inputDim == shapes.DynamicDim {
			outputDims[i] = shapes.DynamicDim
			continue
		}
		effectiveInputDim := (inputDim-1)*baseDilation + 1
		effectiveWindowDim := (windowDim-1)*windowDilation + 1
		paddedInputDim := effectiveInputDim + padLow + padHigh
		if effectiveWindowDim > paddedInputDim {
			return shapes.Invalid(), errors.Errorf(
				"ReduceWindowOp: effective window %d is larger than the padded input %d on axis %d for operand %s",
				effectiveWindowDim, paddedInputDim, i, operand)
		}
		outputDims[i] = (paddedInputDim-effectiveWindowDim)/stride + 1
	}
	return shapes.Make(operand.DType, outputDims...), nil
}
