// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loopir

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/loopir/optypes"
	"github.com/gomlx/loopir/shapeinference"
	"github.com/gomlx/loopir/types/shapes"
)

// Attribute keys used by the structured operations.
const (
	AttrAxis            = "axis"
	AttrFlat            = "flat"
	AttrDimensions      = "dimensions"
	AttrWindowDims      = "window_dimensions"
	AttrWindowStrides   = "window_strides"
	AttrPadding         = "padding"
	AttrBaseDilations   = "base_dilations"
	AttrWindowDilations = "window_dilations"
	AttrNumLoops        = "num_loops"
	AttrCompareDir      = "comparison_direction"
	AttrCompareType     = "compare_type"
)

// Alloc creates a new buffer of the given shape, owned by the enclosing
// function. The shape must be static: scratch buffers are fixed-size.
// Deallocation is left to a later pass.
func (fn *Function) Alloc(shape shapes.Shape) (*Value, error) {
	opType := optypes.OpTypeAlloc
	if err := fn.checkOperands(opType); err != nil {
		return nil, err
	}
	if !shape.Ok() || shape.HasDynamicDims() {
		return nil, errors.Errorf("%s requires a valid static shape, got %s", opType, shape)
	}
	stmt := fn.addStatement(opType, nil)
	out := fn.newValue(shape.Clone(), true, stmt)
	stmt.Outputs = []*Value{out}
	return out, nil
}

// Constant materializes a scalar constant. flat must be a one-element slice
// of one of the supported element types (see ScalarToFlat).
func (fn *Function) Constant(flat any) (*Value, error) {
	opType := optypes.OpTypeConstant
	if err := fn.checkOperands(opType); err != nil {
		return nil, err
	}
	dtype, n, err := DTypeOfFlat(flat)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s in function %q", opType, fn.Name)
	}
	if n != 1 {
		return nil, errors.Errorf("%s takes a one-element flat slice, got %d elements", opType, n)
	}
	stmt := fn.addStatement(opType, nil)
	stmt.Attributes = map[string]any{AttrFlat: flat}
	out := fn.newValue(shapes.Scalar(dtype), false, stmt)
	stmt.Outputs = []*Value{out}
	return out, nil
}

// ConstantIndex materializes an index-typed scalar constant.
func (fn *Function) ConstantIndex(value int64) (*Value, error) {
	return fn.Constant([]int64{value})
}

// Dim queries the runtime dimension of a buffer reference at the given axis.
// It is how dynamic extents (shapes.DynamicDim) are resolved.
func (fn *Function) Dim(ref *Value, axis int) (*Value, error) {
	opType := optypes.OpTypeDim
	if err := fn.checkOperands(opType, ref); err != nil {
		return nil, err
	}
	if !ref.IsRef() {
		return nil, errors.Errorf("%s requires a buffer reference, got scalar %s", opType, ref.Shape())
	}
	if axis < 0 || axis >= ref.Shape().Rank() {
		return nil, errors.Errorf("%s axis %d out of range for buffer %s", opType, axis, ref.Shape())
	}
	stmt := fn.addStatement(opType, []*Value{ref})
	stmt.Attributes = map[string]any{AttrAxis: axis}
	out := fn.newValue(shapes.Scalar(IndexDType), false, stmt)
	stmt.Outputs = []*Value{out}
	return out, nil
}

// checkIndices validates buffer addressing: one index-typed scalar per axis.
// A rank-0 buffer may be addressed either with no indices or with a single
// fixed zero index.
func (fn *Function) checkIndices(opType optypes.OpType, ref *Value, indices []*Value) error {
	rank := ref.Shape().Rank()
	if len(indices) != rank && !(rank == 0 && len(indices) == 1) {
		return errors.Errorf("%s on buffer %s requires %d indices, got %d", opType, ref.Shape(), rank, len(indices))
	}
	for i, index := range indices {
		if index.IsRef() || index.DType() != IndexDType {
			return errors.Errorf("%s index #%d must be an index-typed scalar, got %s", opType, i, index.Shape())
		}
	}
	return nil
}

// Load reads one element from a buffer reference at the given indices.
func (fn *Function) Load(ref *Value, indices ...*Value) (*Value, error) {
	opType := optypes.OpTypeLoad
	operands := append([]*Value{ref}, indices...)
	if err := fn.checkOperands(opType, operands...); err != nil {
		return nil, err
	}
	if !ref.IsRef() {
		return nil, errors.Errorf("%s requires a buffer reference, got scalar %s", opType, ref.Shape())
	}
	if err := fn.checkIndices(opType, ref, indices); err != nil {
		return nil, err
	}
	stmt := fn.addStatement(opType, operands)
	out := fn.newValue(shapes.Scalar(ref.DType()), false, stmt)
	stmt.Outputs = []*Value{out}
	return out, nil
}

// Store writes a scalar into a buffer reference at the given indices.
func (fn *Function) Store(value, ref *Value, indices ...*Value) (*Statement, error) {
	opType := optypes.OpTypeStore
	operands := append([]*Value{value, ref}, indices...)
	if err := fn.checkOperands(opType, operands...); err != nil {
		return nil, err
	}
	if value.IsRef() {
		return nil, errors.Errorf("%s requires a scalar value to store, got buffer %s", opType, value.Shape())
	}
	if !ref.IsRef() {
		return nil, errors.Errorf("%s requires a buffer reference, got scalar %s", opType, ref.Shape())
	}
	if value.DType() != ref.DType() {
		return nil, errors.Errorf("%s value dtype %s does not match buffer dtype %s", opType, value.DType(), ref.DType())
	}
	if err := fn.checkIndices(opType, ref, indices); err != nil {
		return nil, err
	}
	return fn.addStatement(opType, operands), nil
}

// binaryOp adds a scalar binary operation to the function.
func (fn *Function) binaryOp(opType optypes.OpType, lhs, rhs *Value) (*Value, error) {
	if err := fn.checkOperands(opType, lhs, rhs); err != nil {
		return nil, err
	}
	if lhs.IsRef() || rhs.IsRef() {
		return nil, errors.Errorf("%s requires scalar operands, got %s and %s", opType, lhs.Shape(), rhs.Shape())
	}
	if lhs.DType() != rhs.DType() {
		return nil, errors.Errorf("%s operands have different dtypes: %s and %s", opType, lhs.DType(), rhs.DType())
	}
	if opType == optypes.OpTypeAnd {
		if lhs.DType() != dtypes.Bool {
			return nil, errors.Errorf("%s requires boolean operands, got %s", opType, lhs.DType())
		}
	} else if lhs.DType() == dtypes.Bool {
		return nil, errors.Errorf("%s is not defined for boolean operands", opType)
	}
	stmt := fn.addStatement(opType, []*Value{lhs, rhs})
	out := fn.newValue(shapes.Scalar(lhs.DType()), false, stmt)
	stmt.Outputs = []*Value{out}
	return out, nil
}

// Add returns lhs + rhs.
func (fn *Function) Add(lhs, rhs *Value) (*Value, error) {
	return fn.binaryOp(optypes.OpTypeAdd, lhs, rhs)
}

// Sub returns lhs - rhs.
func (fn *Function) Sub(lhs, rhs *Value) (*Value, error) {
	return fn.binaryOp(optypes.OpTypeSub, lhs, rhs)
}

// Mul returns lhs * rhs.
func (fn *Function) Mul(lhs, rhs *Value) (*Value, error) {
	return fn.binaryOp(optypes.OpTypeMul, lhs, rhs)
}

// Max returns the larger of lhs and rhs.
func (fn *Function) Max(lhs, rhs *Value) (*Value, error) {
	return fn.binaryOp(optypes.OpTypeMax, lhs, rhs)
}

// Min returns the smaller of lhs and rhs.
func (fn *Function) Min(lhs, rhs *Value) (*Value, error) {
	return fn.binaryOp(optypes.OpTypeMin, lhs, rhs)
}

// And returns the logical AND of two boolean scalars.
func (fn *Function) And(lhs, rhs *Value) (*Value, error) {
	return fn.binaryOp(optypes.OpTypeAnd, lhs, rhs)
}

// Compare returns the boolean result of comparing two scalars of the same
// dtype under the given direction and interpretation.
func (fn *Function) Compare(lhs, rhs *Value, direction ComparisonDirection, compareType ComparisonType) (*Value, error) {
	opType := optypes.OpTypeCompare
	if err := fn.checkOperands(opType, lhs, rhs); err != nil {
		return nil, err
	}
	if lhs.IsRef() || rhs.IsRef() {
		return nil, errors.Errorf("%s requires scalar operands, got %s and %s", opType, lhs.Shape(), rhs.Shape())
	}
	if lhs.DType() != rhs.DType() {
		return nil, errors.Errorf("%s operands have different dtypes: %s and %s", opType, lhs.DType(), rhs.DType())
	}
	stmt := fn.addStatement(opType, []*Value{lhs, rhs})
	stmt.Attributes = map[string]any{
		AttrCompareDir:  direction,
		AttrCompareType: compareType,
	}
	out := fn.newValue(shapes.Scalar(dtypes.Bool), false, stmt)
	stmt.Outputs = []*Value{out}
	return out, nil
}

// If creates a two-armed conditional yielding one scalar of the given dtype.
// The returned statement's ThenBody and ElseBody closures must each be
// terminated with a single-value Return. Only the taken arm is evaluated, so
// an out-of-bounds load placed in one arm is never issued speculatively.
func (fn *Function) If(cond *Value, dtype dtypes.DType) (*Statement, error) {
	opType := optypes.OpTypeIf
	if err := fn.checkOperands(opType, cond); err != nil {
		return nil, err
	}
	if cond.IsRef() || cond.DType() != dtypes.Bool {
		return nil, errors.Errorf("%s condition must be a boolean scalar, got %s", opType, cond.Shape())
	}
	stmt := fn.addStatement(opType, []*Value{cond})
	thenBody := fn.builder.newFunction("then", fn, stmt)
	elseBody := fn.builder.newFunction("else", fn, stmt)
	stmt.Closures = []*Function{thenBody, elseBody}
	out := fn.newValue(shapes.Scalar(dtype), false, stmt)
	stmt.Outputs = []*Value{out}
	return stmt, nil
}

// ThenBody returns the first arm of an If statement.
func (s *Statement) ThenBody() *Function { return s.Closures[0] }

// ElseBody returns the second arm of an If statement.
func (s *Statement) ElseBody() *Function { return s.Closures[1] }

// ParallelLoop creates a parallel loop nest with one induction variable per
// (lower, upper, step) triple. All bounds must be index-typed scalars.
//
// If an init value is given (at most one), the loop yields one result: each
// iteration must feed a Combine statement in the loop body, and the loop
// result is the fold of all combined values seeded with the init.
//
// The loop body is a closure whose inputs are the induction variables; it has
// an implicit terminator, no Return is needed.
func (fn *Function) ParallelLoop(lower, upper, step []*Value, inits []*Value) (*Statement, error) {
	opType := optypes.OpTypeParallelLoop
	numLoops := len(lower)
	if numLoops == 0 {
		return nil, errors.Errorf("%s requires at least one induction variable", opType)
	}
	if len(upper) != numLoops || len(step) != numLoops {
		return nil, errors.Errorf("%s requires equal numbers of lower bounds (%d), upper bounds (%d) and steps (%d)",
			opType, numLoops, len(upper), len(step))
	}
	operands := make([]*Value, 0, 3*numLoops+len(inits))
	operands = append(operands, lower...)
	operands = append(operands, upper...)
	operands = append(operands, step...)
	operands = append(operands, inits...)
	if err := fn.checkOperands(opType, operands...); err != nil {
		return nil, err
	}
	for i, bound := range operands[:3*numLoops] {
		if bound.IsRef() || bound.DType() != IndexDType {
			return nil, errors.Errorf("%s bound #%d must be an index-typed scalar, got %s", opType, i, bound.Shape())
		}
	}
	if len(inits) > 1 {
		// Combine updates a single accumulator; a loop with more inits would
		// have no way to yield the extra results.
		return nil, errors.Errorf("%s supports at most one init value, got %d", opType, len(inits))
	}
	for i, init := range inits {
		if init.IsRef() {
			return nil, errors.Errorf("%s init #%d must be a scalar, got buffer %s", opType, i, init.Shape())
		}
	}
	stmt := fn.addStatement(opType, operands)
	stmt.Attributes = map[string]any{AttrNumLoops: numLoops}
	body := fn.builder.newFunction("body", fn, stmt)
	for i := 0; i < numLoops; i++ {
		iv := body.newValue(shapes.Scalar(IndexDType), false, nil)
		iv.name = fmt.Sprintf("iv%d", i)
		body.Inputs = append(body.Inputs, iv)
	}
	stmt.Closures = []*Function{body}
	stmt.Outputs = make([]*Value, len(inits))
	for i, init := range inits {
		stmt.Outputs[i] = fn.newValue(shapes.Scalar(init.DType()), false, stmt)
	}
	return stmt, nil
}

// LoopBody returns the body closure of a ParallelLoop statement.
func (s *Statement) LoopBody() *Function { return s.Closures[0] }

// InductionVars returns the induction variables of a ParallelLoop statement,
// one per loop.
func (s *Statement) InductionVars() []*Value { return s.LoopBody().Inputs }

// NumLoops returns the number of induction variables of a ParallelLoop.
func (s *Statement) NumLoops() int { return s.Attr(AttrNumLoops).(int) }

// Combine folds elem into the enclosing loop's running result. It must be
// created inside the body of a ParallelLoop with exactly one init value, and
// its combiner closure -- two scalar inputs (element, accumulator), one
// scalar Return -- defines how the two are combined.
func (fn *Function) Combine(elem *Value) (*Statement, error) {
	opType := optypes.OpTypeCombine
	if err := fn.checkOperands(opType, elem); err != nil {
		return nil, err
	}
	loop := fn.owner
	if loop == nil || loop.OpType != optypes.OpTypeParallelLoop {
		return nil, errors.Errorf("%s must be created inside the body of a %s", opType, optypes.OpTypeParallelLoop)
	}
	if len(loop.Outputs) != 1 {
		return nil, errors.Errorf("%s requires the enclosing loop to carry exactly one init value, it has %d", opType, len(loop.Outputs))
	}
	if elem.IsRef() || elem.DType() != loop.Outputs[0].DType() {
		return nil, errors.Errorf("%s element must be a scalar of dtype %s, got %s", opType, loop.Outputs[0].DType(), elem.Shape())
	}
	stmt := fn.addStatement(opType, []*Value{elem})
	combiner := fn.builder.newFunction("combiner", fn, stmt)
	for _, name := range []string{"elem", "acc"} {
		in := combiner.newValue(shapes.Scalar(elem.DType()), false, nil)
		in.name = name
		combiner.Inputs = append(combiner.Inputs, in)
	}
	stmt.Closures = []*Function{combiner}
	return stmt, nil
}

// CombinerBody returns the combiner closure of a Combine statement.
func (s *Statement) CombinerBody() *Function { return s.Closures[0] }

// checkReductionBody validates a reduction body closure: created from fn,
// terminated, not yet attached, and with exactly 3 rank-0 buffer arguments
// per reduced operand -- element, accumulator and result (which aliases the
// accumulator).
func (fn *Function) checkReductionBody(opType optypes.OpType, body *Function, elemDTypes []dtypes.DType) error {
	if body == nil || body.Parent != fn {
		return errors.Errorf("%s body must be a closure of function %q", opType, fn.Name)
	}
	if body.owner != nil {
		return errors.Errorf("%s body is already attached to a %s statement", opType, body.owner.OpType)
	}
	if !body.Returned {
		return errors.Errorf("%s body %q must be terminated with Return", opType, body.Name)
	}
	n := len(elemDTypes)
	if len(body.Inputs) != 3*n {
		return errors.Errorf("%s body %q must have exactly %d buffer arguments (element, accumulator, result per operand), got %d",
			opType, body.Name, 3*n, len(body.Inputs))
	}
	for i, arg := range body.Inputs {
		if !arg.IsRef() || arg.Shape().Rank() != 0 {
			return errors.Errorf("%s body argument #%d must be a rank-0 buffer reference, got %s", opType, i, arg.Shape())
		}
		if arg.DType() != elemDTypes[i%n] {
			return errors.Errorf("%s body argument #%d has dtype %s, want %s", opType, i, arg.DType(), elemDTypes[i%n])
		}
	}
	return nil
}

// Reduce reduces operand along the given axes, writing the result into out.
// init is a rank-0 buffer holding the initial (neutral) value. body is the
// reduction body closure: 3 rank-0 buffer arguments (element, accumulator,
// result aliasing the accumulator) terminated with an empty Return.
func (fn *Function) Reduce(operand, init, out *Value, body *Function, axes ...int) (*Statement, error) {
	return fn.MultiReduce([]*Value{operand}, []*Value{init}, []*Value{out}, body, axes...)
}

// MultiReduce is the variadic form of Reduce, reducing N operands
// simultaneously with a 3*N-argument body.
//
// Note: the legalization in the lower package only supports N == 1; variadic
// reductions are left unconverted.
func (fn *Function) MultiReduce(operands, inits, outs []*Value, body *Function, axes ...int) (*Statement, error) {
	opType := optypes.OpTypeReduce
	n := len(operands)
	if n == 0 {
		return nil, errors.Errorf("%s requires at least one operand", opType)
	}
	if len(inits) != n || len(outs) != n {
		return nil, errors.Errorf("%s requires matching operands (%d), inits (%d) and outputs (%d)", opType, n, len(inits), len(outs))
	}
	all := make([]*Value, 0, 3*n)
	all = append(all, operands...)
	all = append(all, inits...)
	all = append(all, outs...)
	if err := fn.checkOperands(opType, all...); err != nil {
		return nil, err
	}
	elemDTypes := make([]dtypes.DType, n)
	for i := range operands {
		if err := checkReductionOperands(opType, operands[i], inits[i], outs[i]); err != nil {
			return nil, err
		}
		expected, err := shapeinference.ReduceOp(operands[i].Shape(), axes)
		if err != nil {
			return nil, err
		}
		if !expected.CompatibleWith(outs[i].Shape()) {
			return nil, errors.Errorf("%s output #%d has shape %s, want %s", opType, i, outs[i].Shape(), expected)
		}
		elemDTypes[i] = operands[i].DType()
	}
	if err := fn.checkReductionBody(opType, body, elemDTypes); err != nil {
		return nil, err
	}
	stmt := fn.addStatement(opType, all)
	stmt.Attributes = map[string]any{AttrDimensions: append([]int(nil), axes...)}
	body.owner = stmt
	stmt.Closures = []*Function{body}
	return stmt, nil
}

func checkReductionOperands(opType optypes.OpType, operand, init, out *Value) error {
	if !operand.IsRef() || !init.IsRef() || !out.IsRef() {
		return errors.Errorf("%s operand, init and output must all be buffer references", opType)
	}
	if init.Shape().Rank() != 0 {
		return errors.Errorf("%s init must be a rank-0 buffer, got %s", opType, init.Shape())
	}
	if init.DType() != operand.DType() || out.DType() != operand.DType() {
		return errors.Errorf("%s operand (%s), init (%s) and output (%s) must share a dtype",
			opType, operand.DType(), init.DType(), out.DType())
	}
	return nil
}

// ReduceWindow applies the reduction body over sliding windows of operand,
// writing one combined value per output position into out. See the lower
// package for the padding semantics: taps that fall outside the operand
// contribute the init (neutral) value.
//
// windowDimensions must have one entry per operand axis. strides, paddings
// and the dilation attributes may be nil, in which case the corresponding
// attribute is absent from the operation -- the legalization then reports a
// diagnostic and falls back to defaults (stride 1, padding 0); dilations are
// accepted but not supported by the legalization.
func (fn *Function) ReduceWindow(operand, init, out *Value, body *Function,
	windowDimensions, strides, baseDilations, windowDilations []int, paddings [][2]int) (*Statement, error) {
	opType := optypes.OpTypeReduceWindow
	if err := fn.checkOperands(opType, operand, init, out); err != nil {
		return nil, err
	}
	if err := checkReductionOperands(opType, operand, init, out); err != nil {
		return nil, err
	}
	expected, err := shapeinference.ReduceWindowOp(operand.Shape(), windowDimensions, strides, baseDilations, windowDilations, paddings)
	if err != nil {
		return nil, err
	}
	if !expected.CompatibleWith(out.Shape()) {
		return nil, errors.Errorf("%s output has shape %s, want %s", opType, out.Shape(), expected)
	}
	if err := fn.checkReductionBody(opType, body, []dtypes.DType{operand.DType()}); err != nil {
		return nil, err
	}
	stmt := fn.addStatement(opType, []*Value{operand, init, out})
	stmt.Attributes = map[string]any{AttrWindowDims: append([]int(nil), windowDimensions...)}
	if strides != nil {
		stmt.Attributes[AttrWindowStrides] = append([]int(nil), strides...)
	}
	if paddings != nil {
		stmt.Attributes[AttrPadding] = append([][2]int(nil), paddings...)
	}
	if baseDilations != nil {
		stmt.Attributes[AttrBaseDilations] = append([]int(nil), baseDilations...)
	}
	if windowDilations != nil {
		stmt.Attributes[AttrWindowDilations] = append([]int(nil), windowDilations...)
	}
	body.owner = stmt
	stmt.Closures = []*Function{body}
	return stmt, nil
}
