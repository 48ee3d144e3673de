// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package interp is a reference interpreter for loopir functions.
//
// It executes both the high-level reduction operations (Reduce,
// ReduceWindow) and the loop-level vocabulary they are legalized into, which
// makes it usable for differential testing: run a function before and after
// lowering and compare the output buffers.
//
// Parallel loops are executed sequentially. The combiner of a reduction is
// assumed associative and commutative, so the iteration order does not change
// the result beyond floating-point rounding.
package interp

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/loopir"
	"github.com/gomlx/loopir/optypes"
	"github.com/gomlx/loopir/types/xslices"
)

// Run executes fn with the given argument buffers, matched positionally to
// the function inputs. Output buffers are written in place.
//
// An input declared with dynamic dimensions accepts any static extent on
// those axes; Dim operations resolve against the actual buffer shape.
func Run(fn *loopir.Function, args ...*Buffer) error {
	if len(args) != len(fn.Inputs) {
		return errors.Errorf("function %q takes %d arguments, got %d", fn.Name, len(fn.Inputs), len(args))
	}
	it := &interpreter{
		env:  make(map[*loopir.Value]any),
		accs: make(map[*loopir.Statement]any),
	}
	for i, in := range fn.Inputs {
		if !in.IsRef() {
			return errors.Errorf("function %q input #%d is not a buffer reference", fn.Name, i)
		}
		if !in.Shape().CompatibleWith(args[i].shape) {
			return errors.Errorf("function %q input #%d declared %s, got buffer %s", fn.Name, i, in.Shape(), args[i].shape)
		}
		it.env[in] = args[i]
	}
	klog.V(2).Infof("interp: running function %q", fn.Name)
	_, err := it.runFunction(fn)
	return err
}

type interpreter struct {
	env  map[*loopir.Value]any     // *Buffer for refs, Go scalar otherwise.
	accs map[*loopir.Statement]any // running accumulator, per active loop.
}

func (it *interpreter) value(v *loopir.Value) (any, error) {
	value, found := it.env[v]
	if !found {
		return nil, errors.Errorf("value used before being defined, in function %q", v.Function().Name)
	}
	return value, nil
}

func (it *interpreter) buffer(v *loopir.Value) (*Buffer, error) {
	value, err := it.value(v)
	if err != nil {
		return nil, err
	}
	buf, ok := value.(*Buffer)
	if !ok {
		return nil, errors.Errorf("expected a buffer reference, got %T", value)
	}
	return buf, nil
}

func (it *interpreter) indices(values []*loopir.Value) ([]int64, error) {
	indices := make([]int64, len(values))
	for i, v := range values {
		value, err := it.value(v)
		if err != nil {
			return nil, err
		}
		index, ok := value.(int64)
		if !ok {
			return nil, errors.Errorf("index #%d is not index-typed, got %T", i, value)
		}
		indices[i] = index
	}
	return indices, nil
}

// runFunction executes the statements in order, returning the values of the
// terminating Return, if any.
func (it *interpreter) runFunction(fn *loopir.Function) ([]any, error) {
	for _, stmt := range fn.Statements {
		returned, ret, err := it.runStatement(stmt)
		if err != nil {
			return nil, errors.WithMessagef(err, "in function %q", fn.Name)
		}
		if returned {
			return ret, nil
		}
	}
	return nil, nil
}

func (it *interpreter) runStatement(stmt *loopir.Statement) (returned bool, ret []any, err error) {
	switch stmt.OpType {
	case optypes.OpTypeReturn:
		ret = make([]any, len(stmt.Inputs))
		for i, in := range stmt.Inputs {
			if ret[i], err = it.value(in); err != nil {
				return false, nil, err
			}
		}
		return true, ret, nil

	case optypes.OpTypeAlloc:
		buf, err := NewBuffer(stmt.Outputs[0].Shape())
		if err != nil {
			return false, nil, err
		}
		it.env[stmt.Outputs[0]] = buf

	case optypes.OpTypeConstant:
		it.env[stmt.Outputs[0]] = elemOfFlat(stmt.Attr(loopir.AttrFlat), 0)

	case optypes.OpTypeDim:
		buf, err := it.buffer(stmt.Inputs[0])
		if err != nil {
			return false, nil, err
		}
		axis := stmt.Attr(loopir.AttrAxis).(int)
		it.env[stmt.Outputs[0]] = int64(buf.shape.Dimensions[axis])

	case optypes.OpTypeLoad:
		buf, err := it.buffer(stmt.Inputs[0])
		if err != nil {
			return false, nil, err
		}
		indices, err := it.indices(stmt.Inputs[1:])
		if err != nil {
			return false, nil, err
		}
		linear, err := buf.linearIndex(indices)
		if err != nil {
			return false, nil, err
		}
		it.env[stmt.Outputs[0]] = buf.at(linear)

	case optypes.OpTypeStore:
		value, err := it.value(stmt.Inputs[0])
		if err != nil {
			return false, nil, err
		}
		buf, err := it.buffer(stmt.Inputs[1])
		if err != nil {
			return false, nil, err
		}
		indices, err := it.indices(stmt.Inputs[2:])
		if err != nil {
			return false, nil, err
		}
		linear, err := buf.linearIndex(indices)
		if err != nil {
			return false, nil, err
		}
		if err = buf.setAt(linear, value); err != nil {
			return false, nil, err
		}

	case optypes.OpTypeAdd, optypes.OpTypeSub, optypes.OpTypeMul,
		optypes.OpTypeMax, optypes.OpTypeMin, optypes.OpTypeAnd:
		lhs, err := it.value(stmt.Inputs[0])
		if err != nil {
			return false, nil, err
		}
		rhs, err := it.value(stmt.Inputs[1])
		if err != nil {
			return false, nil, err
		}
		result, err := binary(stmt.OpType, lhs, rhs)
		if err != nil {
			return false, nil, err
		}
		it.env[stmt.Outputs[0]] = result

	case optypes.OpTypeCompare:
		lhs, err := it.value(stmt.Inputs[0])
		if err != nil {
			return false, nil, err
		}
		rhs, err := it.value(stmt.Inputs[1])
		if err != nil {
			return false, nil, err
		}
		direction := stmt.Attr(loopir.AttrCompareDir).(loopir.ComparisonDirection)
		compareType := stmt.Attr(loopir.AttrCompareType).(loopir.ComparisonType)
		result, err := compare(direction, compareType, lhs, rhs)
		if err != nil {
			return false, nil, err
		}
		it.env[stmt.Outputs[0]] = result

	case optypes.OpTypeIf:
		cond, err := it.value(stmt.Inputs[0])
		if err != nil {
			return false, nil, err
		}
		arm := stmt.ElseBody()
		if cond.(bool) {
			arm = stmt.ThenBody()
		}
		// Only the taken arm runs, so the untaken arm may hold a load that
		// would be out of bounds.
		results, err := it.runFunction(arm)
		if err != nil {
			return false, nil, err
		}
		if len(results) != 1 {
			return false, nil, errors.Errorf("%s arm %q returned %d values, want 1", stmt.OpType, arm.Name, len(results))
		}
		it.env[stmt.Outputs[0]] = results[0]

	case optypes.OpTypeParallelLoop:
		if err = it.runParallelLoop(stmt); err != nil {
			return false, nil, err
		}

	case optypes.OpTypeCombine:
		if err = it.runCombine(stmt); err != nil {
			return false, nil, err
		}

	case optypes.OpTypeReduce:
		if err = it.runReduce(stmt); err != nil {
			return false, nil, err
		}

	case optypes.OpTypeReduceWindow:
		if err = it.runReduceWindow(stmt); err != nil {
			return false, nil, err
		}

	default:
		return false, nil, errors.Errorf("cannot interpret operation %s", stmt.OpType)
	}
	return false, nil, nil
}

func (it *interpreter) runParallelLoop(stmt *loopir.Statement) error {
	numLoops := stmt.NumLoops()
	bounds, err := it.indices(stmt.Inputs[:3*numLoops])
	if err != nil {
		return err
	}
	lower, upper, step := bounds[:numLoops], bounds[numLoops:2*numLoops], bounds[2*numLoops:]
	for i, s := range step {
		if s <= 0 {
			return errors.Errorf("%s step #%d is %d, must be positive", stmt.OpType, i, s)
		}
	}
	inits := stmt.Inputs[3*numLoops:]
	if len(inits) == 1 {
		init, err := it.value(inits[0])
		if err != nil {
			return err
		}
		it.accs[stmt] = init
	}

	body := stmt.LoopBody()
	err = iterate(lower, upper, step, func(iv []int64) error {
		for i, in := range body.Inputs {
			it.env[in] = iv[i]
		}
		_, err := it.runFunction(body)
		return err
	})
	if err != nil {
		return err
	}
	if len(inits) == 1 {
		it.env[stmt.Outputs[0]] = it.accs[stmt]
		delete(it.accs, stmt)
	}
	return nil
}

func (it *interpreter) runCombine(stmt *loopir.Statement) error {
	loop := stmt.Function.Owner()
	acc, found := it.accs[loop]
	if !found {
		return errors.Errorf("%s outside of an accumulating loop", stmt.OpType)
	}
	elem, err := it.value(stmt.Inputs[0])
	if err != nil {
		return err
	}
	combiner := stmt.CombinerBody()
	it.env[combiner.Inputs[0]] = elem
	it.env[combiner.Inputs[1]] = acc
	results, err := it.runFunction(combiner)
	if err != nil {
		return err
	}
	if len(results) != 1 {
		return errors.Errorf("combiner %q returned %d values, want 1", combiner.Name, len(results))
	}
	it.accs[loop] = results[0]
	return nil
}

// applyReductionBody invokes a buffer-passing reduction body on scalar
// elements and accumulators: it binds each argument triple to rank-0 scratch
// buffers, with the result argument aliasing the accumulator buffer.
func (it *interpreter) applyReductionBody(body *loopir.Function, elems, accs []any) ([]any, error) {
	n := len(elems)
	accBufs := make([]*Buffer, n)
	for i := 0; i < n; i++ {
		elemBuf, err := NewBuffer(body.Inputs[i].Shape())
		if err != nil {
			return nil, err
		}
		if err = elemBuf.setAt(0, elems[i]); err != nil {
			return nil, err
		}
		accBuf, err := NewBuffer(body.Inputs[n+i].Shape())
		if err != nil {
			return nil, err
		}
		if err = accBuf.setAt(0, accs[i]); err != nil {
			return nil, err
		}
		accBufs[i] = accBuf
		it.env[body.Inputs[i]] = elemBuf
		it.env[body.Inputs[n+i]] = accBuf
		it.env[body.Inputs[2*n+i]] = accBuf
	}
	if _, err := it.runFunction(body); err != nil {
		return nil, err
	}
	results := make([]any, n)
	for i, accBuf := range accBufs {
		results[i] = accBuf.at(0)
	}
	return results, nil
}

func (it *interpreter) runReduce(stmt *loopir.Statement) error {
	n := len(stmt.Inputs) / 3
	operands := make([]*Buffer, n)
	outs := make([]*Buffer, n)
	inits := make([]any, n)
	var err error
	for i := 0; i < n; i++ {
		if operands[i], err = it.buffer(stmt.Inputs[i]); err != nil {
			return err
		}
		initBuf, err := it.buffer(stmt.Inputs[n+i])
		if err != nil {
			return err
		}
		inits[i] = initBuf.at(0)
		if outs[i], err = it.buffer(stmt.Inputs[2*n+i]); err != nil {
			return err
		}
	}
	axes := stmt.Attr(loopir.AttrDimensions).([]int)
	reducing := make([]bool, operands[0].shape.Rank())
	for _, axis := range axes {
		reducing[axis] = true
	}

	// Seed every output position with the initial value, then fold each
	// operand element into its output position.
	for i := 0; i < n; i++ {
		for linear := 0; linear < outs[i].shape.Size(); linear++ {
			if err = outs[i].setAt(linear, inits[i]); err != nil {
				return err
			}
		}
	}
	body := stmt.Closures[0]
	return iterateDims(operands[0].shape.Dimensions, func(indices []int64) error {
		var outIndices []int64
		for axis, index := range indices {
			if !reducing[axis] {
				outIndices = append(outIndices, index)
			}
		}
		elems := make([]any, n)
		accs := make([]any, n)
		linears := make([]int, n)
		for i := 0; i < n; i++ {
			linear, err := operands[i].linearIndex(indices)
			if err != nil {
				return err
			}
			elems[i] = operands[i].at(linear)
			if linears[i], err = outs[i].linearIndex(outIndices); err != nil {
				return err
			}
			accs[i] = outs[i].at(linears[i])
		}
		results, err := it.applyReductionBody(body, elems, accs)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err = outs[i].setAt(linears[i], results[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (it *interpreter) runReduceWindow(stmt *loopir.Statement) error {
	if stmt.Attr(loopir.AttrBaseDilations) != nil || stmt.Attr(loopir.AttrWindowDilations) != nil {
		return errors.Errorf("cannot interpret %s with dilations", stmt.OpType)
	}
	operand, err := it.buffer(stmt.Inputs[0])
	if err != nil {
		return err
	}
	initBuf, err := it.buffer(stmt.Inputs[1])
	if err != nil {
		return err
	}
	init := initBuf.at(0)
	out, err := it.buffer(stmt.Inputs[2])
	if err != nil {
		return err
	}
	rank := operand.shape.Rank()
	windowDims := stmt.Attr(loopir.AttrWindowDims).([]int)
	strides := xslices.SliceWithValue(rank, 1)
	if attr := stmt.Attr(loopir.AttrWindowStrides); attr != nil {
		strides = attr.([]int)
	}
	paddings := make([][2]int, rank)
	if attr := stmt.Attr(loopir.AttrPadding); attr != nil {
		paddings = attr.([][2]int)
	}

	body := stmt.Closures[0]
	return iterateDims(out.shape.Dimensions, func(outIndices []int64) error {
		acc := init
		err := iterateDims(windowDims, func(windowIndices []int64) error {
			elem := init // Taps in the padding contribute the neutral value.
			inBounds := true
			operandIndices := make([]int64, rank)
			for axis := 0; axis < rank; axis++ {
				index := outIndices[axis]*int64(strides[axis]) + windowIndices[axis] - int64(paddings[axis][0])
				operandIndices[axis] = index
				if index < 0 || index >= int64(operand.shape.Dimensions[axis]) {
					inBounds = false
				}
			}
			if inBounds {
				linear, err := operand.linearIndex(operandIndices)
				if err != nil {
					return err
				}
				elem = operand.at(linear)
			}
			results, err := it.applyReductionBody(body, []any{elem}, []any{acc})
			if err != nil {
				return err
			}
			acc = results[0]
			return nil
		})
		if err != nil {
			return err
		}
		linear, err := out.linearIndex(outIndices)
		if err != nil {
			return err
		}
		return out.setAt(linear, acc)
	})
}

// iterate walks the iteration space [lower, upper) with the given steps,
// last axis fastest, calling visit with the induction variables. The slice
// passed to visit is reused across calls.
func iterate(lower, upper, step []int64, visit func(iv []int64) error) error {
	for i := range lower {
		if lower[i] >= upper[i] {
			return nil
		}
	}
	iv := append([]int64(nil), lower...)
	for {
		if err := visit(iv); err != nil {
			return err
		}
		axis := len(iv) - 1
		for {
			iv[axis] += step[axis]
			if iv[axis] < upper[axis] {
				break
			}
			if axis == 0 {
				return nil
			}
			iv[axis] = lower[axis]
			axis--
		}
	}
}

// iterateDims is iterate over [0, dim) with step 1 on every axis. A rank-0
// space has exactly one (empty) point.
func iterateDims(dims []int, visit func(indices []int64) error) error {
	if len(dims) == 0 {
		return visit(nil)
	}
	lower := make([]int64, len(dims))
	step := xslices.SliceWithValue(len(dims), int64(1))
	upper := xslices.Map(dims, func(dim int) int64 { return int64(dim) })
	return iterate(lower, upper, step, visit)
}
