// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package lower implements the legalization of the buffer-level reduction
// operations (Reduce, ReduceWindow) into nests of parallel loops with scalar
// combiners.
//
// A Reduce becomes an outer parallel loop over the non-reduced (parallel)
// dimensions wrapping an inner parallel loop over the reduced dimensions; the
// inner loop carries the initial value and folds one loaded element per
// iteration through a Combine whose combiner is rebuilt from the reduction
// body. When every dimension is reduced the outer loop is omitted and the
// scalar result is stored at a fixed zero index.
//
// A ReduceWindow becomes an outer parallel loop over the output positions and
// an inner parallel loop over the window. Each window tap addresses the
// operand at
//
//	output_index*stride + window_index - padding_low
//
// per axis; a single unsigned less-than comparison per axis doubles as the
// lower and upper bounds check (a negative index wraps to a huge unsigned
// value), and a two-armed conditional substitutes the initial value for taps
// that fall into the padding, so no out-of-bounds load is ever issued.
//
// Both lowerings share the combiner construction: the reduction body takes
// three rank-0 buffer arguments (element, accumulator, result aliasing the
// accumulator) while a combiner takes two scalars and returns one. The bridge
// allocates two rank-0 scratch buffers, stores the scalar arguments into
// them, clones the body statements with the buffer arguments remapped to the
// scratch buffers, and returns the value loaded back from the accumulator.
package lower

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/loopir"
	"github.com/gomlx/loopir/optypes"
	"github.com/gomlx/loopir/rewrite"
	"github.com/gomlx/loopir/types"
	"github.com/gomlx/loopir/types/shapes"
	"github.com/gomlx/loopir/types/xslices"
)

// PassName identifies the legalization pass in logs and pipelines.
const PassName = "legalize-to-parallel-loops"

type options struct {
	strict  bool
	handler rewrite.Handler
}

// Option configures the legalization.
type Option func(*options)

// WithStrict makes attribute problems hard failures: a ReduceWindow with
// missing window strides or padding, or with dilation attributes, aborts the
// pass instead of being converted with defaults.
func WithStrict() Option {
	return func(o *options) { o.strict = true }
}

// WithDiagnosticHandler routes the diagnostics emitted during conversion --
// defaulted attributes, ignored dilations -- to h instead of the log.
func WithDiagnosticHandler(h rewrite.Handler) Option {
	return func(o *options) { o.handler = h }
}

// LegalizeToParallelLoops converts every Reduce and ReduceWindow in fn (and
// in its nested closures) to parallel loops and scalar combiners. It fails if
// any of them cannot be converted -- e.g. a variadic Reduce, which no pattern
// matches.
func LegalizeToParallelLoops(fn *loopir.Function, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	target := rewrite.NewTarget().
		AddLegal(
			optypes.OpTypeAlloc, optypes.OpTypeConstant, optypes.OpTypeDim,
			optypes.OpTypeLoad, optypes.OpTypeStore,
			optypes.OpTypeAdd, optypes.OpTypeSub, optypes.OpTypeMul,
			optypes.OpTypeMax, optypes.OpTypeMin, optypes.OpTypeAnd,
			optypes.OpTypeCompare, optypes.OpTypeIf,
			optypes.OpTypeParallelLoop, optypes.OpTypeCombine, optypes.OpTypeReturn).
		AddIllegal(optypes.OpTypeReduce, optypes.OpTypeReduceWindow)
	patterns := []rewrite.Pattern{
		&reduceConverter{},
		&reduceWindowConverter{strict: o.strict},
	}
	klog.V(1).Infof("%s: converting function %q", PassName, fn.Name)
	return rewrite.ApplyPartialConversion(fn, target, patterns, o.handler)
}

// Pass wraps the legalization as a named pass, for pipelines that run passes
// generically.
type Pass struct {
	opts []Option
}

// NewPass creates the legalization pass with the given options.
func NewPass(opts ...Option) *Pass {
	return &Pass{opts: opts}
}

// Name of the pass.
func (p *Pass) Name() string { return PassName }

// Description of the pass.
func (p *Pass) Description() string {
	return "Legalize Reduce and ReduceWindow operations to nests of parallel loops with scalar combiners."
}

// Run applies the pass to fn.
func (p *Pass) Run(fn *loopir.Function) error {
	return LegalizeToParallelLoops(fn, p.opts...)
}

// staticOrDynamicDim returns the extent of ref's axis as an index value: a
// constant when the shape is static on that axis, a Dim query otherwise.
func staticOrDynamicDim(fn *loopir.Function, ref *loopir.Value, axis int) (*loopir.Value, error) {
	if dim := ref.Shape().Dim(axis); dim != shapes.DynamicDim {
		return fn.ConstantIndex(int64(dim))
	}
	return fn.Dim(ref, axis)
}

// convertToCombinerBody rebuilds the buffer-passing reduction body as the
// scalar combiner of combine. The body's three rank-0 buffer arguments
// (element, accumulator, result) are bridged to the combiner's two scalar
// arguments through scratch buffers: the result argument is remapped to the
// same scratch buffer as the accumulator, matching the aliasing the reduction
// body relies on.
func convertToCombinerBody(rw *rewrite.Rewriter, combine *loopir.Statement, body *loopir.Function) error {
	combiner := combine.CombinerBody()
	rw.SetInsertionPointToStart(combiner)
	f := rw.F()
	elemBuf, err := f.Alloc(body.Inputs[0].Shape())
	if err != nil {
		return err
	}
	if _, err = f.Store(combiner.Inputs[0], elemBuf); err != nil {
		return err
	}
	accBuf, err := f.Alloc(body.Inputs[1].Shape())
	if err != nil {
		return err
	}
	if _, err = f.Store(combiner.Inputs[1], accBuf); err != nil {
		return err
	}
	remap := loopir.ValueMap{
		body.Inputs[0]: elemBuf,
		body.Inputs[1]: accBuf,
		body.Inputs[2]: accBuf,
	}
	for _, stmt := range body.Statements {
		if stmt.OpType == optypes.OpTypeReturn {
			// The body's empty terminator; the combiner returns the
			// accumulator instead.
			continue
		}
		rw.Clone(stmt, remap)
	}
	result, err := f.Load(accBuf)
	if err != nil {
		return err
	}
	return f.Return(result)
}

// reduceConverter converts a single-operand Reduce.
type reduceConverter struct{}

func (c *reduceConverter) OpType() optypes.OpType { return optypes.OpTypeReduce }

func (c *reduceConverter) MatchAndRewrite(op *loopir.Statement, rw *rewrite.Rewriter) (bool, error) {
	if len(op.Inputs) != 3 {
		// Variadic reduction; not supported by this lowering.
		return false, nil
	}
	combine, err := c.createCombineInNestedLoops(op, rw)
	if err != nil {
		return false, err
	}
	if err = convertToCombinerBody(rw, combine, op.Closures[0]); err != nil {
		return false, err
	}
	if err = rw.Erase(op); err != nil {
		return false, err
	}
	return true, nil
}

// createCombineInNestedLoops builds the loop nest replacing op and returns
// the Combine statement whose combiner body is still to be filled in.
func (c *reduceConverter) createCombineInNestedLoops(op *loopir.Statement, rw *rewrite.Rewriter) (*loopir.Statement, error) {
	operand, init, out := op.Inputs[0], op.Inputs[1], op.Inputs[2]
	reducingDims := types.SetWith(op.Attr(loopir.AttrDimensions).([]int)...)
	parallelDims := types.SetWith(xslices.Iota(0, operand.Shape().Rank())...).Sub(reducingDims)
	f := rw.F()
	zero, err := f.ConstantIndex(0)
	if err != nil {
		return nil, err
	}
	one, err := f.ConstantIndex(1)
	if err != nil {
		return nil, err
	}

	// Partition the operand dimensions, preserving their order within each
	// class.
	var parallelUpper, reduceUpper []*loopir.Value
	for axis := range operand.Shape().Dimensions {
		upper, err := staticOrDynamicDim(f, operand, axis)
		if err != nil {
			return nil, err
		}
		if parallelDims.Has(axis) {
			parallelUpper = append(parallelUpper, upper)
		} else {
			reduceUpper = append(reduceUpper, upper)
		}
	}
	initValue, err := f.Load(init)
	if err != nil {
		return nil, err
	}

	// Outer loop over the parallel dimensions, omitted when every dimension
	// is reduced.
	var outer *loopir.Statement
	if len(parallelUpper) > 0 {
		outer, err = f.ParallelLoop(
			xslices.SliceWithValue(len(parallelUpper), zero), parallelUpper,
			xslices.SliceWithValue(len(parallelUpper), one), nil)
		if err != nil {
			return nil, err
		}
		rw.SetInsertionPointToStart(outer.LoopBody())
		f = rw.F()
	}

	// Inner loop over the reduced dimensions, carrying the initial value.
	inner, err := f.ParallelLoop(
		xslices.SliceWithValue(len(reduceUpper), zero), reduceUpper,
		xslices.SliceWithValue(len(reduceUpper), one), []*loopir.Value{initValue})
	if err != nil {
		return nil, err
	}
	outIndices := []*loopir.Value{zero} // Rank-0 output, fixed zero index.
	if outer != nil {
		outIndices = outer.InductionVars()
	}
	if _, err = f.Store(inner.Outputs[0], out, outIndices...); err != nil {
		return nil, err
	}

	// Interleave the induction variables back into operand order.
	indices := make([]*loopir.Value, operand.Shape().Rank())
	nextParallel, nextReduce := 0, 0
	for axis := range indices {
		if parallelDims.Has(axis) {
			indices[axis] = outer.InductionVars()[nextParallel]
			nextParallel++
		} else {
			indices[axis] = inner.InductionVars()[nextReduce]
			nextReduce++
		}
	}
	rw.SetInsertionPointToStart(inner.LoopBody())
	elem, err := rw.F().Load(operand, indices...)
	if err != nil {
		return nil, err
	}
	return rw.F().Combine(elem)
}

// reduceWindowConverter converts a ReduceWindow.
type reduceWindowConverter struct {
	strict bool
}

func (c *reduceWindowConverter) OpType() optypes.OpType { return optypes.OpTypeReduceWindow }

func (c *reduceWindowConverter) MatchAndRewrite(op *loopir.Statement, rw *rewrite.Rewriter) (bool, error) {
	strides, paddings, err := c.windowAttributes(op, rw)
	if err != nil {
		return false, err
	}
	outputLoop, windowLoop, err := c.createLoopsOverOutputAndWindow(op, rw)
	if err != nil {
		return false, err
	}
	combine, err := c.createCombineInWindowLoop(op, outputLoop, windowLoop, strides, paddings, rw)
	if err != nil {
		return false, err
	}
	if err = convertToCombinerBody(rw, combine, op.Closures[0]); err != nil {
		return false, err
	}
	if err = rw.Erase(op); err != nil {
		return false, err
	}
	return true, nil
}

// windowAttributes resolves the optional window attributes before anything is
// built, so that in strict mode the function is left untouched on failure.
// In the default lenient mode a missing attribute is reported as an
// error-level diagnostic and defaulted (stride 1, padding 0), and dilations
// are reported as a remark and ignored.
func (c *reduceWindowConverter) windowAttributes(op *loopir.Statement, rw *rewrite.Rewriter) (strides []int, paddings [][2]int, err error) {
	rank := op.Inputs[0].Shape().Rank()
	if attr := op.Attr(loopir.AttrWindowStrides); attr != nil {
		strides = attr.([]int)
	} else if rank > 0 {
		if c.strict {
			return nil, nil, errors.Errorf("%s without window strides", op.OpType)
		}
		rw.Errorf(op, "no window strides specified, using stride 1 on every axis")
		strides = xslices.SliceWithValue(rank, 1)
	}
	if attr := op.Attr(loopir.AttrPadding); attr != nil {
		paddings = attr.([][2]int)
	} else if rank > 0 {
		if c.strict {
			return nil, nil, errors.Errorf("%s without padding", op.OpType)
		}
		rw.Errorf(op, "no padding specified, using no padding on every axis")
		paddings = make([][2]int, rank)
	}
	if op.Attr(loopir.AttrBaseDilations) != nil || op.Attr(loopir.AttrWindowDilations) != nil {
		if c.strict {
			return nil, nil, errors.Errorf("%s with dilations is not supported", op.OpType)
		}
		rw.Remarkf(op, "dilations are not supported by this lowering, the attributes are ignored")
	}
	return strides, paddings, nil
}

// createLoopsOverOutputAndWindow builds the loop pair: an outer parallel loop
// over the output positions and an inner one over the window, the latter
// carrying the initial value, with the combined result stored at the output
// position. For a rank-0 operand the outer loop degenerates away and the
// window loop runs a single iteration.
func (c *reduceWindowConverter) createLoopsOverOutputAndWindow(op *loopir.Statement, rw *rewrite.Rewriter) (outputLoop, windowLoop *loopir.Statement, err error) {
	operand, init, out := op.Inputs[0], op.Inputs[1], op.Inputs[2]
	f := rw.F()
	zero, err := f.ConstantIndex(0)
	if err != nil {
		return nil, nil, err
	}
	one, err := f.ConstantIndex(1)
	if err != nil {
		return nil, nil, err
	}
	initValue, err := f.Load(init)
	if err != nil {
		return nil, nil, err
	}

	if out.Shape().Rank() > 0 {
		upper := make([]*loopir.Value, out.Shape().Rank())
		for axis := range upper {
			if upper[axis], err = staticOrDynamicDim(f, out, axis); err != nil {
				return nil, nil, err
			}
		}
		outputLoop, err = f.ParallelLoop(
			xslices.SliceWithValue(len(upper), zero), upper,
			xslices.SliceWithValue(len(upper), one), nil)
		if err != nil {
			return nil, nil, err
		}
		rw.SetInsertionPointToStart(outputLoop.LoopBody())
		f = rw.F()
	}

	windowUpper := []*loopir.Value{one} // Rank-0: a single window tap.
	if rank := operand.Shape().Rank(); rank > 0 {
		windowDims := op.Attr(loopir.AttrWindowDims).([]int)
		windowUpper = make([]*loopir.Value, rank)
		for axis := range windowUpper {
			if windowUpper[axis], err = f.ConstantIndex(int64(windowDims[axis])); err != nil {
				return nil, nil, err
			}
		}
	}
	windowLoop, err = f.ParallelLoop(
		xslices.SliceWithValue(len(windowUpper), zero), windowUpper,
		xslices.SliceWithValue(len(windowUpper), one), []*loopir.Value{initValue})
	if err != nil {
		return nil, nil, err
	}
	outIndices := []*loopir.Value{zero}
	if outputLoop != nil {
		outIndices = outputLoop.InductionVars()
	}
	if _, err = f.Store(windowLoop.Outputs[0], out, outIndices...); err != nil {
		return nil, nil, err
	}
	return outputLoop, windowLoop, nil
}

// createCombineInWindowLoop fills the window loop body: compute the operand
// index of the current tap, select between the loaded element and the initial
// value depending on whether the tap is in bounds, and feed the selection to
// a Combine.
func (c *reduceWindowConverter) createCombineInWindowLoop(op, outputLoop, windowLoop *loopir.Statement,
	strides []int, paddings [][2]int, rw *rewrite.Rewriter) (*loopir.Statement, error) {
	operand, init := op.Inputs[0], op.Inputs[1]
	rw.SetInsertionPointToStart(windowLoop.LoopBody())
	f := rw.F()

	if operand.Shape().Rank() == 0 {
		// Single tap, always in bounds.
		elem, err := f.Load(operand)
		if err != nil {
			return nil, err
		}
		return f.Combine(elem)
	}

	initValue, err := f.Load(init)
	if err != nil {
		return nil, err
	}
	indices := make([]*loopir.Value, operand.Shape().Rank())
	var inBounds *loopir.Value
	for axis := range indices {
		stride, err := f.ConstantIndex(int64(strides[axis]))
		if err != nil {
			return nil, err
		}
		padLow, err := f.ConstantIndex(int64(paddings[axis][0]))
		if err != nil {
			return nil, err
		}
		center, err := f.Mul(outputLoop.InductionVars()[axis], stride)
		if err != nil {
			return nil, err
		}
		index, err := f.Add(center, windowLoop.InductionVars()[axis])
		if err != nil {
			return nil, err
		}
		if index, err = f.Sub(index, padLow); err != nil {
			return nil, err
		}
		indices[axis] = index

		// One unsigned comparison covers both bounds: a negative index wraps
		// to a value far above any extent.
		extent, err := staticOrDynamicDim(f, operand, axis)
		if err != nil {
			return nil, err
		}
		cmp, err := f.Compare(index, extent, loopir.CompareLT, loopir.CompareUnsigned)
		if err != nil {
			return nil, err
		}
		if inBounds == nil {
			inBounds = cmp
		} else if inBounds, err = f.And(inBounds, cmp); err != nil {
			return nil, err
		}
	}

	// The load only ever executes on the in-bounds arm; padding taps yield
	// the initial (neutral) value.
	sel, err := f.If(inBounds, operand.DType())
	if err != nil {
		return nil, err
	}
	elem, err := sel.ThenBody().Load(operand, indices...)
	if err != nil {
		return nil, err
	}
	if err = sel.ThenBody().Return(elem); err != nil {
		return nil, err
	}
	if err = sel.ElseBody().Return(initValue); err != nil {
		return nil, err
	}
	return f.Combine(sel.Outputs[0])
}
