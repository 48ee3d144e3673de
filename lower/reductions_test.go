package lower

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/loopir"
	"github.com/gomlx/loopir/interp"
	"github.com/gomlx/loopir/optypes"
	"github.com/gomlx/loopir/rewrite"
	"github.com/gomlx/loopir/types/shapes"
)

func findOps(fn *loopir.Function, opType optypes.OpType) []*loopir.Statement {
	var found []*loopir.Statement
	var walk func(fn *loopir.Function)
	walk = func(fn *loopir.Function) {
		for _, stmt := range fn.Statements {
			if stmt.OpType == opType {
				found = append(found, stmt)
			}
			for _, closure := range stmt.Closures {
				walk(closure)
			}
		}
	}
	walk(fn)
	return found
}

func reductionBody(t *testing.T, fn *loopir.Function, name string, dtype dtypes.DType,
	combine func(body *loopir.Function, elem, acc *loopir.Value) (*loopir.Value, error)) *loopir.Function {
	body := fn.Closure(name)
	elemRef := must.M1(body.RefInput("elem", shapes.Scalar(dtype)))
	accRef := must.M1(body.RefInput("acc", shapes.Scalar(dtype)))
	resultRef := must.M1(body.RefInput("result", shapes.Scalar(dtype)))
	elem := must.M1(body.Load(elemRef))
	acc := must.M1(body.Load(accRef))
	result, err := combine(body, elem, acc)
	require.NoError(t, err)
	must.M1(body.Store(result, resultRef))
	require.NoError(t, body.Return())
	return body
}

func addBody(t *testing.T, fn *loopir.Function, dtype dtypes.DType) *loopir.Function {
	return reductionBody(t, fn, "add", dtype, func(body *loopir.Function, elem, acc *loopir.Value) (*loopir.Value, error) {
		return body.Add(elem, acc)
	})
}

func maxBody(t *testing.T, fn *loopir.Function, dtype dtypes.DType) *loopir.Function {
	return reductionBody(t, fn, "max", dtype, func(body *loopir.Function, elem, acc *loopir.Value) (*loopir.Value, error) {
		return body.Max(elem, acc)
	})
}

func TestReduceRows(t *testing.T) {
	fn := loopir.New("reduce_rows").Main()
	operand := must.M1(fn.RefInput("operand", shapes.Make(dtypes.Float32, 2, 3)))
	init := must.M1(fn.RefInput("init", shapes.Scalar(dtypes.Float32)))
	out := must.M1(fn.RefInput("out", shapes.Make(dtypes.Float32, 2)))
	must.M1(fn.Reduce(operand, init, out, addBody(t, fn, dtypes.Float32), 1))

	require.NoError(t, LegalizeToParallelLoops(fn))
	require.Empty(t, findOps(fn, optypes.OpTypeReduce))

	// Outer loop over the parallel dimension wrapping an inner loop over the
	// reduced one.
	loops := findOps(fn, optypes.OpTypeParallelLoop)
	require.Len(t, loops, 2)
	outer, inner := loops[0], loops[1]
	require.Equal(t, 1, outer.NumLoops())
	require.Empty(t, outer.Outputs)
	require.Same(t, outer.LoopBody(), inner.Function)
	require.Equal(t, 1, inner.NumLoops())
	require.Len(t, inner.Outputs, 1, "inner loop carries the accumulator")

	// The combiner was rebuilt from the buffer-passing body: scratch allocs,
	// argument stores, the cloned Add, the accumulator load and its Return.
	combines := findOps(fn, optypes.OpTypeCombine)
	require.Len(t, combines, 1)
	combiner := combines[0].CombinerBody()
	require.Len(t, findOps(combiner, optypes.OpTypeAlloc), 2)
	require.Len(t, findOps(combiner, optypes.OpTypeAdd), 1)
	require.True(t, combiner.Returned)

	operandBuf := must.M1(interp.FromFlat(shapes.Make(dtypes.Float32, 2, 3), []float32{1, 2, 3, 4, 5, 6}))
	initBuf := must.M1(interp.FromFlat(shapes.Scalar(dtypes.Float32), []float32{0}))
	outBuf := must.M1(interp.NewBuffer(shapes.Make(dtypes.Float32, 2)))
	require.NoError(t, interp.Run(fn, operandBuf, initBuf, outBuf))
	require.Equal(t, []float32{6, 15}, outBuf.Flat())
}

func TestReduceAllAxes(t *testing.T) {
	fn := loopir.New("reduce_all").Main()
	operand := must.M1(fn.RefInput("operand", shapes.Make(dtypes.Float32, 5)))
	init := must.M1(fn.RefInput("init", shapes.Scalar(dtypes.Float32)))
	out := must.M1(fn.RefInput("out", shapes.Scalar(dtypes.Float32)))
	must.M1(fn.Reduce(operand, init, out, maxBody(t, fn, dtypes.Float32), 0))

	require.NoError(t, LegalizeToParallelLoops(fn))
	require.Empty(t, findOps(fn, optypes.OpTypeReduce))

	// No parallel dimensions: a single loop, and the scalar result is stored
	// at a fixed zero index.
	loops := findOps(fn, optypes.OpTypeParallelLoop)
	require.Len(t, loops, 1)
	var store *loopir.Statement
	for _, stmt := range fn.Statements {
		if stmt.OpType == optypes.OpTypeStore {
			store = stmt
		}
	}
	require.NotNil(t, store, "result store at the top level")
	require.Same(t, out, store.Inputs[1])
	index := store.Inputs[2].Def()
	require.Equal(t, optypes.OpTypeConstant, index.OpType)
	require.Equal(t, []int64{0}, index.Attr(loopir.AttrFlat))

	negInf := float32(math.Inf(-1))
	operandBuf := must.M1(interp.FromFlat(shapes.Make(dtypes.Float32, 5), []float32{3, -7, 5, 1, 2}))
	initBuf := must.M1(interp.FromFlat(shapes.Scalar(dtypes.Float32), []float32{negInf}))
	outBuf := must.M1(interp.NewBuffer(shapes.Scalar(dtypes.Float32)))
	require.NoError(t, interp.Run(fn, operandBuf, initBuf, outBuf))
	require.Equal(t, []float32{5}, outBuf.Flat())
}

func TestReduceInterleavedAxes(t *testing.T) {
	fn := loopir.New("reduce_interleaved").Main()
	operand := must.M1(fn.RefInput("operand", shapes.Make(dtypes.Int32, 2, 3, 4)))
	init := must.M1(fn.RefInput("init", shapes.Scalar(dtypes.Int32)))
	out := must.M1(fn.RefInput("out", shapes.Make(dtypes.Int32, 3)))
	must.M1(fn.Reduce(operand, init, out, addBody(t, fn, dtypes.Int32), 0, 2))

	require.NoError(t, LegalizeToParallelLoops(fn))

	// Axes 0 and 2 are reduced, axis 1 stays parallel: the operand load
	// interleaves the induction variables back into original axis order.
	loops := findOps(fn, optypes.OpTypeParallelLoop)
	require.Len(t, loops, 2)
	outer, inner := loops[0], loops[1]
	require.Equal(t, 1, outer.NumLoops())
	require.Equal(t, 2, inner.NumLoops())
	var load *loopir.Statement
	for _, stmt := range inner.LoopBody().Statements {
		if stmt.OpType == optypes.OpTypeLoad {
			load = stmt
		}
	}
	require.NotNil(t, load)
	require.Same(t, operand, load.Inputs[0])
	require.Same(t, inner.InductionVars()[0], load.Inputs[1])
	require.Same(t, outer.InductionVars()[0], load.Inputs[2])
	require.Same(t, inner.InductionVars()[1], load.Inputs[3])

	values := make([]int32, 24)
	for i := range values {
		values[i] = int32(i + 1)
	}
	operandBuf := must.M1(interp.FromFlat(shapes.Make(dtypes.Int32, 2, 3, 4), values))
	initBuf := must.M1(interp.FromFlat(shapes.Scalar(dtypes.Int32), []int32{0}))
	outBuf := must.M1(interp.NewBuffer(shapes.Make(dtypes.Int32, 3)))
	require.NoError(t, interp.Run(fn, operandBuf, initBuf, outBuf))
	require.Equal(t, []int32{68, 100, 132}, outBuf.Flat())
}

func TestReduceDynamicDim(t *testing.T) {
	fn := loopir.New("reduce_dynamic").Main()
	operand := must.M1(fn.RefInput("operand", shapes.Make(dtypes.Float32, shapes.DynamicDim, 3)))
	init := must.M1(fn.RefInput("init", shapes.Scalar(dtypes.Float32)))
	out := must.M1(fn.RefInput("out", shapes.Make(dtypes.Float32, shapes.DynamicDim)))
	must.M1(fn.Reduce(operand, init, out, addBody(t, fn, dtypes.Float32), 1))

	require.NoError(t, LegalizeToParallelLoops(fn))

	// The dynamic extent becomes a runtime dimension query, the static one a
	// constant.
	dims := findOps(fn, optypes.OpTypeDim)
	require.Len(t, dims, 1)
	require.Same(t, operand, dims[0].Inputs[0])
	require.Equal(t, 0, dims[0].Attr(loopir.AttrAxis))

	operandBuf := must.M1(interp.FromFlat(shapes.Make(dtypes.Float32, 2, 3), []float32{1, 2, 3, 4, 5, 6}))
	initBuf := must.M1(interp.FromFlat(shapes.Scalar(dtypes.Float32), []float32{0}))
	outBuf := must.M1(interp.NewBuffer(shapes.Make(dtypes.Float32, 2)))
	require.NoError(t, interp.Run(fn, operandBuf, initBuf, outBuf))
	require.Equal(t, []float32{6, 15}, outBuf.Flat())
}

func TestVariadicReduceFails(t *testing.T) {
	fn := loopir.New("variadic").Main()
	dtype := dtypes.Float32
	operandA := must.M1(fn.RefInput("a", shapes.Make(dtype, 4)))
	operandB := must.M1(fn.RefInput("b", shapes.Make(dtype, 4)))
	initA := must.M1(fn.RefInput("initA", shapes.Scalar(dtype)))
	initB := must.M1(fn.RefInput("initB", shapes.Scalar(dtype)))
	outA := must.M1(fn.RefInput("outA", shapes.Scalar(dtype)))
	outB := must.M1(fn.RefInput("outB", shapes.Scalar(dtype)))

	body := fn.Closure("pair_sum")
	var refs []*loopir.Value
	for _, name := range []string{"elemA", "elemB", "accA", "accB", "resultA", "resultB"} {
		refs = append(refs, must.M1(body.RefInput(name, shapes.Scalar(dtype))))
	}
	for i := 0; i < 2; i++ {
		elem := must.M1(body.Load(refs[i]))
		acc := must.M1(body.Load(refs[2+i]))
		sum := must.M1(body.Add(elem, acc))
		must.M1(body.Store(sum, refs[4+i]))
	}
	require.NoError(t, body.Return())
	must.M1(fn.MultiReduce(
		[]*loopir.Value{operandA, operandB},
		[]*loopir.Value{initA, initB},
		[]*loopir.Value{outA, outB}, body, 0))

	// No pattern supports the variadic form; the op survives and the pass
	// reports the failure.
	err := LegalizeToParallelLoops(fn)
	require.ErrorContains(t, err, "failed to legalize")
	require.Len(t, findOps(fn, optypes.OpTypeReduce), 1)
}

func TestMaxPooling(t *testing.T) {
	fn := loopir.New("max_pool").Main()
	operand := must.M1(fn.RefInput("operand", shapes.Make(dtypes.Float32, 4, 4)))
	init := must.M1(fn.RefInput("init", shapes.Scalar(dtypes.Float32)))
	out := must.M1(fn.RefInput("out", shapes.Make(dtypes.Float32, 2, 2)))
	must.M1(fn.ReduceWindow(operand, init, out, maxBody(t, fn, dtypes.Float32),
		[]int{2, 2}, []int{2, 2}, nil, nil, [][2]int{{0, 0}, {0, 0}}))

	require.NoError(t, LegalizeToParallelLoops(fn))
	require.Empty(t, findOps(fn, optypes.OpTypeReduceWindow))

	// Output loop wrapping the window loop; the guarded load sits in the
	// then-arm of the bounds conditional.
	loops := findOps(fn, optypes.OpTypeParallelLoop)
	require.Len(t, loops, 2)
	require.Len(t, findOps(fn, optypes.OpTypeIf), 1)
	sel := findOps(fn, optypes.OpTypeIf)[0]
	require.Len(t, findOps(sel.ThenBody(), optypes.OpTypeLoad), 1)
	require.Empty(t, findOps(sel.ElseBody(), optypes.OpTypeLoad))

	values := make([]float32, 16)
	for i := range values {
		values[i] = float32(i + 1)
	}
	operandBuf := must.M1(interp.FromFlat(shapes.Make(dtypes.Float32, 4, 4), values))
	initBuf := must.M1(interp.FromFlat(shapes.Scalar(dtypes.Float32), []float32{float32(math.Inf(-1))}))
	outBuf := must.M1(interp.NewBuffer(shapes.Make(dtypes.Float32, 2, 2)))
	require.NoError(t, interp.Run(fn, operandBuf, initBuf, outBuf))
	require.Equal(t, []float32{6, 8, 14, 16}, outBuf.Flat())
}

// TestPaddedWindowSum checks the padded case differentially: the same
// function is evaluated once with the high-level ReduceWindow and once after
// legalization, and both outputs must agree. Padding taps must contribute the
// neutral value instead of reading out of bounds.
func TestPaddedWindowSum(t *testing.T) {
	fn := loopir.New("padded_sum").Main()
	operand := must.M1(fn.RefInput("operand", shapes.Make(dtypes.Float32, 3, 3)))
	init := must.M1(fn.RefInput("init", shapes.Scalar(dtypes.Float32)))
	out := must.M1(fn.RefInput("out", shapes.Make(dtypes.Float32, 3, 3)))
	must.M1(fn.ReduceWindow(operand, init, out, addBody(t, fn, dtypes.Float32),
		[]int{3, 3}, []int{1, 1}, nil, nil, [][2]int{{1, 1}, {1, 1}}))

	values := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	operandBuf := must.M1(interp.FromFlat(shapes.Make(dtypes.Float32, 3, 3), values))
	initBuf := must.M1(interp.FromFlat(shapes.Scalar(dtypes.Float32), []float32{0}))

	expected := must.M1(interp.NewBuffer(shapes.Make(dtypes.Float32, 3, 3)))
	require.NoError(t, interp.Run(fn, operandBuf, initBuf, expected))
	require.Equal(t, float32(1+2+4+5), expected.Flat().([]float32)[0], "corner sums its 2x2 neighborhood")

	require.NoError(t, LegalizeToParallelLoops(fn))
	lowered := must.M1(interp.NewBuffer(shapes.Make(dtypes.Float32, 3, 3)))
	require.NoError(t, interp.Run(fn, operandBuf, initBuf, lowered))
	require.Equal(t, expected.Flat(), lowered.Flat())
}

func TestReduceWindowDynamicDim(t *testing.T) {
	fn := loopir.New("window_dynamic").Main()
	operand := must.M1(fn.RefInput("operand", shapes.Make(dtypes.Float32, shapes.DynamicDim)))
	init := must.M1(fn.RefInput("init", shapes.Scalar(dtypes.Float32)))
	out := must.M1(fn.RefInput("out", shapes.Make(dtypes.Float32, shapes.DynamicDim)))
	must.M1(fn.ReduceWindow(operand, init, out, addBody(t, fn, dtypes.Float32),
		[]int{2}, []int{1}, nil, nil, [][2]int{{0, 0}}))

	require.NoError(t, LegalizeToParallelLoops(fn))
	require.Empty(t, findOps(fn, optypes.OpTypeReduceWindow))

	// Both the output loop bound and the bounds-check extent become runtime
	// dimension queries.
	dims := findOps(fn, optypes.OpTypeDim)
	require.Len(t, dims, 2)
	require.Same(t, out, dims[0].Inputs[0])
	require.Equal(t, 0, dims[0].Attr(loopir.AttrAxis))
	require.Same(t, operand, dims[1].Inputs[0])
	require.Equal(t, 0, dims[1].Attr(loopir.AttrAxis))

	operandBuf := must.M1(interp.FromFlat(shapes.Make(dtypes.Float32, 4), []float32{1, 2, 3, 4}))
	initBuf := must.M1(interp.FromFlat(shapes.Scalar(dtypes.Float32), []float32{0}))
	outBuf := must.M1(interp.NewBuffer(shapes.Make(dtypes.Float32, 3)))
	require.NoError(t, interp.Run(fn, operandBuf, initBuf, outBuf))
	require.Equal(t, []float32{3, 5, 7}, outBuf.Flat())
}

func TestMissingWindowAttributes(t *testing.T) {
	build := func() *loopir.Function {
		fn := loopir.New("no_attrs").Main()
		operand := must.M1(fn.RefInput("operand", shapes.Make(dtypes.Float32, 3)))
		init := must.M1(fn.RefInput("init", shapes.Scalar(dtypes.Float32)))
		out := must.M1(fn.RefInput("out", shapes.Make(dtypes.Float32, 2)))
		must.M1(fn.ReduceWindow(operand, init, out, addBody(t, fn, dtypes.Float32),
			[]int{2}, nil, nil, nil, nil))
		return fn
	}

	// Lenient mode: both omissions are reported and defaulted.
	fn := build()
	var diags []rewrite.Diagnostic
	err := LegalizeToParallelLoops(fn, WithDiagnosticHandler(func(d rewrite.Diagnostic) {
		diags = append(diags, d)
	}))
	require.NoError(t, err)
	require.Len(t, diags, 2)
	require.Equal(t, rewrite.SeverityError, diags[0].Severity)
	require.Contains(t, diags[0].Message, "stride")
	require.Equal(t, rewrite.SeverityError, diags[1].Severity)
	require.Contains(t, diags[1].Message, "padding")

	operandBuf := must.M1(interp.FromFlat(shapes.Make(dtypes.Float32, 3), []float32{1, 2, 3}))
	initBuf := must.M1(interp.FromFlat(shapes.Scalar(dtypes.Float32), []float32{0}))
	outBuf := must.M1(interp.NewBuffer(shapes.Make(dtypes.Float32, 2)))
	require.NoError(t, interp.Run(fn, operandBuf, initBuf, outBuf))
	require.Equal(t, []float32{3, 5}, outBuf.Flat(), "defaults: stride 1, no padding")

	// Strict mode: the conversion aborts and the function is left untouched.
	fn = build()
	err = LegalizeToParallelLoops(fn, WithStrict())
	require.ErrorContains(t, err, "window strides")
	require.Len(t, findOps(fn, optypes.OpTypeReduceWindow), 1)
	require.Empty(t, findOps(fn, optypes.OpTypeParallelLoop))
}

func TestDilationsIgnored(t *testing.T) {
	build := func() *loopir.Function {
		fn := loopir.New("dilated").Main()
		operand := must.M1(fn.RefInput("operand", shapes.Make(dtypes.Float32, 3)))
		init := must.M1(fn.RefInput("init", shapes.Scalar(dtypes.Float32)))
		out := must.M1(fn.RefInput("out", shapes.Make(dtypes.Float32, 2)))
		must.M1(fn.ReduceWindow(operand, init, out, addBody(t, fn, dtypes.Float32),
			[]int{2}, []int{1}, []int{1}, []int{1}, [][2]int{{0, 0}}))
		return fn
	}

	fn := build()
	var diags []rewrite.Diagnostic
	err := LegalizeToParallelLoops(fn, WithDiagnosticHandler(func(d rewrite.Diagnostic) {
		diags = append(diags, d)
	}))
	require.NoError(t, err)
	require.Len(t, diags, 1)
	require.Equal(t, rewrite.SeverityRemark, diags[0].Severity)
	require.Contains(t, diags[0].Message, "dilations")

	fn = build()
	err = LegalizeToParallelLoops(fn, WithStrict())
	require.ErrorContains(t, err, "dilations")
}

func TestPass(t *testing.T) {
	pass := NewPass()
	require.Equal(t, PassName, pass.Name())
	require.NotEmpty(t, pass.Description())

	fn := loopir.New("pass").Main()
	operand := must.M1(fn.RefInput("operand", shapes.Make(dtypes.Float32, 4)))
	init := must.M1(fn.RefInput("init", shapes.Scalar(dtypes.Float32)))
	out := must.M1(fn.RefInput("out", shapes.Scalar(dtypes.Float32)))
	must.M1(fn.Reduce(operand, init, out, addBody(t, fn, dtypes.Float32), 0))
	require.NoError(t, pass.Run(fn))
	require.Empty(t, findOps(fn, optypes.OpTypeReduce))

	// Running again is a no-op.
	require.NoError(t, pass.Run(fn))
}
