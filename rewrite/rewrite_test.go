package rewrite

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/loopir"
	"github.com/gomlx/loopir/optypes"
	"github.com/gomlx/loopir/types/shapes"
)

func TestTarget(t *testing.T) {
	target := NewTarget().
		AddLegal(optypes.OpTypeConstant, optypes.OpTypeLoad).
		AddIllegal(optypes.OpTypeReduce)
	require.True(t, target.IsIllegal(optypes.OpTypeReduce))
	require.False(t, target.IsIllegal(optypes.OpTypeConstant))
	require.False(t, target.IsIllegal(optypes.OpTypeStore), "unlisted is not illegal")
}

// dimEraser converts Dim operations by replacing them with a constant; it
// stands in for a real lowering in the driver tests.
type dimEraser struct {
	calls int
}

func (p *dimEraser) OpType() optypes.OpType { return optypes.OpTypeDim }

func (p *dimEraser) MatchAndRewrite(op *loopir.Statement, rw *Rewriter) (bool, error) {
	p.calls++
	if _, err := rw.F().ConstantIndex(int64(op.Attr(loopir.AttrAxis).(int))); err != nil {
		return false, err
	}
	return true, rw.Erase(op)
}

func buildDimFunction(t *testing.T) *loopir.Function {
	fn := loopir.New("dims").Main()
	buf := must.M1(fn.RefInput("buf", shapes.Make(dtypes.Float32, shapes.DynamicDim, shapes.DynamicDim)))
	must.M1(fn.Dim(buf, 0))
	must.M1(fn.Dim(buf, 1))
	return fn
}

func TestApplyPartialConversion(t *testing.T) {
	fn := buildDimFunction(t)
	pattern := &dimEraser{}
	target := NewTarget().AddLegal(optypes.OpTypeConstant).AddIllegal(optypes.OpTypeDim)
	require.NoError(t, ApplyPartialConversion(fn, target, []Pattern{pattern}, nil))
	require.Equal(t, 2, pattern.calls)
	for _, stmt := range fn.Statements {
		require.Equal(t, optypes.OpTypeConstant, stmt.OpType)
	}

	// Idempotent: nothing illegal remains.
	require.NoError(t, ApplyPartialConversion(fn, target, []Pattern{pattern}, nil))
	require.Equal(t, 2, pattern.calls)
}

// noMatch never applies.
type noMatch struct{}

func (noMatch) OpType() optypes.OpType { return optypes.OpTypeDim }
func (noMatch) MatchAndRewrite(op *loopir.Statement, rw *Rewriter) (bool, error) {
	return false, nil
}

func TestApplyPartialConversionLeftovers(t *testing.T) {
	fn := buildDimFunction(t)
	target := NewTarget().AddIllegal(optypes.OpTypeDim)

	// No pattern registered at all.
	err := ApplyPartialConversion(fn, target, nil, nil)
	require.ErrorContains(t, err, "failed to legalize")

	// A pattern that declines to match leaves the op illegal too.
	err = ApplyPartialConversion(fn, target, []Pattern{noMatch{}}, nil)
	require.ErrorContains(t, err, "failed to legalize")
}

func TestDiagnostics(t *testing.T) {
	var collected []Diagnostic
	rw := &Rewriter{handler: func(d Diagnostic) { collected = append(collected, d) }}

	fn := buildDimFunction(t)
	op := fn.Statements[0]
	rw.Errorf(op, "bad attribute %d", 7)
	rw.Remarkf(op, "ignoring something")

	require.Len(t, collected, 2)
	require.Equal(t, SeverityError, collected[0].Severity)
	require.Same(t, op, collected[0].Op)
	require.Contains(t, collected[0].Message, "bad attribute 7")
	require.Equal(t, SeverityRemark, collected[1].Severity)
	require.Contains(t, collected[0].String(), "on Dim")
}

func TestWalkStatements(t *testing.T) {
	fn := loopir.New("nest").Main()
	zero := must.M1(fn.ConstantIndex(0))
	one := must.M1(fn.ConstantIndex(1))
	two := must.M1(fn.ConstantIndex(2))
	loop := must.M1(fn.ParallelLoop([]*loopir.Value{zero}, []*loopir.Value{two}, []*loopir.Value{one}, nil))
	must.M1(loop.LoopBody().ConstantIndex(3))

	var visited []optypes.OpType
	walkStatements(fn, func(stmt *loopir.Statement) { visited = append(visited, stmt.OpType) })
	require.Equal(t, []optypes.OpType{
		optypes.OpTypeConstant, optypes.OpTypeConstant, optypes.OpTypeConstant,
		optypes.OpTypeParallelLoop, optypes.OpTypeConstant,
	}, visited)
}
