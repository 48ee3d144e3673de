package shapeinference

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/loopir/types/shapes"
)

func TestReduceOp(t *testing.T) {
	operand := shapes.Make(dtypes.Float32, 2, 3, 4)

	output, err := ReduceOp(operand, []int{1})
	require.NoError(t, err)
	require.True(t, shapes.Make(dtypes.Float32, 2, 4).Equal(output))

	// Reducing every axis yields a scalar.
	output, err = ReduceOp(operand, []int{0, 1, 2})
	require.NoError(t, err)
	require.True(t, output.IsScalar())

	// Non-reduced order is preserved.
	output, err = ReduceOp(operand, []int{1, 0})
	require.NoError(t, err)
	require.True(t, shapes.Make(dtypes.Float32, 4).Equal(output))

	// Dynamic parallel dimensions propagate.
	dynamic := shapes.Make(dtypes.Float32, shapes.DynamicDim, 3)
	output, err = ReduceOp(dynamic, []int{1})
	require.NoError(t, err)
	require.True(t, shapes.Make(dtypes.Float32, shapes.DynamicDim).Equal(output))

	_, err = ReduceOp(operand, nil)
	require.Error(t, err)
	_, err = ReduceOp(operand, []int{3})
	require.Error(t, err)
	_, err = ReduceOp(operand, []int{-1})
	require.Error(t, err)
	_, err = ReduceOp(operand, []int{1, 1})
	require.Error(t, err)
	_, err = ReduceOp(shapes.Invalid(), []int{0})
	require.Error(t, err)
}

func TestReduceWindowOp(t *testing.T) {
	operand := shapes.Make(dtypes.Float32, 4, 4)

	// 2x2 window, stride 2: classic pooling.
	output, err := ReduceWindowOp(operand, []int{2, 2}, []int{2, 2}, nil, nil, [][2]int{{0, 0}, {0, 0}})
	require.NoError(t, err)
	require.True(t, shapes.Make(dtypes.Float32, 2, 2).Equal(output))

	// Absent strides and paddings default to 1 and 0.
	output, err = ReduceWindowOp(operand, []int{3, 3}, nil, nil, nil, nil)
	require.NoError(t, err)
	require.True(t, shapes.Make(dtypes.Float32, 2, 2).Equal(output))

	// Same-size output with window 3, stride 1 and padding 1 on both ends.
	output, err = ReduceWindowOp(shapes.Make(dtypes.Float32, 3, 3), []int{3, 3}, []int{1, 1}, nil, nil, [][2]int{{1, 1}, {1, 1}})
	require.NoError(t, err)
	require.True(t, shapes.Make(dtypes.Float32, 3, 3).Equal(output))

	// Window dilation stretches the effective window.
	output, err = ReduceWindowOp(shapes.Make(dtypes.Float32, 5), []int{2}, []int{1}, nil, []int{2}, nil)
	require.NoError(t, err)
	require.True(t, shapes.Make(dtypes.Float32, 3).Equal(output))

	// A rank-0 operand is passed through.
	output, err = ReduceWindowOp(shapes.Scalar(dtypes.Int32), nil, nil, nil, nil, nil)
	require.NoError(t, err)
	require.True(t, output.IsScalar())

	// Dynamic axes stay dynamic.
	output, err = ReduceWindowOp(shapes.Make(dtypes.Float32, shapes.DynamicDim, 4), []int{2, 2}, []int{2, 2}, nil, nil, nil)
	require.NoError(t, err)
	require.True(t, shapes.Make(dtypes.Float32, shapes.DynamicDim, 2).Equal(output))
}

func TestReduceWindowOpErrors(t *testing.T) {
	operand := shapes.Make(dtypes.Float32, 4, 4)
	_, err := ReduceWindowOp(operand, []int{2}, nil, nil, nil, nil)
	require.Error(t, err, "window rank mismatch")
	_, err = ReduceWindowOp(operand, []int{2, 2}, []int{2}, nil, nil, nil)
	require.Error(t, err, "strides rank mismatch")
	_, err = ReduceWindowOp(operand, []int{2, 0}, nil, nil, nil, nil)
	require.Error(t, err, "window dimension must be positive")
	_, err = ReduceWindowOp(operand, []int{2, 2}, []int{2, 0}, nil, nil, nil)
	require.Error(t, err, "stride must be positive")
	_, err = ReduceWindowOp(operand, []int{2, 2}, nil, nil, nil, [][2]int{{0, 0}, {-1, 0}})
	require.Error(t, err, "negative padding")
	_, err = ReduceWindowOp(operand, []int{5, 2}, nil, nil, nil, nil)
	require.Error(t, err, "window larger than input")
	_, err = ReduceWindowOp(shapes.Invalid(), []int{2}, nil, nil, nil, nil)
	require.Error(t, err)
}
