package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3)
	require.True(t, s.Ok())
	require.Equal(t, 2, s.Rank())
	require.Equal(t, 6, s.Size())
	require.Equal(t, 3, s.Dim(1))
	require.Equal(t, 3, s.Dim(-1))
	require.Panics(t, func() { Make(dtypes.Float32, 0) })
	require.Panics(t, func() { Make(dtypes.Float32, 2, -3) })
	require.Panics(t, func() { s.Dim(2) })
}

func TestScalar(t *testing.T) {
	s := Scalar(dtypes.Int64)
	require.True(t, s.IsScalar())
	require.Equal(t, 0, s.Rank())
	require.Equal(t, 1, s.Size())
	require.Equal(t, "(Int64)", s.String())
	require.False(t, Invalid().Ok())
	require.False(t, Invalid().IsScalar())
}

func TestDynamicDims(t *testing.T) {
	s := Make(dtypes.Float32, DynamicDim, 3)
	require.True(t, s.HasDynamicDims())
	require.True(t, s.IsDynamicDim(0))
	require.False(t, s.IsDynamicDim(1))
	require.Equal(t, DynamicDim, s.Size())
	require.Equal(t, "(Float32)[? 3]", s.String())

	static := Make(dtypes.Float32, 2, 3)
	require.False(t, static.HasDynamicDims())
	require.True(t, s.CompatibleWith(static))
	require.True(t, static.CompatibleWith(s))
	require.False(t, s.Equal(static))
	require.False(t, s.CompatibleWith(Make(dtypes.Float32, 2, 4)))
	require.False(t, s.CompatibleWith(Make(dtypes.Float64, 2, 3)))
	require.False(t, s.CompatibleWith(Make(dtypes.Float32, 2, 3, 1)))
}

func TestClone(t *testing.T) {
	s := Make(dtypes.Int32, 4, DynamicDim)
	clone := s.Clone()
	require.True(t, s.Equal(clone))
	clone.Dimensions[0] = 7
	require.Equal(t, 4, s.Dim(0))
}
