// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loopir

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// ScalarToFlat converts a scalar value to a flat slice with one element of
// the given dtype, the form accepted by Function.Constant and by the interp
// package buffers.
func ScalarToFlat[T interface{ float64 | int | int64 }](value T, dtype dtypes.DType) any {
	switch dtype {
	case dtypes.Float32:
		return []float32{float32(value)}
	case dtypes.Float64:
		return []float64{float64(value)}
	case dtypes.Int8:
		return []int8{int8(value)}
	case dtypes.Int16:
		return []int16{int16(value)}
	case dtypes.Int32:
		return []int32{int32(value)}
	case dtypes.Int64:
		return []int64{int64(value)}
	case dtypes.Uint8:
		return []uint8{uint8(value)}
	case dtypes.Uint16:
		return []uint16{uint16(value)}
	case dtypes.Uint32:
		return []uint32{uint32(value)}
	case dtypes.Uint64:
		return []uint64{uint64(value)}
	case dtypes.BFloat16:
		return []bfloat16.BFloat16{bfloat16.FromFloat32(float32(value))}
	case dtypes.Float16:
		return []float16.Float16{float16.Fromfloat32(float32(value))}
	case dtypes.Bool:
		return []bool{value != 0}
	default:
		return nil
	}
}

// DTypeOfFlat returns the dtype and length of a flat slice of one of the
// supported Go element types.
func DTypeOfFlat(flat any) (dtypes.DType, int, error) {
	switch v := flat.(type) {
	case []float32:
		return dtypes.Float32, len(v), nil
	case []float64:
		return dtypes.Float64, len(v), nil
	case []int8:
		return dtypes.Int8, len(v), nil
	case []int16:
		return dtypes.Int16, len(v), nil
	case []int32:
		return dtypes.Int32, len(v), nil
	case []int64:
		return dtypes.Int64, len(v), nil
	case []uint8:
		return dtypes.Uint8, len(v), nil
	case []uint16:
		return dtypes.Uint16, len(v), nil
	case []uint32:
		return dtypes.Uint32, len(v), nil
	case []uint64:
		return dtypes.Uint64, len(v), nil
	case []bfloat16.BFloat16:
		return dtypes.BFloat16, len(v), nil
	case []float16.Float16:
		return dtypes.Float16, len(v), nil
	case []bool:
		return dtypes.Bool, len(v), nil
	default:
		return dtypes.InvalidDType, 0, errors.Errorf("unsupported flat slice type %T", flat)
	}
}
