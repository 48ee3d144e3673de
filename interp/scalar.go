// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package interp

import (
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	"github.com/gomlx/loopir"
	"github.com/gomlx/loopir/optypes"
)

func binaryNumeric[T constraints.Integer | constraints.Float](opType optypes.OpType, lhs, rhs T) (T, error) {
	switch opType {
	case optypes.OpTypeAdd:
		return lhs + rhs, nil
	case optypes.OpTypeSub:
		return lhs - rhs, nil
	case optypes.OpTypeMul:
		return lhs * rhs, nil
	case optypes.OpTypeMax:
		if lhs > rhs {
			return lhs, nil
		}
		return rhs, nil
	case optypes.OpTypeMin:
		if lhs < rhs {
			return lhs, nil
		}
		return rhs, nil
	}
	var zero T
	return zero, errors.Errorf("operation %s is not a numeric binary operation", opType)
}

// binary applies a scalar binary operation to two values of the same element
// type. The half-precision types round-trip through float32.
func binary(opType optypes.OpType, lhs, rhs any) (any, error) {
	switch l := lhs.(type) {
	case float32:
		return binaryNumeric(opType, l, rhs.(float32))
	case float64:
		return binaryNumeric(opType, l, rhs.(float64))
	case int8:
		return binaryNumeric(opType, l, rhs.(int8))
	case int16:
		return binaryNumeric(opType, l, rhs.(int16))
	case int32:
		return binaryNumeric(opType, l, rhs.(int32))
	case int64:
		return binaryNumeric(opType, l, rhs.(int64))
	case uint8:
		return binaryNumeric(opType, l, rhs.(uint8))
	case uint16:
		return binaryNumeric(opType, l, rhs.(uint16))
	case uint32:
		return binaryNumeric(opType, l, rhs.(uint32))
	case uint64:
		return binaryNumeric(opType, l, rhs.(uint64))
	case float16.Float16:
		v, err := binaryNumeric(opType, l.Float32(), rhs.(float16.Float16).Float32())
		if err != nil {
			return nil, err
		}
		return float16.Fromfloat32(v), nil
	case bfloat16.BFloat16:
		v, err := binaryNumeric(opType, l.Float32(), rhs.(bfloat16.BFloat16).Float32())
		if err != nil {
			return nil, err
		}
		return bfloat16.FromFloat32(v), nil
	case bool:
		if opType != optypes.OpTypeAnd {
			return nil, errors.Errorf("operation %s is not defined for booleans", opType)
		}
		return l && rhs.(bool), nil
	}
	return nil, errors.Errorf("operation %s on unsupported scalar type %T", opType, lhs)
}

func compareOrdered[T constraints.Ordered](direction loopir.ComparisonDirection, lhs, rhs T) (bool, error) {
	switch direction {
	case loopir.CompareEQ:
		return lhs == rhs, nil
	case loopir.CompareNE:
		return lhs != rhs, nil
	case loopir.CompareLT:
		return lhs < rhs, nil
	case loopir.CompareLE:
		return lhs <= rhs, nil
	case loopir.CompareGT:
		return lhs > rhs, nil
	case loopir.CompareGE:
		return lhs >= rhs, nil
	}
	return false, errors.Errorf("invalid comparison direction %d", direction)
}

// compare evaluates a comparison under the requested interpretation. An
// unsigned comparison of signed values reinterprets their two's complement
// bits, which is what lets a single unsigned less-than check cover both ends
// of a bounds test.
func compare(direction loopir.ComparisonDirection, compareType loopir.ComparisonType, lhs, rhs any) (bool, error) {
	switch compareType {
	case loopir.CompareFloat:
		lf, err := toFloat64(lhs)
		if err != nil {
			return false, err
		}
		rf, err := toFloat64(rhs)
		if err != nil {
			return false, err
		}
		return compareOrdered(direction, lf, rf)
	case loopir.CompareSigned:
		li, err := toInt64(lhs)
		if err != nil {
			return false, err
		}
		ri, err := toInt64(rhs)
		if err != nil {
			return false, err
		}
		return compareOrdered(direction, li, ri)
	case loopir.CompareUnsigned:
		lu, err := toUint64(lhs)
		if err != nil {
			return false, err
		}
		ru, err := toUint64(rhs)
		if err != nil {
			return false, err
		}
		return compareOrdered(direction, lu, ru)
	}
	return false, errors.Errorf("invalid comparison type %d", compareType)
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case float16.Float16:
		return float64(v.Float32()), nil
	case bfloat16.BFloat16:
		return float64(v.Float32()), nil
	}
	i, err := toInt64(value)
	if err != nil {
		return 0, errors.Errorf("cannot compare %T as float", value)
	}
	return float64(i), nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	}
	return 0, errors.Errorf("cannot compare %T as signed integer", value)
}

func toUint64(value any) (uint64, error) {
	switch v := value.(type) {
	case int8:
		return uint64(v), nil
	case int16:
		return uint64(v), nil
	case int32:
		return uint64(v), nil
	case int64:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case uint64:
		return v, nil
	}
	return 0, errors.Errorf("cannot compare %T as unsigned integer", value)
}

// elemOfFlat returns element i of a flat slice.
func elemOfFlat(flat any, i int) any {
	switch v := flat.(type) {
	case []float32:
		return v[i]
	case []float64:
		return v[i]
	case []int8:
		return v[i]
	case []int16:
		return v[i]
	case []int32:
		return v[i]
	case []int64:
		return v[i]
	case []uint8:
		return v[i]
	case []uint16:
		return v[i]
	case []uint32:
		return v[i]
	case []uint64:
		return v[i]
	case []float16.Float16:
		return v[i]
	case []bfloat16.BFloat16:
		return v[i]
	case []bool:
		return v[i]
	}
	return nil
}
