// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package interp

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gomlx/loopir"
	"github.com/gomlx/loopir/types/shapes"
)

// Buffer is a concrete tensor the interpreter reads and writes: a static
// shape plus a row-major flat slice of the corresponding Go element type.
type Buffer struct {
	shape shapes.Shape
	flat  any
}

// NewBuffer allocates a zero-initialized buffer of the given static shape.
func NewBuffer(shape shapes.Shape) (*Buffer, error) {
	if !shape.Ok() || shape.HasDynamicDims() {
		return nil, errors.Errorf("interp.NewBuffer requires a valid static shape, got %s", shape)
	}
	flat := makeFlat(shape.DType, shape.Size())
	if flat == nil {
		return nil, errors.Errorf("interp.NewBuffer: unsupported dtype %s", shape.DType)
	}
	return &Buffer{shape: shape, flat: flat}, nil
}

// FromFlat wraps an existing flat slice as a buffer of the given shape. The
// slice is aliased, not copied: stores through the buffer are visible to the
// caller.
func FromFlat(shape shapes.Shape, flat any) (*Buffer, error) {
	if !shape.Ok() || shape.HasDynamicDims() {
		return nil, errors.Errorf("interp.FromFlat requires a valid static shape, got %s", shape)
	}
	dtype, n, err := loopir.DTypeOfFlat(flat)
	if err != nil {
		return nil, err
	}
	if dtype != shape.DType {
		return nil, errors.Errorf("interp.FromFlat: flat slice has dtype %s, shape %s wants %s", dtype, shape, shape.DType)
	}
	if n != shape.Size() {
		return nil, errors.Errorf("interp.FromFlat: flat slice has %d elements, shape %s wants %d", n, shape, shape.Size())
	}
	return &Buffer{shape: shape, flat: flat}, nil
}

// Shape of the buffer.
func (b *Buffer) Shape() shapes.Shape { return b.shape }

// Flat returns the underlying row-major slice.
func (b *Buffer) Flat() any { return b.flat }

func makeFlat(dtype dtypes.DType, n int) any {
	switch dtype {
	case dtypes.Float32:
		return make([]float32, n)
	case dtypes.Float64:
		return make([]float64, n)
	case dtypes.Int8:
		return make([]int8, n)
	case dtypes.Int16:
		return make([]int16, n)
	case dtypes.Int32:
		return make([]int32, n)
	case dtypes.Int64:
		return make([]int64, n)
	case dtypes.Uint8:
		return make([]uint8, n)
	case dtypes.Uint16:
		return make([]uint16, n)
	case dtypes.Uint32:
		return make([]uint32, n)
	case dtypes.Uint64:
		return make([]uint64, n)
	case dtypes.Float16:
		return make([]float16.Float16, n)
	case dtypes.BFloat16:
		return make([]bfloat16.BFloat16, n)
	case dtypes.Bool:
		return make([]bool, n)
	}
	return nil
}

// linearIndex converts per-axis indices to a row-major flat offset, checking
// bounds against the buffer's actual extents. A rank-0 buffer accepts either
// no indices or a single zero index.
func (b *Buffer) linearIndex(indices []int64) (int, error) {
	rank := b.shape.Rank()
	if rank == 0 {
		switch {
		case len(indices) == 0:
			return 0, nil
		case len(indices) == 1 && indices[0] == 0:
			return 0, nil
		}
		return 0, errors.Errorf("rank-0 buffer addressed with indices %v", indices)
	}
	if len(indices) != rank {
		return 0, errors.Errorf("buffer %s addressed with %d indices", b.shape, len(indices))
	}
	linear := 0
	for axis, index := range indices {
		dim := int64(b.shape.Dimensions[axis])
		if index < 0 || index >= dim {
			return 0, errors.Errorf("index %d out of bounds [0, %d) on axis %d of buffer %s", index, dim, axis, b.shape)
		}
		linear = linear*int(dim) + int(index)
	}
	return linear, nil
}

// at reads the element at the given flat offset.
func (b *Buffer) at(linear int) any {
	switch flat := b.flat.(type) {
	case []float32:
		return flat[linear]
	case []float64:
		return flat[linear]
	case []int8:
		return flat[linear]
	case []int16:
		return flat[linear]
	case []int32:
		return flat[linear]
	case []int64:
		return flat[linear]
	case []uint8:
		return flat[linear]
	case []uint16:
		return flat[linear]
	case []uint32:
		return flat[linear]
	case []uint64:
		return flat[linear]
	case []float16.Float16:
		return flat[linear]
	case []bfloat16.BFloat16:
		return flat[linear]
	case []bool:
		return flat[linear]
	}
	return nil
}

// setAt writes the element at the given flat offset. value must be of the
// buffer's element type.
func (b *Buffer) setAt(linear int, value any) error {
	switch flat := b.flat.(type) {
	case []float32:
		v, ok := value.(float32)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []float64:
		v, ok := value.(float64)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []int8:
		v, ok := value.(int8)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []int16:
		v, ok := value.(int16)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []int32:
		v, ok := value.(int32)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []int64:
		v, ok := value.(int64)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []uint8:
		v, ok := value.(uint8)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []uint16:
		v, ok := value.(uint16)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []uint32:
		v, ok := value.(uint32)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []uint64:
		v, ok := value.(uint64)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []float16.Float16:
		v, ok := value.(float16.Float16)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []bfloat16.BFloat16:
		v, ok := value.(bfloat16.BFloat16)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	case []bool:
		v, ok := value.(bool)
		if !ok {
			break
		}
		flat[linear] = v
		return nil
	}
	return errors.Errorf("cannot store %T into buffer %s", value, b.shape)
}
