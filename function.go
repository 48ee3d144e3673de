// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loopir

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/loopir/optypes"
	"github.com/gomlx/loopir/types/shapes"
)

// Function is an ordered list of Statements over a list of input Values.
//
// The main function's inputs are buffer references. Closure functions serve
// as the regions of structured operations: reduction bodies take buffer
// arguments, loop bodies take induction variables, combiner bodies take two
// scalars.
//
// Statements created through the op constructors are inserted at the
// function's current insertion point, which defaults to the end. The rewrite
// package moves the insertion point around during pattern application.
type Function struct {
	Name       string
	Parent     *Function // nil for the main function.
	Inputs     []*Value
	Statements []*Statement

	// Returned is set once Return was called; no further statements can be
	// added after that.
	Returned bool

	builder  *Builder
	owner    *Statement // statement this closure is a region of, nil otherwise.
	insertAt int        // -1 means append at the end.
}

// Value is a single IR value: either a buffer reference (IsRef) or a scalar
// register value. Values are created as function inputs or as statement
// outputs.
type Value struct {
	id    int
	fn    *Function
	def   *Statement // nil for function inputs.
	shape shapes.Shape
	ref   bool
	name  string // set for named function inputs.
}

// Shape of the value. For a buffer reference this is the buffer shape; for a
// scalar it is a rank-0 shape carrying only the dtype.
func (v *Value) Shape() shapes.Shape { return v.shape }

// DType of the value's elements.
func (v *Value) DType() dtypes.DType { return v.shape.DType }

// IsRef returns whether the value is a buffer reference, as opposed to a
// scalar register value.
func (v *Value) IsRef() bool { return v.ref }

// Function the value belongs to.
func (v *Value) Function() *Function { return v.fn }

// Def returns the statement that defines this value, or nil for function
// inputs.
func (v *Value) Def() *Statement { return v.def }

// Statement is one operation: an OpType, operand values, result values,
// scalar attributes and optionally nested closure functions (regions).
type Statement struct {
	Function   *Function
	OpType     optypes.OpType
	Inputs     []*Value
	Outputs    []*Value
	Attributes map[string]any
	Closures   []*Function

	erased bool
}

// IsErased reports whether the statement was removed from its function by a
// rewrite.
func (s *Statement) IsErased() bool { return s.erased }

// Attr returns the named attribute or nil.
func (s *Statement) Attr(name string) any {
	if s.Attributes == nil {
		return nil
	}
	return s.Attributes[name]
}

func (b *Builder) newFunction(name string, parent *Function, owner *Statement) *Function {
	return &Function{
		Name:     name,
		Parent:   parent,
		builder:  b,
		owner:    owner,
		insertAt: -1,
	}
}

func (fn *Function) newValue(shape shapes.Shape, ref bool, def *Statement) *Value {
	fn.builder.nextID++
	return &Value{
		id:    fn.builder.nextID,
		fn:    fn,
		def:   def,
		shape: shape,
		ref:   ref,
	}
}

// Builder that owns this function.
func (fn *Function) Builder() *Builder { return fn.builder }

// Owner returns the statement this function is a region of, or nil for the
// main function and detached closures.
func (fn *Function) Owner() *Statement { return fn.owner }

// RefInput appends a named buffer-reference input to the function.
func (fn *Function) RefInput(name string, shape shapes.Shape) (*Value, error) {
	if !shape.Ok() {
		return nil, errors.Errorf("invalid shape for input %q of function %q", name, fn.Name)
	}
	if len(fn.Statements) > 0 || fn.Returned {
		return nil, errors.Errorf("cannot add input %q to function %q after statements were added", name, fn.Name)
	}
	v := fn.newValue(shape, true, nil)
	v.name = name
	fn.Inputs = append(fn.Inputs, v)
	return v, nil
}

// ScalarInput appends a named scalar input to the function.
func (fn *Function) ScalarInput(name string, dtype dtypes.DType) (*Value, error) {
	if len(fn.Statements) > 0 || fn.Returned {
		return nil, errors.Errorf("cannot add input %q to function %q after statements were added", name, fn.Name)
	}
	v := fn.newValue(shapes.Scalar(dtype), false, nil)
	v.name = name
	fn.Inputs = append(fn.Inputs, v)
	return v, nil
}

// Closure creates a nested function to be used as the region of a structured
// operation of this function -- e.g. the reduction body passed to Reduce or
// ReduceWindow.
func (fn *Function) Closure(name string) *Function {
	return fn.builder.newFunction(name, fn, nil)
}

// visible reports whether v can be used as an operand inside fn: it must
// belong to fn or to one of its ancestors.
func (fn *Function) visible(v *Value) bool {
	for f := fn; f != nil; f = f.Parent {
		if v.fn == f {
			return true
		}
	}
	return false
}

// checkOperands validates that all operands may be used inside fn.
func (fn *Function) checkOperands(opType optypes.OpType, operands ...*Value) error {
	if fn.Returned {
		return errors.Errorf("cannot add operation %s after returning, in function %q", opType, fn.Name)
	}
	for i, operand := range operands {
		if operand == nil {
			return errors.Errorf("cannot add operation %s to function %q: operand #%d is nil", opType, fn.Name, i)
		}
		if !fn.visible(operand) {
			return errors.Errorf("cannot add operation %s to function %q: operand #%d belongs to function %q, which is not an ancestor",
				opType, fn.Name, i, operand.fn.Name)
		}
	}
	return nil
}

// addStatement creates the statement and inserts it at the current insertion
// point.
func (fn *Function) addStatement(opType optypes.OpType, inputs []*Value) *Statement {
	stmt := &Statement{
		Function: fn,
		OpType:   opType,
		Inputs:   inputs,
	}
	fn.insert(stmt)
	return stmt
}

func (fn *Function) insert(stmt *Statement) {
	if fn.insertAt < 0 {
		fn.Statements = append(fn.Statements, stmt)
		return
	}
	if fn.insertAt >= len(fn.Statements) {
		fn.Statements = append(fn.Statements, stmt)
		fn.insertAt = len(fn.Statements)
		return
	}
	fn.Statements = append(fn.Statements, nil)
	copy(fn.Statements[fn.insertAt+1:], fn.Statements[fn.insertAt:])
	fn.Statements[fn.insertAt] = stmt
	fn.insertAt++
}

// SetInsertionPointToStart makes subsequent statements be inserted at the
// beginning of the function.
func (fn *Function) SetInsertionPointToStart() {
	fn.insertAt = 0
}

// SetInsertionPointBefore makes subsequent statements be inserted immediately
// before stmt, which must belong to this function.
func (fn *Function) SetInsertionPointBefore(stmt *Statement) error {
	idx := fn.statementIndex(stmt)
	if idx < 0 {
		return errors.Errorf("statement %s does not belong to function %q", stmt.OpType, fn.Name)
	}
	fn.insertAt = idx
	return nil
}

// ResetInsertionPoint restores the default append-at-the-end behavior.
func (fn *Function) ResetInsertionPoint() {
	fn.insertAt = -1
}

func (fn *Function) statementIndex(stmt *Statement) int {
	for idx, s := range fn.Statements {
		if s == stmt {
			return idx
		}
	}
	return -1
}

// EraseStatement removes stmt from the function and marks it erased. The
// caller is responsible for having rewired or abandoned its outputs.
func (fn *Function) EraseStatement(stmt *Statement) error {
	idx := fn.statementIndex(stmt)
	if idx < 0 {
		return errors.Errorf("cannot erase statement %s: it does not belong to function %q", stmt.OpType, fn.Name)
	}
	fn.Statements = append(fn.Statements[:idx], fn.Statements[idx+1:]...)
	if fn.insertAt > idx {
		fn.insertAt--
	}
	stmt.erased = true
	return nil
}

// Return terminates the function, yielding the given values. Loop bodies and
// the main function return no values; combiner bodies and If arms return
// exactly one scalar.
func (fn *Function) Return(values ...*Value) error {
	if err := fn.checkOperands(optypes.OpTypeReturn, values...); err != nil {
		return err
	}
	for i, v := range values {
		if v.IsRef() {
			return errors.Errorf("cannot return buffer reference (value #%d) from function %q: only scalars can be returned", i, fn.Name)
		}
	}
	fn.addStatement(optypes.OpTypeReturn, values)
	fn.Returned = true
	return nil
}

// ValueMap is an explicit value-substitution table used when cloning a
// statement subtree. Values missing from the table map to themselves.
type ValueMap map[*Value]*Value

// Lookup returns the substitute for v, or v itself when absent.
func (m ValueMap) Lookup(v *Value) *Value {
	if sub, found := m[v]; found {
		return sub
	}
	return v
}

// CloneStatement deep-copies src -- including its attributes and nested
// closures -- into fn at the current insertion point, substituting operands
// through remap. The clone's outputs are fresh values, and remap is extended
// with src.Outputs[i] -> clone.Outputs[i] so that dependent statements can be
// cloned afterwards preserving dependencies.
func (fn *Function) CloneStatement(src *Statement, remap ValueMap) *Statement {
	inputs := make([]*Value, len(src.Inputs))
	for i, in := range src.Inputs {
		inputs[i] = remap.Lookup(in)
	}
	stmt := fn.addStatement(src.OpType, inputs)
	stmt.Outputs = make([]*Value, len(src.Outputs))
	for i, out := range src.Outputs {
		clone := fn.newValue(out.shape.Clone(), out.ref, stmt)
		stmt.Outputs[i] = clone
		remap[out] = clone
	}
	if src.Attributes != nil {
		stmt.Attributes = make(map[string]any, len(src.Attributes))
		for key, value := range src.Attributes {
			stmt.Attributes[key] = cloneAttribute(value)
		}
	}
	for _, closure := range src.Closures {
		stmt.Closures = append(stmt.Closures, cloneClosure(closure, fn, stmt, remap))
	}
	return stmt
}

func cloneClosure(src *Function, parent *Function, owner *Statement, remap ValueMap) *Function {
	clone := parent.builder.newFunction(src.Name, parent, owner)
	for _, in := range src.Inputs {
		cloneIn := clone.newValue(in.shape.Clone(), in.ref, nil)
		cloneIn.name = in.name
		clone.Inputs = append(clone.Inputs, cloneIn)
		remap[in] = cloneIn
	}
	for _, stmt := range src.Statements {
		clone.CloneStatement(stmt, remap)
	}
	clone.Returned = src.Returned
	return clone
}

func cloneAttribute(value any) any {
	switch v := value.(type) {
	case []int:
		return append([]int(nil), v...)
	case [][2]int:
		return append([][2]int(nil), v...)
	default:
		return v
	}
}
