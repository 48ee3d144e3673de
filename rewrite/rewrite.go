// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package rewrite implements the pattern-based conversion machinery used by
// the lowering passes: a conversion target describing which operation types
// are legal, a registry of rewrite patterns keyed by operation type, a
// rewriter with insertion-point-aware construction and structural cloning,
// and a partial-conversion driver.
//
// A conversion failure is local to the function being converted; the driver
// reports it as an error and leaves the function as-is beyond the rewrites
// already applied.
package rewrite

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/loopir"
	"github.com/gomlx/loopir/optypes"
	"github.com/gomlx/loopir/types"
)

// Severity of a Diagnostic.
type Severity int

//go:generate go tool enumer -type=Severity -trimprefix=Severity -output=gen_severity_enumer.go rewrite.go

const (
	SeverityError Severity = iota
	SeverityRemark
)

// Diagnostic is an operation-scoped report emitted during conversion:
// error-level for malformed input the conversion papered over, remark-level
// for accepted-but-ignored attributes.
type Diagnostic struct {
	Severity Severity
	Op       *loopir.Statement
	Message  string
}

// String implements fmt.Stringer.
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s on %s: %s", d.Severity, d.Op.OpType, d.Message)
}

// Handler consumes diagnostics as they are emitted.
type Handler func(Diagnostic)

// LogHandler mirrors diagnostics to klog: errors at warning level, remarks at
// verbosity 1. It is the default handler of ApplyPartialConversion.
func LogHandler(d Diagnostic) {
	switch d.Severity {
	case SeverityError:
		klog.Warningf("rewrite: %s", d)
	default:
		klog.V(1).Infof("rewrite: %s", d)
	}
}

// Target describes conversion legality: operation types that must be
// eliminated (illegal) and the vocabulary the conversion may produce (legal).
type Target struct {
	legal   types.Set[optypes.OpType]
	illegal types.Set[optypes.OpType]
}

// NewTarget creates an empty conversion target.
func NewTarget() *Target {
	return &Target{
		legal:   types.MakeSet[optypes.OpType](),
		illegal: types.MakeSet[optypes.OpType](),
	}
}

// AddLegal marks operation types as accepted output vocabulary.
func (t *Target) AddLegal(ops ...optypes.OpType) *Target {
	t.legal.Insert(ops...)
	return t
}

// AddIllegal marks operation types that must not remain after conversion.
func (t *Target) AddIllegal(ops ...optypes.OpType) *Target {
	t.illegal.Insert(ops...)
	return t
}

// IsIllegal reports whether the operation type must be converted away.
func (t *Target) IsIllegal(op optypes.OpType) bool {
	return t.illegal.Has(op)
}

// Pattern attempts to convert one operation kind. MatchAndRewrite returns
// (false, nil) when the pattern does not apply to this particular operation
// -- the operation is left in place -- and an error when a matched rewrite
// cannot be completed.
type Pattern interface {
	// OpType this pattern matches.
	OpType() optypes.OpType

	// MatchAndRewrite attempts the conversion. On success the pattern has
	// replaced op (typically erasing it) and returns (true, nil).
	MatchAndRewrite(op *loopir.Statement, rw *Rewriter) (bool, error)
}

// Rewriter carries the mutable conversion state handed to patterns: the
// current insertion function (with its insertion point) and the diagnostics
// handler.
type Rewriter struct {
	fn      *loopir.Function
	handler Handler
}

// F returns the current insertion function. New operations are created
// through its op constructors and land at its insertion point.
func (rw *Rewriter) F() *loopir.Function { return rw.fn }

// SetInsertionPointBefore moves the insertion point to just before stmt.
func (rw *Rewriter) SetInsertionPointBefore(stmt *loopir.Statement) error {
	if err := stmt.Function.SetInsertionPointBefore(stmt); err != nil {
		return err
	}
	rw.fn = stmt.Function
	return nil
}

// SetInsertionPointToStart moves the insertion point to the beginning of fn.
func (rw *Rewriter) SetInsertionPointToStart(fn *loopir.Function) {
	fn.SetInsertionPointToStart()
	rw.fn = fn
}

// SetInsertionPointToEnd moves the insertion point to the end of fn.
func (rw *Rewriter) SetInsertionPointToEnd(fn *loopir.Function) {
	fn.ResetInsertionPoint()
	rw.fn = fn
}

// Clone deep-copies src into the current insertion point, substituting
// operands through remap and extending remap with the cloned outputs. See
// loopir.Function.CloneStatement.
func (rw *Rewriter) Clone(src *loopir.Statement, remap loopir.ValueMap) *loopir.Statement {
	return rw.fn.CloneStatement(src, remap)
}

// Erase removes stmt from its function.
func (rw *Rewriter) Erase(stmt *loopir.Statement) error {
	return stmt.Function.EraseStatement(stmt)
}

// Errorf emits an operation-scoped error-level diagnostic.
func (rw *Rewriter) Errorf(op *loopir.Statement, format string, args ...any) {
	rw.handler(Diagnostic{Severity: SeverityError, Op: op, Message: fmt.Sprintf(format, args...)})
}

// Remarkf emits an operation-scoped remark-level diagnostic.
func (rw *Rewriter) Remarkf(op *loopir.Statement, format string, args ...any) {
	rw.handler(Diagnostic{Severity: SeverityRemark, Op: op, Message: fmt.Sprintf(format, args...)})
}

// ApplyPartialConversion runs one partial rewrite over fn (recursing into
// nested closures): every statement whose operation type the target marks
// illegal is handed to the registered patterns for its type. Statements no
// pattern matches are left in place.
//
// It returns an error if a matched rewrite fails or if any illegal operation
// remains afterwards.
//
// handler may be nil, in which case diagnostics go to LogHandler.
func ApplyPartialConversion(fn *loopir.Function, target *Target, patterns []Pattern, handler Handler) error {
	if handler == nil {
		handler = LogHandler
	}
	registry := make(map[optypes.OpType][]Pattern)
	for _, pattern := range patterns {
		registry[pattern.OpType()] = append(registry[pattern.OpType()], pattern)
	}
	rw := &Rewriter{fn: fn, handler: handler}

	var worklist []*loopir.Statement
	walkStatements(fn, func(stmt *loopir.Statement) {
		if target.IsIllegal(stmt.OpType) {
			worklist = append(worklist, stmt)
		}
	})
	klog.V(1).Infof("rewrite: partial conversion of %q, %d operations to legalize", fn.Name, len(worklist))

	converted := 0
	for _, stmt := range worklist {
		if stmt.IsErased() {
			continue
		}
		if err := rw.SetInsertionPointBefore(stmt); err != nil {
			return err
		}
		for _, pattern := range registry[stmt.OpType] {
			matched, err := pattern.MatchAndRewrite(stmt, rw)
			if err != nil {
				resetInsertionPoints(fn)
				return errors.WithMessagef(err, "while converting %s in function %q", stmt.OpType, fn.Name)
			}
			if matched {
				converted++
				break
			}
		}
	}
	resetInsertionPoints(fn)

	var remaining *loopir.Statement
	walkStatements(fn, func(stmt *loopir.Statement) {
		if remaining == nil && target.IsIllegal(stmt.OpType) {
			remaining = stmt
		}
	})
	if remaining != nil {
		return errors.Errorf("failed to legalize function %q: illegal operation %s remains", fn.Name, remaining.OpType)
	}
	klog.V(1).Infof("rewrite: converted %d operations in %q", converted, fn.Name)
	return nil
}

// walkStatements visits every statement of fn and, recursively, of the
// closures hanging off them, in pre-order.
func walkStatements(fn *loopir.Function, visit func(*loopir.Statement)) {
	for _, stmt := range fn.Statements {
		visit(stmt)
		for _, closure := range stmt.Closures {
			walkStatements(closure, visit)
		}
	}
}

func resetInsertionPoints(fn *loopir.Function) {
	fn.ResetInsertionPoint()
	walkStatements(fn, func(stmt *loopir.Statement) {
		for _, closure := range stmt.Closures {
			closure.ResetInsertionPoint()
		}
	})
}
