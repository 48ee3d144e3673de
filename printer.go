// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loopir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomlx/loopir/types/xslices"
)

// String pretty-prints the function and its nested closures, one statement
// per line. The format is for debugging and tests, it is not parsed back.
func (fn *Function) String() string {
	var sb strings.Builder
	fn.print(&sb, 0)
	return sb.String()
}

func (fn *Function) print(sb *strings.Builder, indent int) {
	pad := strings.Repeat("  ", indent)
	args := xslices.Map(fn.Inputs, func(in *Value) string {
		return fmt.Sprintf("%s: %s", valueName(in), typeName(in))
	})
	fmt.Fprintf(sb, "%s%s(%s) {\n", pad, fn.Name, strings.Join(args, ", "))
	for _, stmt := range fn.Statements {
		stmt.print(sb, indent+1)
	}
	fmt.Fprintf(sb, "%s}\n", pad)
}

func (s *Statement) print(sb *strings.Builder, indent int) {
	pad := strings.Repeat("  ", indent)
	var sb2 strings.Builder
	if len(s.Outputs) > 0 {
		fmt.Fprintf(&sb2, "%s = ", strings.Join(xslices.Map(s.Outputs, valueName), ", "))
	}
	fmt.Fprintf(&sb2, "%s(%s)", s.OpType, strings.Join(xslices.Map(s.Inputs, valueName), ", "))
	if len(s.Attributes) > 0 {
		keys := make([]string, 0, len(s.Attributes))
		for key := range s.Attributes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		attrs := xslices.Map(keys, func(key string) string {
			return fmt.Sprintf("%s=%v", key, s.Attributes[key])
		})
		fmt.Fprintf(&sb2, " {%s}", strings.Join(attrs, ", "))
	}
	if len(s.Outputs) > 0 {
		fmt.Fprintf(&sb2, " : %s", strings.Join(xslices.Map(s.Outputs, typeName), ", "))
	}
	fmt.Fprintf(sb, "%s%s\n", pad, sb2.String())
	for _, closure := range s.Closures {
		closure.print(sb, indent+1)
	}
}

func valueName(v *Value) string {
	if v.name != "" {
		return "%" + v.name
	}
	return fmt.Sprintf("%%%d", v.id)
}

func typeName(v *Value) string {
	if v.IsRef() {
		return "ref " + v.Shape().String()
	}
	return v.Shape().String()
}
