// Copyright The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loopir

// ComparisonDirection selects the predicate of a Compare operation.
type ComparisonDirection int

//go:generate go tool enumer -type=ComparisonDirection -trimprefix=Compare -output=gen_comparisondirection_enumer.go comparison.go

const (
	CompareEQ ComparisonDirection = iota
	CompareNE
	CompareLT
	CompareLE
	CompareGT
	CompareGE
)

// ComparisonType selects how the compared bits are interpreted. Notably,
// CompareUnsigned over the index dtype is how generated bounds checks fold
// the lower-bound test into a single comparison: a negative index
// reinterpreted as unsigned wraps to a very large value.
type ComparisonType int

//go:generate go tool enumer -type=ComparisonType -trimprefix=Compare -output=gen_comparisontype_enumer.go comparison.go

const (
	CompareSigned ComparisonType = iota
	CompareUnsigned
	CompareFloat
)
