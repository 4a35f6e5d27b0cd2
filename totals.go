// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DataFieldFunction is the aggregation applied to a data field.
type DataFieldFunction byte

// Data field functions. FunctionNone aggregates like FunctionSum.
const (
	FunctionNone DataFieldFunction = iota
	FunctionSum
	FunctionAverage
	FunctionCount
	FunctionCountNums
	FunctionMax
	FunctionMin
	FunctionProduct
	FunctionStdDev
	FunctionStdDevp
	FunctionVar
	FunctionVarp
)

// dataFieldFunctions maps each function to its persisted subtotal name, its
// caption and the worksheet function computing it.
var dataFieldFunctions = map[DataFieldFunction][3]string{
	FunctionNone:      {"", "Sum", "SUM"},
	FunctionSum:       {"sum", "Sum", "SUM"},
	FunctionAverage:   {"average", "Average", "AVERAGE"},
	FunctionCount:     {"count", "Count", "COUNTA"},
	FunctionCountNums: {"countNums", "Count", "COUNT"},
	FunctionMax:       {"max", "Max", "MAX"},
	FunctionMin:       {"min", "Min", "MIN"},
	FunctionProduct:   {"product", "Product", "PRODUCT"},
	FunctionStdDev:    {"stdDev", "StdDev", "STDEV.S"},
	FunctionStdDevp:   {"stdDevp", "StdDevp", "STDEV.P"},
	FunctionVar:       {"var", "Var", "VAR.S"},
	FunctionVarp:      {"varp", "Varp", "VAR.P"},
}

func (fn DataFieldFunction) String() string {
	if names, ok := dataFieldFunctions[fn]; ok && names[0] != "" {
		return names[0]
	}
	return "sum"
}

// Caption returns the name used when composing default data field names.
func (fn DataFieldFunction) Caption() string {
	if names, ok := dataFieldFunctions[fn]; ok {
		return names[1]
	}
	return ""
}

// WorksheetFunction returns the worksheet function computing the aggregate.
func (fn DataFieldFunction) WorksheetFunction() (string, error) {
	if names, ok := dataFieldFunctions[fn]; ok {
		return names[2], nil
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownDataFieldFunction, fn)
}

// ParseDataFieldFunction returns the function for a persisted subtotal name,
// matched case-insensitively. An empty name is FunctionSum.
func ParseDataFieldFunction(name string) (DataFieldFunction, error) {
	if name == "" {
		return FunctionSum, nil
	}
	for fn, names := range dataFieldFunctions {
		if names[0] != "" && strings.EqualFold(names[0], name) {
			return fn, nil
		}
	}
	return FunctionNone, fmt.Errorf("%w: %q", ErrUnknownDataFieldFunction, name)
}

// Evaluator computes a named worksheet aggregate function over a list of
// values with the host's numeric semantics. An evaluator is acquired once per
// refresh and must be closed when the refresh ends.
type Evaluator interface {
	Evaluate(function string, values []interface{}) (interface{}, error)
	Close() error
}

// EvaluatorFactory acquires an evaluator.
type EvaluatorFactory func() (Evaluator, error)

// Aggregator computes data field totals through an evaluator.
type Aggregator struct {
	eval Evaluator
}

// NewAggregator returns an aggregator delegating to eval.
func NewAggregator(eval Evaluator) (*Aggregator, error) {
	if eval == nil {
		return nil, fmt.Errorf("%w: evaluator", ErrParameterRequired)
	}
	return &Aggregator{eval: eval}, nil
}

// Aggregate returns the total of values for fn, nil for an empty list.
func (a *Aggregator) Aggregate(fn DataFieldFunction, values []interface{}) (interface{}, error) {
	name, err := fn.WorksheetFunction()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return a.eval.Evaluate(name, values)
}

// WorkbookEvaluator evaluates aggregates with the excelize formula engine in
// a scratch workbook: values are written to column A and the function is
// calculated in B1.
type WorkbookEvaluator struct {
	f     *excelize.File
	sheet string
}

// NewWorkbookEvaluator creates the scratch workbook.
func NewWorkbookEvaluator() (Evaluator, error) {
	f := excelize.NewFile()
	return &WorkbookEvaluator{f: f, sheet: f.GetSheetName(0)}, nil
}

// Evaluate implements Evaluator.
func (e *WorkbookEvaluator) Evaluate(function string, values []interface{}) (interface{}, error) {
	if e.f == nil {
		return nil, ErrEvaluatorClosed
	}
	if ev, ok := firstError(function, values); ok {
		return ev, nil
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if ev, ok := v.(ErrorValue); ok {
			v = string(ev)
		}
		if err := e.f.SetCellValue(e.sheet, cell, v); err != nil {
			return nil, err
		}
	}
	formula := fmt.Sprintf("%s(A1:A%d)", function, len(values))
	if err := e.f.SetCellFormula(e.sheet, "B1", formula); err != nil {
		return nil, err
	}
	result, err := e.f.CalcCellValue(e.sheet, "B1", excelize.Options{RawCellValue: true})
	if strings.HasPrefix(result, "#") {
		return ErrorValue(result), nil
	}
	if err != nil {
		if strings.HasPrefix(err.Error(), "#") {
			return ErrorValue(err.Error()), nil
		}
		return nil, fmt.Errorf("evaluate %s: %w", formula, err)
	}
	if f, err := strconv.ParseFloat(result, 64); err == nil {
		return f, nil
	}
	return result, nil
}

// firstError returns the first error value of values when function yields
// errors found in its arguments. COUNT and COUNTA count them instead.
func firstError(function string, values []interface{}) (ErrorValue, bool) {
	if strings.EqualFold(function, "COUNT") || strings.EqualFold(function, "COUNTA") {
		return "", false
	}
	for _, v := range values {
		if ev, ok := v.(ErrorValue); ok {
			return ev, true
		}
	}
	return "", false
}

// Close releases the scratch workbook.
func (e *WorkbookEvaluator) Close() error {
	if e.f == nil {
		return nil
	}
	err := e.f.Close()
	e.f = nil
	return err
}
