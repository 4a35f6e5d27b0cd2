// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package duckdb

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	pivot "github.com/OmniMCP-AI/excelize-pivot"
)

// aggregate is the SQL form of a worksheet aggregate function.
type aggregate struct {
	expr string
	// empty is the result when the aggregate over the numbers is NULL.
	empty interface{}
	// propagate returns the first error value in the input as the result.
	propagate bool
}

var divByZero = pivot.ErrorValue("#DIV/0!")

// aggregates maps worksheet function names to DuckDB aggregates over the
// num column. Non-numeric values are loaded as NULL.
var aggregates = map[string]aggregate{
	"SUM":     {expr: "SUM(num)", empty: 0.0, propagate: true},
	"AVERAGE": {expr: "AVG(num)", empty: divByZero, propagate: true},
	"COUNT":   {expr: "COUNT(num)", empty: 0.0},
	"COUNTA":  {expr: "COUNT(*)", empty: 0.0},
	"MAX":     {expr: "MAX(num)", empty: 0.0, propagate: true},
	"MIN":     {expr: "MIN(num)", empty: 0.0, propagate: true},
	"PRODUCT": {expr: "PRODUCT(num)", empty: 0.0, propagate: true},
	"STDEV.S": {expr: "STDDEV_SAMP(num)", empty: divByZero, propagate: true},
	"STDEV.P": {expr: "STDDEV_POP(num)", empty: divByZero, propagate: true},
	"VAR.S":   {expr: "VAR_SAMP(num)", empty: divByZero, propagate: true},
	"VAR.P":   {expr: "VAR_POP(num)", empty: divByZero, propagate: true},
}

// excelEpoch is day zero of the 1900 date system serial numbers.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Evaluator totals value lists in a scratch table of its engine. It
// implements pivot.Evaluator.
type Evaluator struct {
	engine *Engine
	table  string
	mu     sync.Mutex
}

// NewEvaluator acquires an evaluator with its own scratch table. The method
// value engine.NewEvaluator is a pivot.EvaluatorFactory.
func (e *Engine) NewEvaluator() (pivot.Evaluator, error) {
	table, err := e.createTable()
	if err != nil {
		return nil, err
	}
	return &Evaluator{engine: e, table: table}, nil
}

// Evaluate implements pivot.Evaluator.
func (ev *Evaluator) Evaluate(function string, values []interface{}) (interface{}, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if ev.table == "" {
		return nil, pivot.ErrEvaluatorClosed
	}
	agg, ok := aggregates[strings.ToUpper(function)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pivot.ErrUnknownDataFieldFunction, function)
	}
	nums := make([]interface{}, 0, len(values))
	for _, v := range values {
		cv, err := pivot.Classify(v)
		if err != nil {
			return nil, err
		}
		switch cv.Type {
		case pivot.TypeMissing:
			continue
		case pivot.TypeNumeric:
			nums = append(nums, cv.Num)
		case pivot.TypeDate:
			t, err := cv.Time()
			if err != nil {
				return nil, err
			}
			nums = append(nums, t.Sub(excelEpoch).Hours()/24)
		case pivot.TypeError:
			if agg.propagate {
				return pivot.ErrorValue(cv.Str), nil
			}
			nums = append(nums, nil)
		default:
			nums = append(nums, nil)
		}
	}
	if err := ev.load(nums); err != nil {
		return nil, err
	}
	var result sql.NullFloat64
	ev.engine.mu.RLock()
	defer ev.engine.mu.RUnlock()
	if ev.engine.db == nil {
		return nil, pivot.ErrEvaluatorClosed
	}
	query := fmt.Sprintf("SELECT %s FROM %s", agg.expr, ev.table)
	if err := ev.engine.db.QueryRow(query).Scan(&result); err != nil {
		return nil, fmt.Errorf("failed to evaluate %s: %w", function, err)
	}
	if !result.Valid {
		return agg.empty, nil
	}
	return result.Float64, nil
}

// load replaces the scratch table's rows with nums.
func (ev *Evaluator) load(nums []interface{}) error {
	ev.engine.mu.RLock()
	defer ev.engine.mu.RUnlock()
	if ev.engine.db == nil {
		return pivot.ErrEvaluatorClosed
	}
	tx, err := ev.engine.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", ev.table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", ev.table, err)
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s VALUES ($1)", ev.table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, n := range nums {
		if _, err := stmt.Exec(n); err != nil {
			return fmt.Errorf("failed to insert value: %w", err)
		}
	}
	return tx.Commit()
}

// Close drops the scratch table. The engine stays open.
func (ev *Evaluator) Close() error {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if ev.table == "" {
		return nil
	}
	table := ev.table
	ev.table = ""
	if !ev.engine.IsInitialized() {
		return nil
	}
	return ev.engine.dropTable(table)
}
