// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xuri/efp"
	"github.com/xuri/excelize/v2"
)

// RangeRef is a rectangular cell range of one worksheet, with 1-based
// inclusive coordinates.
type RangeRef struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseRangeRef parses a reference such as "Sheet1!A1:E7", "'Q1 Sales'!$B$2"
// or "A1:C3". A single cell yields a one cell range.
func ParseRangeRef(ref string) (RangeRef, error) {
	ps := efp.ExcelParser()
	tokens := ps.Parse(strings.TrimPrefix(strings.TrimSpace(ref), "="))
	if len(tokens) != 1 || tokens[0].TType != efp.TokenTypeOperand || tokens[0].TSubType != efp.TokenSubTypeRange {
		return RangeRef{}, fmt.Errorf("%w: %q", ErrRangeRef, ref)
	}
	value := tokens[0].TValue
	var r RangeRef
	if i := strings.LastIndex(value, "!"); i >= 0 {
		r.Sheet = unquoteSheet(value[:i])
		value = value[i+1:]
	}
	cells := strings.Split(strings.ReplaceAll(value, "$", ""), ":")
	if len(cells) > 2 {
		return RangeRef{}, fmt.Errorf("%w: %q", ErrRangeRef, ref)
	}
	var err error
	if r.StartCol, r.StartRow, err = excelize.CellNameToCoordinates(cells[0]); err != nil {
		return RangeRef{}, fmt.Errorf("%w: %q: %v", ErrRangeRef, ref, err)
	}
	r.EndCol, r.EndRow = r.StartCol, r.StartRow
	if len(cells) == 2 {
		if r.EndCol, r.EndRow, err = excelize.CellNameToCoordinates(cells[1]); err != nil {
			return RangeRef{}, fmt.Errorf("%w: %q: %v", ErrRangeRef, ref, err)
		}
	}
	if r.StartCol > r.EndCol {
		r.StartCol, r.EndCol = r.EndCol, r.StartCol
	}
	if r.StartRow > r.EndRow {
		r.StartRow, r.EndRow = r.EndRow, r.StartRow
	}
	return r, nil
}

func unquoteSheet(name string) string {
	if len(name) >= 2 && name[0] == '\'' && name[len(name)-1] == '\'' {
		name = strings.ReplaceAll(name[1:len(name)-1], "''", "'")
	}
	return name
}

func quoteSheet(name string) string {
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}

// Rows returns the number of rows of the range.
func (r RangeRef) Rows() int {
	return r.EndRow - r.StartRow + 1
}

// Cols returns the number of columns of the range.
func (r RangeRef) Cols() int {
	return r.EndCol - r.StartCol + 1
}

// Area returns the range's cell reference without the sheet, e.g. "A1:E7".
func (r RangeRef) Area() string {
	tl, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	if r.StartCol == r.EndCol && r.StartRow == r.EndRow {
		return tl
	}
	br, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow)
	return tl + ":" + br
}

func (r RangeRef) String() string {
	if r.Sheet == "" {
		return r.Area()
	}
	return quoteSheet(r.Sheet) + "!" + r.Area()
}

// Equal reports whether two ranges cover the same cells of the same sheet.
func (r RangeRef) Equal(o RangeRef) bool {
	return strings.EqualFold(r.Sheet, o.Sheet) && r.StartCol == o.StartCol && r.StartRow == o.StartRow &&
		r.EndCol == o.EndCol && r.EndRow == o.EndRow
}
