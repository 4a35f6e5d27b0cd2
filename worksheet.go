// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/xuri/nfp"
)

// Worksheet is the cell grid a pivot table reads its source from and writes
// its body to. *excelize.File implements it.
type Worksheet interface {
	GetCellValue(sheet, cell string, opts ...excelize.Options) (string, error)
	GetCellType(sheet, cell string) (excelize.CellType, error)
	SetCellValue(sheet, cell string, value interface{}) error
	NewStyle(style *excelize.Style) (int, error)
	SetCellStyle(sheet, topLeftCell, bottomRightCell string, styleID int) error
	GetCellStyle(sheet, cell string) (int, error)
	GetStyle(idx int) (*excelize.Style, error)
}

// ReadSourceRange reads a source range whose first row holds the field
// names. The remaining rows are returned row-major with typed values.
func ReadSourceRange(ws Worksheet, ref RangeRef) ([]string, [][]interface{}, error) {
	if ws == nil {
		return nil, nil, fmt.Errorf("%w: worksheet", ErrParameterRequired)
	}
	if ref.Sheet == "" {
		return nil, nil, fmt.Errorf("%w: source range %s has no sheet", ErrRangeRef, ref)
	}
	header := make([]string, 0, ref.Cols())
	for col := ref.StartCol; col <= ref.EndCol; col++ {
		cell, _ := excelize.CoordinatesToCellName(col, ref.StartRow)
		name, err := ws.GetCellValue(ref.Sheet, cell)
		if err != nil {
			return nil, nil, err
		}
		if name = strings.TrimSpace(name); name == "" {
			return nil, nil, fmt.Errorf("%w: empty field name at %s!%s", ErrSourceShape, ref.Sheet, cell)
		}
		header = append(header, name)
	}
	rd := newSourceReader(ws)
	rows := make([][]interface{}, 0, ref.Rows()-1)
	for row := ref.StartRow + 1; row <= ref.EndRow; row++ {
		values := make([]interface{}, 0, ref.Cols())
		for col := ref.StartCol; col <= ref.EndCol; col++ {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			v, err := rd.readCell(ref.Sheet, cell)
			if err != nil {
				return nil, nil, err
			}
			values = append(values, v)
		}
		rows = append(rows, values)
	}
	return header, rows, nil
}

// sourceReader types source cells, remembering which styles format dates.
type sourceReader struct {
	ws    Worksheet
	dates map[int]bool
}

func newSourceReader(ws Worksheet) *sourceReader {
	return &sourceReader{ws: ws, dates: make(map[int]bool)}
}

// readCell returns a cell's value typed by its cell type. Numbers formatted
// as dates are dates.
func (rd *sourceReader) readCell(sheet, cell string) (interface{}, error) {
	typ, err := rd.ws.GetCellType(sheet, cell)
	if err != nil {
		return nil, err
	}
	raw, err := rd.ws.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "TRUE"), nil
	case excelize.CellTypeError:
		return ErrorValue(raw), nil
	case excelize.CellTypeDate:
		for _, layout := range []string{time.RFC3339, dateLayout, "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return raw, nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		if raw == "" {
			return nil, nil
		}
		return raw, nil
	}
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw, nil
	}
	date, err := rd.isDate(sheet, cell)
	if err != nil {
		return nil, err
	}
	if date {
		if t, err := excelize.ExcelDateToTime(f, false); err == nil {
			return t, nil
		}
	}
	return f, nil
}

// isDate reports whether the cell's style has a date number format.
func (rd *sourceReader) isDate(sheet, cell string) (bool, error) {
	id, err := rd.ws.GetCellStyle(sheet, cell)
	if err != nil {
		return false, err
	}
	if date, ok := rd.dates[id]; ok {
		return date, nil
	}
	style, err := rd.ws.GetStyle(id)
	if err != nil {
		return false, err
	}
	date := isDateNumFmt(style.NumFmt)
	if style.CustomNumFmt != nil {
		date = isDateFormatCode(*style.CustomNumFmt)
	}
	rd.dates[id] = date
	return date, nil
}

// isDateNumFmt reports whether a built-in number format shows a date.
func isDateNumFmt(id int) bool {
	return (id >= 14 && id <= 17) || id == 22 || (id >= 27 && id <= 36) || (id >= 50 && id <= 58)
}

// isDateFormatCode reports whether a custom number format code shows a
// calendar date: a year, a day or a month name. Time of day and elapsed
// formats are not dates.
func isDateFormatCode(code string) bool {
	ps := nfp.NumberFormatParser()
	for _, section := range ps.Parse(code) {
		for _, token := range section.Items {
			if token.TType != nfp.TokenTypeDateTimes {
				continue
			}
			part := strings.ToLower(token.TValue)
			if strings.ContainsAny(part, "yd") || strings.HasPrefix(part, "mmm") {
				return true
			}
		}
	}
	return false
}

// cellName returns the name of the cell at 1-based coordinates.
func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// validateNumFmt checks a custom number format code.
func validateNumFmt(code string) error {
	ps := nfp.NumberFormatParser()
	sections := ps.Parse(code)
	if len(sections) == 0 || len(sections) > 4 {
		return fmt.Errorf("%w: %q", ErrNumberFormat, code)
	}
	for _, section := range sections {
		for _, token := range section.Items {
			if token.TType == nfp.TokenTypeUnknown {
				return fmt.Errorf("%w: %q", ErrNumberFormat, code)
			}
		}
	}
	return nil
}

// styleCache creates one number format style per distinct format.
type styleCache struct {
	ws     Worksheet
	styles map[string]int
}

func newStyleCache(ws Worksheet) *styleCache {
	return &styleCache{ws: ws, styles: make(map[string]int)}
}

// style returns the style applying the data field's number format, 0 when
// the data field uses the general format.
func (s *styleCache) style(df *DataField) (int, error) {
	if df.NumFmtID == 0 && df.NumFmt == "" {
		return 0, nil
	}
	key := strconv.Itoa(df.NumFmtID) + "|" + df.NumFmt
	if id, ok := s.styles[key]; ok {
		return id, nil
	}
	style := &excelize.Style{NumFmt: df.NumFmtID}
	if df.NumFmt != "" {
		code := df.NumFmt
		style.CustomNumFmt = &code
	}
	id, err := s.ws.NewStyle(style)
	if err != nil {
		return 0, err
	}
	s.styles[key] = id
	return id, nil
}
