// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"fmt"
)

// layout places a refreshed pivot table on its worksheet. Row labels are
// written in compact form in the first column, column labels one row per
// column field above the body.
type layout struct {
	t            *PivotTable
	st           *refreshState
	r0, c0       int
	firstDataRow int
	address      RangeRef
	pageArea     RangeRef
	hasPageArea  bool
}

func (t *PivotTable) newLayout(st *refreshState) *layout {
	l := &layout{t: t, st: st, r0: t.Location.StartRow, c0: t.Location.StartCol, firstDataRow: 1}
	if n := len(t.ColumnFields); n > 0 {
		l.firstDataRow = 1 + n
	}
	endCol := l.c0
	if len(t.DataFields) > 0 {
		endCol = l.c0 + len(st.cols)
	}
	l.address = RangeRef{
		Sheet:    t.Location.Sheet,
		StartCol: l.c0,
		StartRow: l.r0,
		EndCol:   endCol,
		EndRow:   l.r0 + l.firstDataRow + len(st.rows) - 1,
	}
	if n := len(t.PageFields); n > 0 && l.r0-n-1 >= 1 {
		l.hasPageArea = true
		l.pageArea = RangeRef{Sheet: t.Location.Sheet, StartCol: l.c0, StartRow: l.r0 - n - 1, EndCol: l.c0 + 1, EndRow: l.r0 - 2}
	}
	return l
}

// write clears the previously written area and writes labels and values.
func (l *layout) write(ws Worksheet) error {
	if l.t.written {
		if err := clearArea(ws, l.t.Address); err != nil {
			return err
		}
		if l.t.hasPageArea {
			if err := clearArea(ws, l.t.pageArea); err != nil {
				return err
			}
		}
	}
	for _, step := range []func(Worksheet) error{l.writeCorner, l.writeColumnLabels, l.writeRowLabels, l.writeValues, l.writePages} {
		if err := step(ws); err != nil {
			return err
		}
	}
	return nil
}

func clearArea(ws Worksheet, area RangeRef) error {
	for row := area.StartRow; row <= area.EndRow; row++ {
		for col := area.StartCol; col <= area.EndCol; col++ {
			if err := ws.SetCellValue(area.Sheet, cellName(col, row), nil); err != nil {
				return err
			}
		}
	}
	return ws.SetCellStyle(area.Sheet, cellName(area.StartCol, area.StartRow), cellName(area.EndCol, area.EndRow), 0)
}

func (l *layout) set(ws Worksheet, col, row int, value interface{}) error {
	if ev, ok := value.(ErrorValue); ok {
		value = string(ev)
	}
	return ws.SetCellValue(l.t.Location.Sheet, cellName(col, row), value)
}

// writeCorner writes the captions above the row labels.
func (l *layout) writeCorner(ws Worksheet) error {
	t := l.t
	if len(t.ColumnFields) > 0 {
		if len(t.DataFields) == 1 {
			if err := l.set(ws, l.c0, l.r0, t.DataFields[0].Name); err != nil {
				return err
			}
		}
		if err := l.set(ws, l.c0+1, l.r0, t.captions.ColumnLabels); err != nil {
			return err
		}
	} else if len(t.DataFields) == 1 {
		if err := l.set(ws, l.c0+1, l.r0, t.DataFields[0].Name); err != nil {
			return err
		}
	}
	if len(t.RowFields) > 0 {
		return l.set(ws, l.c0, l.r0+l.firstDataRow-1, t.captions.RowLabels)
	}
	return nil
}

// writeColumnLabels writes the labels not repeated from the previous column.
func (l *layout) writeColumnLabels(ws Worksheet) error {
	if len(l.t.ColumnFields) == 0 {
		return nil
	}
	for j, h := range l.st.cols {
		col := l.c0 + 1 + j
		switch h.Kind {
		case HeaderItem:
			for d := h.RepeatedCount; d < len(h.Path); d++ {
				label, err := l.label(h.Path[d])
				if err != nil {
					return err
				}
				if err := l.set(ws, col, l.r0+1+d, label); err != nil {
					return err
				}
			}
		case HeaderSubtotal, HeaderGrand:
			row := l.r0 + 1
			if h.Kind == HeaderSubtotal {
				row += len(h.Path) - 1
			}
			label, err := l.totalLabel(h)
			if err != nil {
				return err
			}
			if err := l.set(ws, col, row, label); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeRowLabels writes one compact label per row header.
func (l *layout) writeRowLabels(ws Worksheet) error {
	for i, h := range l.st.rows {
		row := l.r0 + l.firstDataRow + i
		var (
			label interface{}
			err   error
		)
		switch h.Kind {
		case HeaderItem:
			label, err = l.label(h.Path[len(h.Path)-1])
		case HeaderSubtotal, HeaderGrand:
			label, err = l.totalLabel(h)
		default:
			continue
		}
		if err != nil {
			return err
		}
		if err := l.set(ws, l.c0, row, label); err != nil {
			return err
		}
	}
	return nil
}

// writeValues writes the owed grid cells with their number formats.
func (l *layout) writeValues(ws Worksheet) error {
	if l.st.grid == nil || len(l.t.DataFields) == 0 {
		return nil
	}
	styles := newStyleCache(ws)
	for i, cells := range l.st.grid.cells {
		row := l.r0 + l.firstDataRow + i
		for j, cell := range cells {
			if !cell.owed || cell.value == nil {
				continue
			}
			col := l.c0 + 1 + j
			if err := l.set(ws, col, row, cell.value); err != nil {
				return err
			}
			style, err := styles.style(l.t.DataFields[cell.dataField])
			if err != nil {
				return err
			}
			if style == 0 {
				continue
			}
			name := cellName(col, row)
			if err := ws.SetCellStyle(l.t.Location.Sheet, name, name, style); err != nil {
				return err
			}
		}
	}
	return nil
}

// writePages writes the report filters above the table when there is room.
func (l *layout) writePages(ws Worksheet) error {
	if !l.hasPageArea {
		return nil
	}
	for k, p := range l.t.PageFields {
		row := l.pageArea.StartRow + k
		if err := l.set(ws, l.c0, row, l.t.Fields[p.Field].Name); err != nil {
			return err
		}
		var selected interface{} = l.t.captions.AllItems
		if p.Item >= 0 {
			var err error
			if selected, err = l.label(Segment{Field: Field(p.Field), Shared: p.Item}); err != nil {
				return err
			}
		}
		if err := l.set(ws, l.c0+1, row, selected); err != nil {
			return err
		}
	}
	return nil
}

// label returns the cell value labelling a path segment.
func (l *layout) label(seg Segment) (interface{}, error) {
	if seg.Field.IsDataFields() {
		if seg.Item < len(l.t.DataFields) {
			return l.t.DataFields[seg.Item].Name, nil
		}
		return nil, fmt.Errorf("%w: data field %d", ErrParameterInvalid, seg.Item)
	}
	v, err := l.t.Cache.Fields[seg.Field.Index()].Items.Get(seg.Shared)
	if err != nil {
		return nil, newFieldError(seg.Field.Index(), l.t.Fields[seg.Field.Index()].Name, err)
	}
	if v.Type == TypeMissing {
		return l.t.captions.Blank, nil
	}
	return v.Interface(), nil
}

// labelText returns the text of a segment label.
func (l *layout) labelText(seg Segment) (string, error) {
	v, err := l.label(seg)
	if err != nil {
		return "", err
	}
	cv, err := Classify(v)
	if err != nil {
		return fmt.Sprint(v), nil
	}
	return cv.Text(), nil
}

// totalLabel returns the caption of a subtotal or grand total header.
func (l *layout) totalLabel(h *AxisHeader) (string, error) {
	c := l.t.captions
	if h.Kind == HeaderGrand {
		if h.DataField >= 0 && h.DataField < len(l.t.DataFields) {
			return fmt.Sprintf(c.DataTotal, l.t.DataFields[h.DataField].Name), nil
		}
		return c.GrandTotal, nil
	}
	item, err := l.labelText(h.Path[len(h.Path)-1])
	if err != nil {
		return "", err
	}
	if h.AboveDataField && h.DataField >= 0 && h.DataField < len(l.t.DataFields) {
		return item + " " + l.t.DataFields[h.DataField].Name, nil
	}
	return fmt.Sprintf(c.GroupTotal, item), nil
}
