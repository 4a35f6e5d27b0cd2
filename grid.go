// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"github.com/RoaringBitmap/roaring"
)

// gridCell is one computed intersection of a row and a column header.
type gridCell struct {
	owed      bool
	dataField int
	values    []interface{}
	value     interface{}
}

// grid is the matrix of aggregated values of a pivot table, one cell per row
// header and column header pair.
type grid struct {
	rows, cols []*AxisHeader
	cells      [][]gridCell
	records    *CacheRecords
	dataFields []*DataField
	filter     *roaring.Bitmap
	sets       *lruCache
	agg        *Aggregator
}

func newGrid(rows, cols []*AxisHeader, records *CacheRecords, dataFields []*DataField,
	filter *roaring.Bitmap, sets *lruCache, agg *Aggregator,
) *grid {
	g := &grid{
		rows:       rows,
		cols:       cols,
		records:    records,
		dataFields: dataFields,
		filter:     filter,
		sets:       sets,
		agg:        agg,
		cells:      make([][]gridCell, len(rows)),
	}
	for i := range g.cells {
		g.cells[i] = make([]gridCell, len(cols))
	}
	return g
}

// dataFieldFor returns the data field of the intersection of two headers.
func dataFieldFor(row, col *AxisHeader) int {
	if row.DataField >= 0 {
		return row.DataField
	}
	if col.DataField >= 0 {
		return col.DataField
	}
	return 0
}

// compute fills the matrix, item intersections first and grand totals after
// the item intersections are complete.
func (g *grid) compute() error {
	if len(g.dataFields) == 0 {
		return nil
	}
	for r, row := range g.rows {
		for c, col := range g.cols {
			if row.Kind == HeaderGrand || col.Kind == HeaderGrand || !row.owed() || !col.owed() {
				continue
			}
			if err := g.intersect(r, c); err != nil {
				return err
			}
		}
	}
	for r, row := range g.rows {
		for c, col := range g.cols {
			switch {
			case row.Kind == HeaderGrand && col.Kind == HeaderGrand:
				g.combine(r, c, func(i, j int) bool { return g.rows[i].Leaf && g.cols[j].Leaf })
			case row.Kind == HeaderGrand && col.owed():
				g.combine(r, c, func(i, j int) bool { return j == c && g.rows[i].Leaf })
			case col.Kind == HeaderGrand && row.owed():
				g.combine(r, c, func(i, j int) bool { return i == r && g.cols[j].Leaf })
			default:
				continue
			}
			if err := g.aggregate(r, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// intersect joins the row and column paths against the records and projects
// the data field's source column.
func (g *grid) intersect(r, c int) error {
	row, col := g.rows[r], g.cols[c]
	rs, err := g.recordSet("r", row.Path)
	if err != nil {
		return err
	}
	cs, err := g.recordSet("c", col.Path)
	if err != nil {
		return err
	}
	df := dataFieldFor(row, col)
	if df >= len(g.dataFields) {
		return nil
	}
	values, err := g.records.Values(roaring.And(rs, cs), g.dataFields[df].Field)
	if err != nil {
		return err
	}
	g.cells[r][c] = gridCell{owed: true, dataField: df, values: values}
	return g.aggregate(r, c)
}

// recordSet returns the records of the filter matching path.
func (g *grid) recordSet(axis string, path Path) (*roaring.Bitmap, error) {
	fields := path.fieldsOnly()
	key := axis + ":" + fields.key()
	if set, ok := g.sets.Load(key); ok {
		return set, nil
	}
	set, err := g.records.narrow(g.filter, fields)
	if err != nil {
		return nil, err
	}
	g.sets.Store(key, set)
	return set, nil
}

// combine gathers into cell (r, c) the value lists of the computed cells
// selected by include carrying the same data field.
func (g *grid) combine(r, c int, include func(i, j int) bool) {
	df := dataFieldFor(g.rows[r], g.cols[c])
	var values []interface{}
	for i := range g.cells {
		for j := range g.cells[i] {
			cell := &g.cells[i][j]
			if !cell.owed || g.rows[i].Kind == HeaderGrand || g.cols[j].Kind == HeaderGrand {
				continue
			}
			if cell.dataField == df && include(i, j) {
				values = append(values, cell.values...)
			}
		}
	}
	g.cells[r][c] = gridCell{owed: true, dataField: df, values: values}
}

// aggregate computes the value of a gathered cell.
func (g *grid) aggregate(r, c int) error {
	cell := &g.cells[r][c]
	if cell.dataField >= len(g.dataFields) {
		return nil
	}
	v, err := g.agg.Aggregate(g.dataFields[cell.dataField].Function, cell.values)
	if err != nil {
		return err
	}
	cell.value = v
	return nil
}
