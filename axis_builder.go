// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

// axisBuilder enumerates the headers of one row or column axis.
type axisBuilder struct {
	axis       AxisType
	refs       []AxisFieldRef
	fields     []*PivotField
	records    *CacheRecords
	dataFields int
	grand      bool
	headers    []*AxisHeader
}

// buildAxis returns the headers of an axis. Only item combinations present
// in the records of filter produce headers. An axis without fields yields a
// single blank header.
func buildAxis(axis AxisType, refs []AxisFieldRef, fields []*PivotField, records *CacheRecords,
	dataFields int, grand bool, filter *roaring.Bitmap,
) ([]*AxisHeader, error) {
	b := &axisBuilder{
		axis:       axis,
		refs:       refs,
		fields:     fields,
		records:    records,
		dataFields: dataFields,
		grand:      grand,
	}
	if len(refs) == 0 {
		return []*AxisHeader{{Kind: HeaderBlank, Leaf: true, DataField: -1}}, nil
	}
	if err := b.descend(0, nil, filter); err != nil {
		return nil, err
	}
	b.grandTotals()
	return b.headers, nil
}

// descend emits the subtree below path at depth, where set holds the records
// matching path.
func (b *axisBuilder) descend(depth int, path Path, set *roaring.Bitmap) error {
	ref := b.refs[depth]
	if ref.IsDataFields() {
		for i := 0; i < b.dataFields; i++ {
			if err := b.visit(depth, path.Extend(Segment{Field: ref, Item: i, Shared: -1}), set); err != nil {
				return err
			}
		}
		return nil
	}
	col := ref.Index()
	bms, err := b.records.fieldBitmaps(col)
	if err != nil {
		return err
	}
	for pos, item := range b.fields[col].Items {
		if item.Type != ItemData {
			continue
		}
		if item.Index < 0 || item.Index >= len(bms) {
			return newFieldError(col, b.fields[col].Name, fmt.Errorf("%w: item %d", ErrSharedItemIndex, item.Index))
		}
		sub := roaring.And(set, bms[item.Index])
		if sub.IsEmpty() {
			continue
		}
		if err := b.visit(depth, path.Extend(Segment{Field: ref, Item: pos, Shared: item.Index}), sub); err != nil {
			return err
		}
	}
	return nil
}

// visit emits the node for path and, for inner nodes, its descendants and
// subtotals.
func (b *axisBuilder) visit(depth int, path Path, set *roaring.Bitmap) error {
	last := depth == len(b.refs)-1
	n, top, above := b.subtotalPolicy(depth)
	h := &AxisHeader{
		Path:        path,
		Kind:        HeaderItem,
		Leaf:        last,
		DataField:   b.dataFieldOf(path),
		SubtotalTop: n > 0 && top,
	}
	if last || b.axis == AxisRow {
		b.emit(h)
	}
	if last {
		return nil
	}
	if err := b.descend(depth+1, path, set); err != nil {
		return err
	}
	if top {
		return nil
	}
	for i := 0; i < n; i++ {
		st := &AxisHeader{Path: path, Kind: HeaderSubtotal, DataField: h.DataField, AboveDataField: above}
		if above {
			st.DataField = i
		}
		b.emit(st)
	}
	return nil
}

// subtotalPolicy returns the number of subtotal nodes owed by a group at
// depth, whether the group label itself carries the subtotal and whether the
// group lies above the data fields marker.
func (b *axisBuilder) subtotalPolicy(depth int) (n int, top, above bool) {
	ref := b.refs[depth]
	if ref.IsDataFields() || !b.fields[ref.Index()].DefaultSubtotal {
		return 0, false, false
	}
	var fieldBelow, markerBelow bool
	for _, r := range b.refs[depth+1:] {
		if r.IsDataFields() {
			markerBelow = true
		} else {
			fieldBelow = true
		}
	}
	switch {
	case !fieldBelow:
		return 0, false, false
	case markerBelow:
		return b.dataFields, false, true
	case b.axis == AxisRow && b.fields[ref.Index()].SubtotalTop:
		return 1, true, false
	}
	return 1, false, false
}

// dataFieldOf returns the data field selected by path, -1 when the axis has
// no data fields marker above or at the path's end.
func (b *axisBuilder) dataFieldOf(path Path) int {
	if i, ok := path.dataField(); ok {
		return i
	}
	return -1
}

// hasMarker reports whether the axis carries the data fields marker.
func (b *axisBuilder) hasMarker() bool {
	for _, r := range b.refs {
		if r.IsDataFields() {
			return true
		}
	}
	return false
}

// grandTotals appends the axis grand total nodes.
func (b *axisBuilder) grandTotals() {
	if !b.grand || (len(b.refs) == 1 && b.refs[0].IsDataFields()) {
		return
	}
	if !b.hasMarker() {
		b.emit(&AxisHeader{Kind: HeaderGrand, DataField: -1})
		return
	}
	for i := 0; i < b.dataFields; i++ {
		b.emit(&AxisHeader{Kind: HeaderGrand, DataField: i})
	}
}

// emit appends h, computing its repeated ancestor count.
func (b *axisBuilder) emit(h *AxisHeader) {
	if len(b.headers) > 0 && h.Kind != HeaderGrand {
		prev := b.headers[len(b.headers)-1].Path
		n := 0
		for n < len(h.Path)-1 && n < len(prev) &&
			prev[n].Field == h.Path[n].Field && prev[n].Item == h.Path[n].Item {
			n++
		}
		h.RepeatedCount = n
	}
	b.headers = append(b.headers, h)
}
