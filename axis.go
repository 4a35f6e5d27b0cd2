// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"strconv"
	"strings"
)

// AxisFieldRef is one slot of an axis field list: either a pivot field or
// the data fields marker, which fans out one slot per data field.
type AxisFieldRef struct {
	field  int
	marker bool
}

// Field returns an axis slot for the pivot field at index.
func Field(index int) AxisFieldRef {
	return AxisFieldRef{field: index}
}

// DataFieldsMarker is the axis slot standing for the data fields.
var DataFieldsMarker = AxisFieldRef{field: -2, marker: true}

// IsDataFields reports whether the slot is the data fields marker.
func (r AxisFieldRef) IsDataFields() bool {
	return r.marker
}

// Index returns the pivot field index of a field slot, -2 for the marker.
func (r AxisFieldRef) Index() int {
	return r.field
}

func (r AxisFieldRef) String() string {
	if r.marker {
		return "Σ"
	}
	return strconv.Itoa(r.field)
}

// Segment is one step of an axis path. For field slots Item is the position
// in the pivot field's item list and Shared is the shared item index; for the
// data fields marker Item is the data field index and Shared is -1.
type Segment struct {
	Field  AxisFieldRef
	Item   int
	Shared int
}

// Path is an immutable sequence of segments from the axis root. Extend never
// modifies the receiver's backing array, so sibling branches can't observe
// each other.
type Path []Segment

// Extend returns a new path with seg appended.
func (p Path) Extend(seg Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// key returns a stable text form used for caching record sets.
func (p Path) key() string {
	var b strings.Builder
	for i, seg := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		if seg.Field.IsDataFields() {
			b.WriteString("d")
			b.WriteString(strconv.Itoa(seg.Item))
			continue
		}
		b.WriteString(strconv.Itoa(seg.Field.Index()))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(seg.Shared))
	}
	return b.String()
}

// fieldsOnly returns the segments constraining records.
func (p Path) fieldsOnly() Path {
	out := make(Path, 0, len(p))
	for _, seg := range p {
		if !seg.Field.IsDataFields() {
			out = append(out, seg)
		}
	}
	return out
}

// dataField returns the data field named by a marker segment of the path.
func (p Path) dataField() (int, bool) {
	for _, seg := range p {
		if seg.Field.IsDataFields() {
			return seg.Item, true
		}
	}
	return 0, false
}

// HeaderKind is the role of an axis header.
type HeaderKind byte

// Axis header kinds.
const (
	HeaderItem HeaderKind = iota
	HeaderSubtotal
	HeaderGrand
	HeaderBlank
)

func (k HeaderKind) String() string {
	switch k {
	case HeaderSubtotal:
		return "subtotal"
	case HeaderGrand:
		return "grand"
	case HeaderBlank:
		return "blank"
	}
	return "item"
}

// AxisHeader is one rendered row or column entry of a pivot table.
type AxisHeader struct {
	Path Path
	Kind HeaderKind
	Leaf bool
	// DataField is the data field the header is bound to, -1 when the axis
	// does not carry the data fields marker.
	DataField int
	// RepeatedCount is the number of leading path segments equal to the
	// previous emitted header on the same axis.
	RepeatedCount int
	// SubtotalTop marks a group label that stands for its group's subtotal.
	SubtotalTop bool
	// AboveDataField marks subtotals of a group placed above the data fields
	// marker, labelled per data field.
	AboveDataField bool
}

// owed reports whether grid cells are computed for the header.
func (h *AxisHeader) owed() bool {
	switch h.Kind {
	case HeaderSubtotal, HeaderBlank:
		return true
	case HeaderItem:
		return h.Leaf || h.SubtotalTop
	}
	return false
}

// AxisType identifies a pivot table axis.
type AxisType byte

// Pivot table axes.
const (
	AxisRow AxisType = iota
	AxisColumn
	AxisPage
)

func (a AxisType) String() string {
	switch a {
	case AxisColumn:
		return "column"
	case AxisPage:
		return "page"
	}
	return "row"
}
