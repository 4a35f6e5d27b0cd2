// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

// CacheField is one source column of the pivot cache.
type CacheField struct {
	Name     string
	NumFmtID int
	Items    *SharedItems
	// Indexed fields share every value, not only text, so their shared
	// items enumerate the whole column, blanks included. Fields placed on
	// an axis are indexed.
	Indexed bool
}

// CacheRecord is one source row, positionally aligned to the cache fields.
type CacheRecord []CacheValue

// CacheRecords is the ordered record store of a pivot cache.
type CacheRecords struct {
	Records []CacheRecord
	Count   int
	fields  []*CacheField
	bitmaps map[int][]*roaring.Bitmap
}

// NewCacheRecords returns an empty store over fields.
func NewCacheRecords(fields []*CacheField) (*CacheRecords, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: cache fields", ErrParameterRequired)
	}
	for i, field := range fields {
		if field == nil || field.Items == nil {
			return nil, newFieldError(i, "", fmt.Errorf("%w: cache field shared items", ErrParameterRequired))
		}
	}
	return &CacheRecords{fields: fields}, nil
}

// UpdateRecords reconciles the store against a header-less, row-major source
// range: trailing records beyond the range are discarded, overlapping
// records are updated in place cell by cell and new rows are appended.
func (r *CacheRecords) UpdateRecords(rows [][]interface{}) error {
	r.bitmaps = nil
	if len(rows) < len(r.Records) {
		for i := len(rows); i < len(r.Records); i++ {
			r.Records[i] = nil
		}
		r.Records = r.Records[:len(rows)]
	}
	for i, row := range rows {
		if len(row) > len(r.fields) {
			return fmt.Errorf("%w: row %d has %d values for %d fields", ErrSourceShape, i, len(row), len(r.fields))
		}
		if i >= len(r.Records) {
			r.Records = append(r.Records, make(CacheRecord, len(r.fields)))
			for col := range r.fields {
				r.Records[i][col] = Missing
			}
		}
		record := r.Records[i]
		for col := range r.fields {
			var raw interface{}
			if col < len(row) {
				raw = row[col]
			}
			if err := r.updateCell(record, col, raw); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
		}
	}
	r.Count = len(r.Records)
	return nil
}

// updateCell applies one incoming raw value to a stored cell.
func (r *CacheRecords) updateCell(record CacheRecord, col int, raw interface{}) error {
	field := r.fields[col]
	v, err := Classify(raw)
	if err != nil {
		return newFieldError(col, field.Name, err)
	}
	cur := record[col]
	if cur.Type == TypeSharedRef {
		if _, err := field.Items.Get(cur.Index); err != nil {
			return newFieldError(col, field.Name, err)
		}
	}
	if v.Type == TypeText || field.Indexed {
		idx := field.Items.addValue(v)
		if cur.Type != TypeSharedRef || cur.Index != idx {
			record[col] = NewSharedRef(idx)
		}
		return nil
	}
	if !cur.sameContent(v) {
		record[col] = v
	}
	return nil
}

// Resolve returns the content of a record cell, following shared references.
func (r *CacheRecords) Resolve(record CacheRecord, col int) (CacheValue, error) {
	if col < 0 || col >= len(record) {
		return CacheValue{}, fmt.Errorf("%w: field %d", ErrParameterInvalid, col)
	}
	v := record[col]
	if v.Type != TypeSharedRef {
		return v, nil
	}
	item, err := r.fields[col].Items.Get(v.Index)
	if err != nil {
		return CacheValue{}, newFieldError(col, r.fields[col].Name, err)
	}
	return item, nil
}

// indexField adds every literal value of an indexed field into its shared
// items. Records keep their stored form, only new indices are issued.
func (r *CacheRecords) indexField(col int) {
	field := r.fields[col]
	if !field.Indexed {
		return
	}
	before := field.Items.Count()
	for _, record := range r.Records {
		if v := record[col]; v.Type != TypeSharedRef {
			field.Items.addValue(v)
		}
	}
	if field.Items.Count() != before {
		delete(r.bitmaps, col)
	}
}

// fieldBitmaps returns, per shared item of the field, the set of records
// holding that item.
func (r *CacheRecords) fieldBitmaps(col int) ([]*roaring.Bitmap, error) {
	if r.bitmaps == nil {
		r.bitmaps = make(map[int][]*roaring.Bitmap)
	}
	if bms, ok := r.bitmaps[col]; ok && len(bms) == r.fields[col].Items.Count() {
		return bms, nil
	}
	field := r.fields[col]
	bms := make([]*roaring.Bitmap, field.Items.Count())
	for i := range bms {
		bms[i] = roaring.New()
	}
	for row, record := range r.Records {
		v := record[col]
		idx := v.Index
		if v.Type != TypeSharedRef {
			var ok bool
			if idx, ok = field.Items.Find(v); !ok {
				continue
			}
		} else if idx < 0 || idx >= len(bms) {
			return nil, newFieldError(col, field.Name, fmt.Errorf("%w: record %d references %d", ErrSharedItemIndex, row, idx))
		}
		bms[idx].Add(uint32(row))
	}
	r.bitmaps[col] = bms
	return bms, nil
}

// all returns the set of every record.
func (r *CacheRecords) all() *roaring.Bitmap {
	bm := roaring.New()
	bm.AddRange(0, uint64(len(r.Records)))
	return bm
}

// Match returns the records whose fields equal the shared items named by
// every field segment of path. Data field segments do not constrain.
func (r *CacheRecords) Match(path Path) (*roaring.Bitmap, error) {
	return r.narrow(r.all(), path)
}

// narrow intersects set with the records selected by path.
func (r *CacheRecords) narrow(set *roaring.Bitmap, path Path) (*roaring.Bitmap, error) {
	out := set
	for _, seg := range path {
		if seg.Field.IsDataFields() {
			continue
		}
		bms, err := r.fieldBitmaps(seg.Field.Index())
		if err != nil {
			return nil, err
		}
		if seg.Shared < 0 || seg.Shared >= len(bms) {
			return nil, newFieldError(seg.Field.Index(), r.fields[seg.Field.Index()].Name,
				fmt.Errorf("%w: %d", ErrSharedItemIndex, seg.Shared))
		}
		out = roaring.And(out, bms[seg.Shared])
		if out.IsEmpty() {
			break
		}
	}
	return out, nil
}

// Occurs reports whether some record matches every field segment of path.
func (r *CacheRecords) Occurs(path Path) (bool, error) {
	set, err := r.Match(path)
	if err != nil {
		return false, err
	}
	return !set.IsEmpty(), nil
}

// Values projects column col of the records in set, skipping missing
// values, in record order.
func (r *CacheRecords) Values(set *roaring.Bitmap, col int) ([]interface{}, error) {
	if col < 0 || col >= len(r.fields) {
		return nil, fmt.Errorf("%w: data field source %d", ErrParameterInvalid, col)
	}
	values := make([]interface{}, 0, set.GetCardinality())
	it := set.Iterator()
	for it.HasNext() {
		v, err := r.Resolve(r.Records[it.Next()], col)
		if err != nil {
			return nil, err
		}
		if v.Type == TypeMissing {
			continue
		}
		values = append(values, v.Interface())
	}
	return values, nil
}
