// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"fmt"
	"log"
	"time"

	"github.com/RoaringBitmap/roaring"
)

// DataField is an aggregated value of a pivot table.
type DataField struct {
	// Field is the index of the source cache field.
	Field    int
	Name     string
	Function DataFieldFunction
	NumFmtID int
	// NumFmt is a custom number format code, used instead of NumFmtID.
	NumFmt string
}

// PageField is a report filter. Item is the shared item index of the
// selected item, -1 to select all items.
type PageField struct {
	Field int
	Item  int
}

// Captions holds the texts written for generated labels. Verbs are filled
// with fmt.Sprintf.
type Captions struct {
	GrandTotal   string
	DataTotal    string // "Total %s", the data field name
	GroupTotal   string // "%s Total", the group item
	Blank        string
	RowLabels    string
	ColumnLabels string
	AllItems     string
}

// DefaultCaptions returns the English captions.
func DefaultCaptions() Captions {
	return Captions{
		GrandTotal:   "Grand Total",
		DataTotal:    "Total %s",
		GroupTotal:   "%s Total",
		Blank:        "(blank)",
		RowLabels:    "Row Labels",
		ColumnLabels: "Column Labels",
		AllItems:     "(All)",
	}
}

// Options define the options for pivot table refresh.
//
// Locale is the BCP 47 tag resolving month names and ordering text items;
// empty uses the cache's locale.
//
// MonthFields lists the field names sorted chronologically by month,
// default "Month".
//
// Evaluator acquires the aggregate evaluator of each refresh, default a
// scratch excelize workbook.
//
// JoinCacheSize bounds the number of cached header record sets.
type Options struct {
	Locale        string
	MonthFields   []string
	Captions      *Captions
	Evaluator     EvaluatorFactory
	JoinCacheSize int
}

// PivotTable is a pivot table definition placed on a worksheet.
type PivotTable struct {
	Name              string
	Cache             *CacheDefinition
	Location          RangeRef
	Fields            []*PivotField
	RowFields         []AxisFieldRef
	ColumnFields      []AxisFieldRef
	PageFields        []PageField
	DataFields        []*DataField
	RowGrandTotals    bool
	ColumnGrandTotals bool
	RowHeaders        []*AxisHeader
	ColumnHeaders     []*AxisHeader
	// Address is the area written by the last refresh.
	Address   RangeRef
	locale    *Locale
	captions  Captions
	months    []string
	evaluator EvaluatorFactory
	sets      *lruCache
	written   bool
	// pageArea is the report filter block written by the last refresh.
	pageArea    RangeRef
	hasPageArea bool
}

// NewPivotTable creates a pivot table reading cache, anchored at the top left
// cell of location, e.g. "Sheet2!A3".
func NewPivotTable(cache *CacheDefinition, name, location string, opts *Options) (*PivotTable, error) {
	if cache == nil {
		return nil, fmt.Errorf("%w: cache definition", ErrParameterRequired)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: pivot table name", ErrParameterRequired)
	}
	loc, err := ParseRangeRef(location)
	if err != nil {
		return nil, err
	}
	if loc.Sheet == "" {
		return nil, fmt.Errorf("%w: pivot table location %q has no sheet", ErrRangeRef, location)
	}
	if opts == nil {
		opts = &Options{}
	}
	t := &PivotTable{
		Name:              name,
		Cache:             cache,
		Location:          RangeRef{Sheet: loc.Sheet, StartCol: loc.StartCol, StartRow: loc.StartRow, EndCol: loc.StartCol, EndRow: loc.StartRow},
		RowGrandTotals:    true,
		ColumnGrandTotals: true,
		locale:            cache.Locale(),
		captions:          DefaultCaptions(),
		months:            []string{"Month"},
		evaluator:         NewWorkbookEvaluator,
		sets:              newLRUCache(1024),
	}
	if opts.Locale != "" {
		if t.locale, err = NewLocale(opts.Locale); err != nil {
			return nil, err
		}
	}
	if opts.Captions != nil {
		t.captions = *opts.Captions
	}
	if len(opts.MonthFields) > 0 {
		t.months = opts.MonthFields
	}
	if opts.Evaluator != nil {
		t.evaluator = opts.Evaluator
	}
	if opts.JoinCacheSize > 0 {
		t.sets = newLRUCache(opts.JoinCacheSize)
	}
	t.Address = t.Location
	for _, field := range cache.Fields {
		t.Fields = append(t.Fields, &PivotField{Name: field.Name, DefaultSubtotal: true})
	}
	cache.attach(t)
	return t, nil
}

// checkField validates a pivot field index.
func (t *PivotTable) checkField(field int) error {
	if field < 0 || field >= len(t.Fields) {
		return fmt.Errorf("%w: field %d of %d", ErrParameterInvalid, field, len(t.Fields))
	}
	return nil
}

// axisOf returns the axis a field is assigned to.
func (t *PivotTable) axisOf(field int) (AxisType, bool) {
	for _, r := range t.RowFields {
		if !r.IsDataFields() && r.Index() == field {
			return AxisRow, true
		}
	}
	for _, r := range t.ColumnFields {
		if !r.IsDataFields() && r.Index() == field {
			return AxisColumn, true
		}
	}
	for _, p := range t.PageFields {
		if p.Field == field {
			return AxisPage, true
		}
	}
	return 0, false
}

// markerAxis returns the axis carrying the data fields marker.
func (t *PivotTable) markerAxis() (AxisType, bool) {
	for _, r := range t.RowFields {
		if r.IsDataFields() {
			return AxisRow, true
		}
	}
	for _, r := range t.ColumnFields {
		if r.IsDataFields() {
			return AxisColumn, true
		}
	}
	return 0, false
}

// checkAxis validates refs for placement on axis.
func (t *PivotTable) checkAxis(axis AxisType, refs []AxisFieldRef) error {
	markers := 0
	seen := make(map[int]bool)
	for _, r := range refs {
		if r.IsDataFields() {
			if markers++; markers > 1 {
				return fmt.Errorf("%w: marker repeated on %s axis", ErrDataFieldsMarker, axis)
			}
			if at, ok := t.markerAxis(); ok && at != axis {
				return fmt.Errorf("%w: marker already on %s axis", ErrDataFieldsMarker, at)
			}
			continue
		}
		if err := t.checkField(r.Index()); err != nil {
			return err
		}
		if seen[r.Index()] {
			return newFieldError(r.Index(), t.Fields[r.Index()].Name, ErrFieldOnMultipleAxes)
		}
		seen[r.Index()] = true
		if at, ok := t.axisOf(r.Index()); ok && at != axis {
			return newFieldError(r.Index(), t.Fields[r.Index()].Name, fmt.Errorf("%w: %s", ErrFieldOnMultipleAxes, at))
		}
	}
	return nil
}

// indexFields marks the cache fields of refs as indexed.
func (t *PivotTable) indexFields(fields ...int) {
	for _, i := range fields {
		if i >= 0 && i < len(t.Cache.Fields) {
			t.Cache.Fields[i].Indexed = true
		}
	}
}

// SetRowFields replaces the row axis field list.
func (t *PivotTable) SetRowFields(refs ...AxisFieldRef) error {
	if err := t.checkAxis(AxisRow, refs); err != nil {
		return err
	}
	t.RowFields = append([]AxisFieldRef(nil), refs...)
	t.indexFields(fieldIndexes(refs)...)
	return nil
}

// SetColumnFields replaces the column axis field list.
func (t *PivotTable) SetColumnFields(refs ...AxisFieldRef) error {
	if err := t.checkAxis(AxisColumn, refs); err != nil {
		return err
	}
	t.ColumnFields = append([]AxisFieldRef(nil), refs...)
	t.indexFields(fieldIndexes(refs)...)
	return nil
}

// SetPageFields replaces the report filters.
func (t *PivotTable) SetPageFields(pages ...PageField) error {
	refs := make([]AxisFieldRef, len(pages))
	for i, p := range pages {
		refs[i] = Field(p.Field)
	}
	if err := t.checkAxis(AxisPage, refs); err != nil {
		return err
	}
	for _, p := range pages {
		if p.Item < -1 {
			return newFieldError(p.Field, t.Fields[p.Field].Name, fmt.Errorf("%w: page item %d", ErrParameterInvalid, p.Item))
		}
	}
	t.PageFields = append([]PageField(nil), pages...)
	t.indexFields(fieldIndexes(refs)...)
	return nil
}

func fieldIndexes(refs []AxisFieldRef) []int {
	out := make([]int, 0, len(refs))
	for _, r := range refs {
		if !r.IsDataFields() {
			out = append(out, r.Index())
		}
	}
	return out
}

// AddDataField appends a data field aggregating the source field. An empty
// name composes one such as "Sum of Total". Adding a second data field to a
// table without the data fields marker appends the marker to the column
// axis.
func (t *PivotTable) AddDataField(field int, name string, fn DataFieldFunction) (*DataField, error) {
	if err := t.checkField(field); err != nil {
		return nil, err
	}
	if _, err := fn.WorksheetFunction(); err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("%s of %s", fn.Caption(), t.Fields[field].Name)
	}
	df := &DataField{Field: field, Name: name, Function: fn}
	t.DataFields = append(t.DataFields, df)
	if _, ok := t.markerAxis(); !ok && len(t.DataFields) > 1 {
		t.ColumnFields = append(t.ColumnFields, DataFieldsMarker)
	}
	return df, nil
}

// SetDataFieldFunction changes the aggregation of a data field.
func (t *PivotTable) SetDataFieldFunction(index int, fn DataFieldFunction) error {
	if index < 0 || index >= len(t.DataFields) {
		return fmt.Errorf("%w: data field %d of %d", ErrParameterInvalid, index, len(t.DataFields))
	}
	if _, err := fn.WorksheetFunction(); err != nil {
		return err
	}
	t.DataFields[index].Function = fn
	return nil
}

// SetDataFieldNumFmt sets the number format of a data field: a built-in
// format id, or a custom code when code is not empty.
func (t *PivotTable) SetDataFieldNumFmt(index, numFmtID int, code string) error {
	if index < 0 || index >= len(t.DataFields) {
		return fmt.Errorf("%w: data field %d of %d", ErrParameterInvalid, index, len(t.DataFields))
	}
	if numFmtID < 0 {
		return fmt.Errorf("%w: number format %d", ErrParameterInvalid, numFmtID)
	}
	if code != "" {
		if err := validateNumFmt(code); err != nil {
			return err
		}
	}
	t.DataFields[index].NumFmtID, t.DataFields[index].NumFmt = numFmtID, code
	return nil
}

// SetFieldSubtotal sets the subtotal policy of a pivot field.
func (t *PivotTable) SetFieldSubtotal(field int, defaultSubtotal, top bool) error {
	if err := t.checkField(field); err != nil {
		return err
	}
	t.Fields[field].DefaultSubtotal = defaultSubtotal
	t.Fields[field].SubtotalTop = top
	return nil
}

// SetGrandTotals sets the row and column grand total flags.
func (t *PivotTable) SetGrandTotals(rows, columns bool) {
	t.RowGrandTotals, t.ColumnGrandTotals = rows, columns
}

// LoadFieldItems replaces a pivot field's items with persisted ones.
func (t *PivotTable) LoadFieldItems(field int, items []FieldItem) error {
	if err := t.checkField(field); err != nil {
		return err
	}
	if err := validateItems(items, t.Cache.Fields[field]); err != nil {
		return newFieldError(field, t.Fields[field].Name, err)
	}
	t.Fields[field].Items = append([]FieldItem(nil), items...)
	return nil
}

// remapFields follows a change of the cache fields by name. Fields no longer
// present leave the axes and data fields.
func (t *PivotTable) remapFields(prev []string) {
	moved := make(map[int]int, len(prev))
	fields := make([]*PivotField, len(t.Cache.Fields))
	for i, field := range t.Cache.Fields {
		fields[i] = &PivotField{Name: field.Name, DefaultSubtotal: true}
		for j, name := range prev {
			if t.locale.Equivalent(name, field.Name) && j < len(t.Fields) {
				moved[j] = i
				fields[i] = t.Fields[j]
				fields[i].Name = field.Name
				fields[i].Items = nil
				break
			}
		}
	}
	remap := func(refs []AxisFieldRef) []AxisFieldRef {
		out := refs[:0:0]
		for _, r := range refs {
			if r.IsDataFields() {
				out = append(out, r)
			} else if i, ok := moved[r.Index()]; ok {
				out = append(out, Field(i))
			}
		}
		return out
	}
	t.RowFields, t.ColumnFields = remap(t.RowFields), remap(t.ColumnFields)
	var pages []PageField
	for _, p := range t.PageFields {
		if i, ok := moved[p.Field]; ok {
			pages = append(pages, PageField{Field: i, Item: -1})
		}
	}
	t.PageFields = pages
	var dataFields []*DataField
	for _, df := range t.DataFields {
		if i, ok := moved[df.Field]; ok {
			df.Field = i
			dataFields = append(dataFields, df)
		}
	}
	t.DataFields = dataFields
	t.Fields = fields
	t.indexFields(fieldIndexes(t.RowFields)...)
	t.indexFields(fieldIndexes(t.ColumnFields)...)
	for _, p := range t.PageFields {
		t.indexFields(p.Field)
	}
	t.sets.Clear()
}

// refreshState is the derived state of one refresh, swapped into the table
// on success.
type refreshState struct {
	items  [][]FieldItem
	rows   []*AxisHeader
	cols   []*AxisHeader
	grid   *grid
	filter *roaring.Bitmap
}

// RefreshFromCache resyncs the pivot fields with the cache, rebuilds both
// axes, recomputes the grid and writes the table to ws. The table's state is
// replaced only when the refresh succeeds.
func (t *PivotTable) RefreshFromCache(ws Worksheet) (err error) {
	if ws == nil {
		return fmt.Errorf("%w: worksheet", ErrParameterRequired)
	}
	start := time.Now()
	stage := "validate"
	defer func() {
		if err != nil {
			err = &RefreshError{Table: t.Name, Stage: stage, Err: err}
		}
	}()
	if err = t.validate(); err != nil {
		return err
	}
	st := &refreshState{}
	stage = "resync"
	if st.items, err = t.resync(); err != nil {
		return err
	}
	fields := make([]*PivotField, len(t.Fields))
	for i, f := range t.Fields {
		staged := *f
		staged.Items = st.items[i]
		fields[i] = &staged
	}
	stage = "filter"
	t.sets.Clear()
	if st.filter, err = t.pageFilter(); err != nil {
		return err
	}
	stage = "rows"
	if st.rows, err = buildAxis(AxisRow, t.RowFields, fields, t.Cache.Records, len(t.DataFields), t.RowGrandTotals, st.filter); err != nil {
		return err
	}
	stage = "columns"
	if st.cols, err = buildAxis(AxisColumn, t.ColumnFields, fields, t.Cache.Records, len(t.DataFields), t.ColumnGrandTotals, st.filter); err != nil {
		return err
	}
	stage = "grid"
	if err = t.computeGrid(st); err != nil {
		return err
	}
	stage = "write"
	lay := t.newLayout(st)
	if err = lay.write(ws); err != nil {
		return err
	}
	for i, f := range t.Fields {
		f.Items = st.items[i]
		f.stripMissing()
	}
	t.RowHeaders, t.ColumnHeaders = st.rows, st.cols
	t.Address = lay.address
	t.pageArea, t.hasPageArea = lay.pageArea, lay.hasPageArea
	t.written = true
	log.Printf("✅ [Pivot Refresh] %s: %d row headers, %d column headers, %d data fields in %v",
		t.Name, len(st.rows), len(st.cols), len(t.DataFields), time.Since(start))
	return nil
}

// validate checks the axis configuration.
func (t *PivotTable) validate() error {
	if _, ok := t.markerAxis(); !ok && len(t.DataFields) > 1 {
		return fmt.Errorf("%w: %d data fields without marker", ErrDataFieldsMarker, len(t.DataFields))
	}
	for _, df := range t.DataFields {
		if err := t.checkField(df.Field); err != nil {
			return err
		}
	}
	if len(t.Fields) != len(t.Cache.Fields) {
		return fmt.Errorf("%w: %d pivot fields for %d cache fields", ErrSourceShape, len(t.Fields), len(t.Cache.Fields))
	}
	return nil
}

// resync returns the rebuilt item list of every pivot field.
func (t *PivotTable) resync() ([][]FieldItem, error) {
	items := make([][]FieldItem, len(t.Fields))
	for i, f := range t.Fields {
		_, onAxis := t.axisOf(i)
		if !f.needsResync(onAxis) {
			items[i] = f.Items
			continue
		}
		if onAxis {
			t.Cache.Fields[i].Indexed = true
			t.Cache.Records.indexField(i)
		}
		month := isMonthField(f.Name, t.months, t.locale)
		resynced, err := f.resyncItems(t.Cache.Fields[i], t.locale, month)
		if err != nil {
			return nil, newFieldError(i, f.Name, err)
		}
		items[i] = resynced
	}
	return items, nil
}

// pageFilter returns the records selected by the report filters.
func (t *PivotTable) pageFilter() (*roaring.Bitmap, error) {
	var path Path
	for _, p := range t.PageFields {
		if p.Item < 0 {
			continue
		}
		path = path.Extend(Segment{Field: Field(p.Field), Shared: p.Item})
	}
	return t.Cache.Records.Match(path)
}

// computeGrid aggregates the grid with one evaluator for the whole refresh.
func (t *PivotTable) computeGrid(st *refreshState) (err error) {
	eval, err := t.evaluator()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := eval.Close(); err == nil {
			err = cerr
		}
	}()
	agg, err := NewAggregator(eval)
	if err != nil {
		return err
	}
	st.grid = newGrid(st.rows, st.cols, t.Cache.Records, t.DataFields, st.filter, t.sets, agg)
	return st.grid.compute()
}
