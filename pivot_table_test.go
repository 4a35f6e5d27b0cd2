package pivot

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// newSourceBook writes names and rows to Sheet1 and adds an empty Sheet2.
func newSourceBook(t *testing.T, names []string, rows [][]interface{}) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { assert.NoError(t, f.Close()) })
	header := make([]interface{}, len(names))
	for i, name := range names {
		header[i] = name
	}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	for i, row := range rows {
		row := row
		require.NoError(t, f.SetSheetRow("Sheet1", "A"+strconv.Itoa(i+2), &row))
	}
	_, err := f.NewSheet("Sheet2")
	require.NoError(t, err)
	return f
}

func newSalesTable(t *testing.T, f *excelize.File, source, location string, opts *Options) *PivotTable {
	t.Helper()
	ref, err := ParseRangeRef(source)
	require.NoError(t, err)
	c, err := NewCacheDefinitionFromSheet(f, ref, newTestLocale(t, ""))
	require.NoError(t, err)
	pt, err := NewPivotTable(c, "PivotTable1", location, opts)
	require.NoError(t, err)
	return pt
}

func assertCells(t *testing.T, f *excelize.File, sheet string, expected map[string]string) {
	t.Helper()
	for cell, value := range expected {
		v, err := f.GetCellValue(sheet, cell)
		assert.NoError(t, err)
		assert.Equal(t, value, v, cell)
	}
}

func TestRefreshFromCache(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows()[:3])
	pt := newSalesTable(t, f, "Sheet1!A1:E4", "Sheet2!A1", nil)
	require.NoError(t, pt.SetRowFields(Field(0)))
	require.NoError(t, pt.SetColumnFields(Field(2)))
	df, err := pt.AddDataField(3, "", FunctionAverage)
	require.NoError(t, err)
	assert.Equal(t, "Average of Price", df.Name)

	assert.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", map[string]string{
		"A1": "Average of Price", "B1": "Column Labels", "C1": "",
		"A2": "Row Labels", "B2": "Car Rack", "C2": "Grand Total",
		"A3": "January", "B3": "415.75", "C3": "415.75",
		"A4": "Grand Total", "B4": "415.75", "C4": "415.75",
	})
	assert.Equal(t, "Sheet2!A1:C4", pt.Address.String())
	assert.Len(t, pt.RowHeaders, 2)
	assert.Len(t, pt.ColumnHeaders, 2)
	// Axis fields resync with a trailing default item
	assert.Equal(t, []FieldItem{{Index: 0}, {Index: -1, Type: ItemDefault}}, pt.Fields[0].Items)
	assert.Empty(t, pt.Fields[1].Items)
}

func TestRefreshShrinkAndRegrow(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows())
	pt := newSalesTable(t, f, "Sheet1!A1:E7", "Sheet2!A1", nil)
	require.NoError(t, pt.SetRowFields(Field(0)))
	_, err := pt.AddDataField(4, "", FunctionSum)
	require.NoError(t, err)

	full := map[string]string{
		"A1": "Row Labels", "B1": "Sum of Units",
		"A2": "January", "B2": "5",
		"A3": "February", "B3": "1",
		"A4": "March", "B4": "2",
		"A5": "Grand Total", "B5": "8",
	}
	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", full)
	assert.Len(t, pt.RowHeaders, 4)
	assert.Equal(t, "Sheet2!A1:B5", pt.Address.String())

	require.NoError(t, pt.Cache.UpdateRecords(salesRows()[:3]))
	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", map[string]string{
		"A2": "January", "B2": "5",
		"A3": "Grand Total", "B3": "5",
		"A4": "", "B4": "", "A5": "", "B5": "",
	})
	assert.Len(t, pt.RowHeaders, 2)
	// Items outlive the records referencing them
	assert.Len(t, pt.Fields[0].Items, 4)

	require.NoError(t, pt.Cache.UpdateRecords(salesRows()))
	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", full)
	assert.Len(t, pt.RowHeaders, 4)
}

func TestRefreshSubtotalPlacement(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows())
	pt := newSalesTable(t, f, "Sheet1!A1:E7", "Sheet2!A1", nil)
	require.NoError(t, pt.SetRowFields(Field(0), Field(1)))
	_, err := pt.AddDataField(4, "", FunctionSum)
	require.NoError(t, err)

	// Trailing subtotals leave the group label rows empty
	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", map[string]string{
		"A2": "January", "B2": "",
		"A3": "Chicago", "B3": "2",
		"A4": "Nashville", "B4": "2",
		"A5": "San Francisco", "B5": "1",
		"A6": "January Total", "B6": "5",
		"A7": "February", "B7": "",
		"A8": "Chicago", "B8": "1",
		"A9": "February Total", "B9": "1",
		"A10": "March", "B10": "",
		"A13": "March Total", "B13": "2",
		"A14": "Grand Total", "B14": "8",
	})

	// Top subtotals are carried by the group label rows only
	require.NoError(t, pt.SetFieldSubtotal(0, true, true))
	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", map[string]string{
		"A2": "January", "B2": "5",
		"A3": "Chicago", "B3": "2",
		"A5": "San Francisco", "B5": "1",
		"A6": "February", "B6": "1",
		"A7": "Chicago", "B7": "1",
		"A8": "March", "B8": "2",
		"A10": "Nashville", "B10": "1",
		"A11": "Grand Total", "B11": "8",
		"A12": "", "B12": "", "A14": "", "B14": "",
	})
	assert.Equal(t, "Sheet2!A1:B11", pt.Address.String())

	// Without a default subtotal no group carries a value
	require.NoError(t, pt.SetFieldSubtotal(0, false, false))
	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", map[string]string{
		"A2": "January", "B2": "",
		"A6": "February", "B6": "",
		"A8": "March", "B8": "",
		"A10": "Nashville", "B10": "1",
		"A11": "Grand Total", "B11": "8",
	})
}

func TestRefreshColumnSubtotals(t *testing.T) {
	expected := map[string]string{
		"A1": "Sum of Units", "B1": "Column Labels",
		"B2": "January", "B3": "Chicago", "B4": "2",
		"C2": "", "C3": "Nashville", "C4": "2",
		"D3": "San Francisco", "D4": "1",
		"E2": "January Total", "E3": "", "E4": "5",
		"F2": "February", "F3": "Chicago", "F4": "1",
		"G2": "February Total", "G4": "1",
		"H2": "March", "H3": "Chicago", "H4": "1",
		"I3": "Nashville", "I4": "1",
		"J2": "March Total", "J4": "2",
		"K2": "Grand Total", "K4": "8",
	}
	// Column subtotals trail their group whatever the top flag says
	for _, top := range []bool{false, true} {
		f := newSourceBook(t, salesFields, salesRows())
		pt := newSalesTable(t, f, "Sheet1!A1:E7", "Sheet2!A1", nil)
		require.NoError(t, pt.SetColumnFields(Field(0), Field(1)))
		require.NoError(t, pt.SetFieldSubtotal(0, true, top))
		_, err := pt.AddDataField(4, "", FunctionSum)
		require.NoError(t, err)
		require.NoError(t, pt.RefreshFromCache(f))
		assertCells(t, f, "Sheet2", expected)
		assert.Equal(t, "Sheet2!A1:K4", pt.Address.String())
	}
}

func TestRefreshMonthLocale(t *testing.T) {
	rows := [][]interface{}{{"marzo", 1}, {"abril", 2}, {"enero", 3}}
	f := newSourceBook(t, []string{"Mes", "Importe"}, rows)
	pt := newSalesTable(t, f, "Sheet1!A1:B4", "Sheet2!A1", &Options{Locale: "es", MonthFields: []string{"Mes"}})
	require.NoError(t, pt.SetRowFields(Field(0)))
	_, err := pt.AddDataField(1, "", FunctionSum)
	require.NoError(t, err)
	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", map[string]string{
		"A2": "enero", "B2": "3",
		"A3": "marzo", "B3": "1",
		"A4": "abril", "B4": "2",
		"A5": "Grand Total", "B5": "6",
	})

	// Without the month field the items sort as text
	f = newSourceBook(t, []string{"Mes", "Importe"}, rows)
	pt = newSalesTable(t, f, "Sheet1!A1:B4", "Sheet2!A1", &Options{Locale: "es"})
	require.NoError(t, pt.SetRowFields(Field(0)))
	_, err = pt.AddDataField(1, "", FunctionSum)
	require.NoError(t, err)
	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", map[string]string{"A2": "abril", "A3": "enero", "A4": "marzo"})
}

func TestRefreshDataFieldsMarker(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows())
	pt := newSalesTable(t, f, "Sheet1!A1:E7", "Sheet2!A1", nil)
	require.NoError(t, pt.SetRowFields(Field(1)))
	_, err := pt.AddDataField(3, "", FunctionSum)
	require.NoError(t, err)
	_, err = pt.AddDataField(4, "", FunctionCount)
	require.NoError(t, err)
	assert.Equal(t, []AxisFieldRef{DataFieldsMarker}, pt.ColumnFields)

	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", map[string]string{
		"A1": "", "B1": "Column Labels",
		"A2": "Row Labels", "B2": "Sum of Price", "C2": "Count of Units", "D2": "",
		"A3": "Chicago", "B3": "930.5", "C3": "3",
		"A5": "San Francisco", "B5": "415.75", "C5": "1",
		"A6": "Grand Total", "C6": "6",
	})
	// A lone marker on the column axis has no grand total column
	assert.Len(t, pt.ColumnHeaders, 2)
}

func TestRefreshPageFilter(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows())
	pt := newSalesTable(t, f, "Sheet1!A1:E7", "Sheet2!A4", nil)
	require.NoError(t, pt.SetRowFields(Field(0)))
	require.NoError(t, pt.SetPageFields(PageField{Field: 1, Item: 1}))
	_, err := pt.AddDataField(3, "", FunctionSum)
	require.NoError(t, err)
	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", map[string]string{
		"A2": "Region", "B2": "Nashville",
		"A4": "Row Labels", "B4": "Sum of Price",
		"A5": "January", "B5": "415.75",
		"A6": "March", "B6": "24.99",
		"A7": "Grand Total",
	})

	require.NoError(t, pt.SetPageFields(PageField{Field: 1, Item: -1}))
	require.NoError(t, pt.RefreshFromCache(f))
	assertCells(t, f, "Sheet2", map[string]string{
		"A2": "Region", "B2": "(All)",
		"A6": "February", "B6": "99",
		"A8": "Grand Total",
	})
}

func TestRefreshNumberFormat(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows())
	pt := newSalesTable(t, f, "Sheet1!A1:E7", "Sheet2!A1", nil)
	require.NoError(t, pt.SetRowFields(Field(0)))
	_, err := pt.AddDataField(3, "", FunctionSum)
	require.NoError(t, err)
	require.NoError(t, pt.SetDataFieldNumFmt(0, 0, "#,##0.00"))
	assert.ErrorIs(t, pt.SetDataFieldNumFmt(0, 0, "0;0;0;@;0"), ErrNumberFormat)
	assert.ErrorIs(t, pt.SetDataFieldNumFmt(1, 2, ""), ErrParameterInvalid)
	assert.ErrorIs(t, pt.SetDataFieldNumFmt(0, -1, ""), ErrParameterInvalid)

	require.NoError(t, pt.RefreshFromCache(f))
	style, err := f.GetCellStyle("Sheet2", "B2")
	assert.NoError(t, err)
	assert.NotZero(t, style)
	same, err := f.GetCellStyle("Sheet2", "B5")
	assert.NoError(t, err)
	assert.Equal(t, style, same)
	label, err := f.GetCellStyle("Sheet2", "A2")
	assert.NoError(t, err)
	assert.Zero(t, label)
}

func TestPivotTableMutators(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows())
	pt := newSalesTable(t, f, "Sheet1!A1:E7", "Sheet2!A1", nil)

	_, err := NewPivotTable(nil, "PivotTable2", "Sheet2!A1", nil)
	assert.ErrorIs(t, err, ErrParameterRequired)
	_, err = NewPivotTable(pt.Cache, "", "Sheet2!A1", nil)
	assert.ErrorIs(t, err, ErrParameterRequired)
	_, err = NewPivotTable(pt.Cache, "PivotTable2", "A1", nil)
	assert.ErrorIs(t, err, ErrRangeRef)
	_, err = NewPivotTable(pt.Cache, "PivotTable2", "Sheet2!A1", &Options{Locale: "not a tag!"})
	assert.ErrorIs(t, err, ErrParameterInvalid)

	assert.ErrorIs(t, pt.SetRowFields(Field(9)), ErrParameterInvalid)
	assert.ErrorIs(t, pt.SetRowFields(Field(0), Field(0)), ErrFieldOnMultipleAxes)
	assert.ErrorIs(t, pt.SetRowFields(DataFieldsMarker, DataFieldsMarker), ErrDataFieldsMarker)

	require.NoError(t, pt.SetRowFields(Field(0)))
	assert.True(t, pt.Cache.Fields[0].Indexed)
	err = pt.SetColumnFields(Field(0))
	assert.ErrorIs(t, err, ErrFieldOnMultipleAxes)
	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "Month", fieldErr.Name)
	assert.ErrorIs(t, pt.SetPageFields(PageField{Field: 0, Item: -1}), ErrFieldOnMultipleAxes)
	assert.ErrorIs(t, pt.SetPageFields(PageField{Field: 1, Item: -2}), ErrParameterInvalid)

	require.NoError(t, pt.SetColumnFields(DataFieldsMarker))
	assert.ErrorIs(t, pt.SetRowFields(Field(0), DataFieldsMarker), ErrDataFieldsMarker)

	_, err = pt.AddDataField(3, "", DataFieldFunction(50))
	assert.ErrorIs(t, err, ErrUnknownDataFieldFunction)
	_, err = pt.AddDataField(7, "", FunctionSum)
	assert.ErrorIs(t, err, ErrParameterInvalid)
	df, err := pt.AddDataField(3, "Revenue", FunctionNone)
	require.NoError(t, err)
	assert.Equal(t, "Revenue", df.Name)
	require.NoError(t, pt.SetDataFieldFunction(0, FunctionMax))
	assert.Equal(t, FunctionMax, df.Function)
	assert.ErrorIs(t, pt.SetDataFieldFunction(3, FunctionMax), ErrParameterInvalid)
	assert.ErrorIs(t, pt.SetDataFieldFunction(0, DataFieldFunction(50)), ErrUnknownDataFieldFunction)

	assert.ErrorIs(t, pt.SetFieldSubtotal(5, true, true), ErrParameterInvalid)
	require.NoError(t, pt.SetFieldSubtotal(0, true, true))
	assert.True(t, pt.Fields[0].SubtotalTop)

	pt.SetGrandTotals(false, true)
	assert.False(t, pt.RowGrandTotals)
	assert.True(t, pt.ColumnGrandTotals)

	assert.ErrorIs(t, pt.LoadFieldItems(0, []FieldItem{{Index: 7}}), ErrSharedItemIndex)
	require.NoError(t, pt.LoadFieldItems(0, []FieldItem{{Index: 2}, {Index: 0, Missing: true}}))
	assert.Len(t, pt.Fields[0].Items, 2)
}

func TestRefreshFaultKeepsState(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows())
	pt := newSalesTable(t, f, "Sheet1!A1:E7", "Sheet2!A1", nil)
	require.NoError(t, pt.SetRowFields(Field(0)))
	_, err := pt.AddDataField(4, "", FunctionSum)
	require.NoError(t, err)
	require.NoError(t, pt.RefreshFromCache(f))
	rows, items := pt.RowHeaders, pt.Fields[0].Items

	pt.Fields[0].Items = make([]FieldItem, 9)
	err = pt.RefreshFromCache(f)
	assert.ErrorIs(t, err, ErrFieldItemsExceedSharedItems)
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, "resync", refreshErr.Stage)
	assert.Equal(t, "PivotTable1", refreshErr.Table)
	assert.Equal(t, rows, pt.RowHeaders)
	pt.Fields[0].Items = items

	errEngine := errors.New("engine unavailable")
	pt.evaluator = func() (Evaluator, error) { return nil, errEngine }
	err = pt.RefreshFromCache(f)
	assert.ErrorIs(t, err, errEngine)
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, "grid", refreshErr.Stage)
	assertCells(t, f, "Sheet2", map[string]string{"A2": "January", "B5": "8"})

	assert.ErrorIs(t, pt.RefreshFromCache(nil), ErrParameterRequired)
}

type countingEvaluator struct {
	Evaluator
	closed *int
}

func (e countingEvaluator) Close() error {
	*e.closed++
	return e.Evaluator.Close()
}

func TestRefreshAcquiresOneEvaluator(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows())
	var acquired, closed int
	pt := newSalesTable(t, f, "Sheet1!A1:E7", "Sheet2!A1", &Options{
		Evaluator: func() (Evaluator, error) {
			acquired++
			eval, err := NewWorkbookEvaluator()
			return countingEvaluator{Evaluator: eval, closed: &closed}, err
		},
		JoinCacheSize: 2,
	})
	require.NoError(t, pt.SetRowFields(Field(0), Field(1)))
	require.NoError(t, pt.SetColumnFields(Field(2)))
	_, err := pt.AddDataField(4, "", FunctionSum)
	require.NoError(t, err)
	require.NoError(t, pt.RefreshFromCache(f))
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, closed)
	assert.LessOrEqual(t, pt.sets.Len(), 2)
}

func TestUpdateDataRefreshesTables(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows()[:3])
	pt := newSalesTable(t, f, "Sheet1!A1:E4", "Sheet2!A1", nil)
	require.NoError(t, pt.SetRowFields(Field(0)))
	require.NoError(t, pt.SetColumnFields(Field(2)))
	_, err := pt.AddDataField(3, "", FunctionAverage)
	require.NoError(t, err)
	second, err := NewPivotTable(pt.Cache, "PivotTable2", "Sheet2!F1", nil)
	require.NoError(t, err)
	require.NoError(t, second.SetRowFields(Field(1)))
	_, err = second.AddDataField(4, "", FunctionSum)
	require.NoError(t, err)
	assert.Len(t, pt.Cache.Tables(), 2)
	require.NoError(t, pt.RefreshFromCache(f))

	require.NoError(t, f.SetCellValue("Sheet1", "D2", 400))
	require.NoError(t, f.SetCellValue("Sheet1", "E4", 3))
	require.NoError(t, pt.Cache.UpdateData(f))
	assertCells(t, f, "Sheet2", map[string]string{
		"B3": "410.5", "C4": "410.5",
		"F1": "Row Labels", "G1": "Sum of Units",
		"F4": "San Francisco", "G4": "3",
	})

	// A renamed column leaves the tables, the others follow by name
	require.NoError(t, f.SetCellValue("Sheet1", "E1", "Quantity"))
	err = pt.Cache.UpdateData(f)
	assert.NoError(t, err)
	assert.Equal(t, "Quantity", pt.Fields[4].Name)
	assert.Equal(t, []AxisFieldRef{Field(0)}, pt.RowFields)
	assert.Len(t, pt.DataFields, 1)
	assert.Empty(t, second.DataFields)
	assert.Equal(t, []AxisFieldRef{Field(1)}, second.RowFields)
}

func TestReconcileFaultKeepsFields(t *testing.T) {
	f := newSourceBook(t, salesFields, salesRows()[:3])
	pt := newSalesTable(t, f, "Sheet1!A1:E4", "Sheet2!A1", nil)
	require.NoError(t, pt.SetRowFields(Field(1)))
	_, err := pt.AddDataField(4, "", FunctionSum)
	require.NoError(t, err)
	require.NoError(t, pt.RefreshFromCache(f))
	c := pt.Cache
	records := cloneRecords(c.Records.Records)
	regions := append([]CacheValue(nil), c.Fields[1].Items.Items()...)

	// A renamed column with an unreadable row changes nothing
	names := []string{"Month", "Region", "Item", "Price", "Quantity"}
	rows := [][]interface{}{
		{"April", "Boston", "Tent", 120.0, 4},
		{"April", "Denver", "Tent", 120.0, struct{}{}},
	}
	err = c.reconcile(names, rows)
	assert.ErrorIs(t, err, ErrUnknownValueType)
	assert.Equal(t, "Units", c.Fields[4].Name)
	assert.Equal(t, records, c.Records.Records)
	assert.Equal(t, 3, c.Records.Count)
	assert.Equal(t, regions, c.Fields[1].Items.Items())
	assert.Equal(t, "Units", pt.Fields[4].Name)
	require.Len(t, pt.DataFields, 1)
	assert.Equal(t, 4, pt.DataFields[0].Field)
	assert.Equal(t, []AxisFieldRef{Field(1)}, pt.RowFields)

	// The same rows without the fault commit the new fields
	rows[1][4] = 2
	require.NoError(t, c.reconcile(names, rows))
	assert.Equal(t, "Quantity", c.Fields[4].Name)
	assert.Equal(t, 2, c.Records.Count)
	assert.Empty(t, pt.DataFields)
	assert.Equal(t, []AxisFieldRef{Field(1)}, pt.RowFields)
	v, err := c.Records.Resolve(c.Records.Records[0], 1)
	require.NoError(t, err)
	assert.Equal(t, "Boston", v.Str)
}
