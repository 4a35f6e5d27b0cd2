package pivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRangeRef(t *testing.T) {
	for _, c := range []struct {
		ref      string
		expected RangeRef
		str      string
	}{
		{"Sheet1!A1:E7", RangeRef{Sheet: "Sheet1", StartCol: 1, StartRow: 1, EndCol: 5, EndRow: 7}, "Sheet1!A1:E7"},
		{"'Q1 Sales'!$B$2", RangeRef{Sheet: "Q1 Sales", StartCol: 2, StartRow: 2, EndCol: 2, EndRow: 2}, "'Q1 Sales'!B2"},
		{"=Data!C3:A1", RangeRef{Sheet: "Data", StartCol: 1, StartRow: 1, EndCol: 3, EndRow: 3}, "Data!A1:C3"},
		{"A1:C3", RangeRef{StartCol: 1, StartRow: 1, EndCol: 3, EndRow: 3}, "A1:C3"},
	} {
		r, err := ParseRangeRef(c.ref)
		assert.NoError(t, err, c.ref)
		assert.Equal(t, c.expected, r, c.ref)
		assert.Equal(t, c.str, r.String(), c.ref)
	}

	for _, ref := range []string{"", "1+2", "SUM(A1:B2)", "Sheet1!A1:B2:C3", "Sheet1!ZZZZ1"} {
		_, err := ParseRangeRef(ref)
		assert.ErrorIs(t, err, ErrRangeRef, ref)
	}
}

func TestRangeRef(t *testing.T) {
	r := RangeRef{Sheet: "It's", StartCol: 2, StartRow: 3, EndCol: 4, EndRow: 10}
	assert.Equal(t, 8, r.Rows())
	assert.Equal(t, 3, r.Cols())
	assert.Equal(t, "B3:D10", r.Area())
	assert.Equal(t, "'It''s'!B3:D10", r.String())
	assert.True(t, r.Equal(RangeRef{Sheet: "IT'S", StartCol: 2, StartRow: 3, EndCol: 4, EndRow: 10}))
	assert.False(t, r.Equal(RangeRef{Sheet: "It's", StartCol: 2, StartRow: 3, EndCol: 4, EndRow: 9}))
	assert.Equal(t, "It's", unquoteSheet(quoteSheet("It's")))
}
