package pivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataFieldFunction(t *testing.T) {
	for _, c := range []struct {
		fn                     DataFieldFunction
		name, caption, formula string
	}{
		{FunctionNone, "sum", "Sum", "SUM"},
		{FunctionSum, "sum", "Sum", "SUM"},
		{FunctionAverage, "average", "Average", "AVERAGE"},
		{FunctionCount, "count", "Count", "COUNTA"},
		{FunctionCountNums, "countNums", "Count", "COUNT"},
		{FunctionStdDev, "stdDev", "StdDev", "STDEV.S"},
		{FunctionVarp, "varp", "Varp", "VAR.P"},
	} {
		assert.Equal(t, c.name, c.fn.String())
		assert.Equal(t, c.caption, c.fn.Caption())
		formula, err := c.fn.WorksheetFunction()
		assert.NoError(t, err)
		assert.Equal(t, c.formula, formula)
	}

	_, err := DataFieldFunction(99).WorksheetFunction()
	assert.ErrorIs(t, err, ErrUnknownDataFieldFunction)

	fn, err := ParseDataFieldFunction("STDDEVP")
	assert.NoError(t, err)
	assert.Equal(t, FunctionStdDevp, fn)
	fn, err = ParseDataFieldFunction("")
	assert.NoError(t, err)
	assert.Equal(t, FunctionSum, fn)
	_, err = ParseDataFieldFunction("median")
	assert.ErrorIs(t, err, ErrUnknownDataFieldFunction)
}

type recordingEvaluator struct {
	calls []string
}

func (e *recordingEvaluator) Evaluate(function string, values []interface{}) (interface{}, error) {
	e.calls = append(e.calls, function)
	return float64(len(values)), nil
}

func (e *recordingEvaluator) Close() error { return nil }

func TestAggregator(t *testing.T) {
	_, err := NewAggregator(nil)
	assert.ErrorIs(t, err, ErrParameterRequired)

	eval := &recordingEvaluator{}
	agg, err := NewAggregator(eval)
	require.NoError(t, err)

	v, err := agg.Aggregate(FunctionAverage, nil)
	assert.NoError(t, err)
	assert.Nil(t, v)
	assert.Empty(t, eval.calls)

	_, err = agg.Aggregate(DataFieldFunction(42), nil)
	assert.ErrorIs(t, err, ErrUnknownDataFieldFunction)

	v, err = agg.Aggregate(FunctionNone, []interface{}{1, 2})
	assert.NoError(t, err)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, []string{"SUM"}, eval.calls)
}

func TestWorkbookEvaluator(t *testing.T) {
	eval, err := NewWorkbookEvaluator()
	require.NoError(t, err)
	agg, err := NewAggregator(eval)
	require.NoError(t, err)

	prices := []interface{}{415.75, 415.75, 415.75}
	for _, c := range []struct {
		fn       DataFieldFunction
		values   []interface{}
		expected interface{}
	}{
		{FunctionSum, prices, 1247.25},
		{FunctionAverage, prices, 415.75},
		{FunctionMax, []interface{}{24.99, 99.0, 415.75}, 415.75},
		{FunctionMin, []interface{}{24.99, 99.0, 415.75}, 24.99},
		{FunctionStdDev, []interface{}{2.0, 4.0}, 1.4142135623731},
		{FunctionCount, []interface{}{"Car Rack", 2.0, true}, 3.0},
		{FunctionCountNums, []interface{}{"Car Rack", 2.0, 1.0}, 2.0},
		{FunctionStdDev, []interface{}{415.75}, ErrorValue("#DIV/0!")},
		{FunctionSum, []interface{}{1.0, ErrorValue("#N/A"), 3.0}, ErrorValue("#N/A")},
		{FunctionAverage, []interface{}{1.0, ErrorValue("#N/A"), 3.0}, ErrorValue("#N/A")},
		{FunctionMax, []interface{}{ErrorValue("#REF!"), 2.0, ErrorValue("#N/A")}, ErrorValue("#REF!")},
		{FunctionCount, []interface{}{1.0, ErrorValue("#N/A")}, 2.0},
		{FunctionCountNums, []interface{}{1.0, ErrorValue("#N/A"), 3.0}, 2.0},
	} {
		v, err := agg.Aggregate(c.fn, c.values)
		assert.NoError(t, err, c.fn.String())
		if f, ok := c.expected.(float64); ok {
			assert.InDelta(t, f, v, 1e-6, c.fn.String())
			continue
		}
		assert.Equal(t, c.expected, v, c.fn.String())
	}

	assert.NoError(t, eval.Close())
	assert.NoError(t, eval.Close())
	_, err = eval.Evaluate("SUM", prices)
	assert.ErrorIs(t, err, ErrEvaluatorClosed)
}
