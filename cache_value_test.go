package pivot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for _, c := range []struct {
		name  string
		value interface{}
		want  CacheValue
	}{
		{"nil", nil, Missing},
		{"empty string", "", Missing},
		{"text", "Car Rack", CacheValue{Type: TypeText, Str: "Car Rack"}},
		{"bytes", []byte("Chicago"), CacheValue{Type: TypeText, Str: "Chicago"}},
		{"bool", true, CacheValue{Type: TypeBoolean, Bool: true}},
		{"int", 2, CacheValue{Type: TypeNumeric, Num: 2}},
		{"uint8", uint8(7), CacheValue{Type: TypeNumeric, Num: 7}},
		{"float", 415.75, CacheValue{Type: TypeNumeric, Num: 415.75}},
		{"date", date, CacheValue{Type: TypeDate, Str: "2024-03-15T00:00:00"}},
		{"date pointer", &date, CacheValue{Type: TypeDate, Str: "2024-03-15T00:00:00"}},
		{"error", ErrorValue("#N/A"), CacheValue{Type: TypeError, Str: "#N/A"}},
	} {
		t.Run(c.name, func(t *testing.T) {
			got, err := Classify(c.value)
			assert.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	_, err := Classify(struct{}{})
	assert.ErrorIs(t, err, ErrUnknownValueType)
	_, err = Classify(NewSharedRef(1))
	assert.ErrorIs(t, err, ErrUnknownValueType)
}

func TestCacheValueAttr(t *testing.T) {
	for _, v := range []CacheValue{
		{Type: TypeBoolean, Bool: true},
		{Type: TypeNumeric, Num: 415.75},
		{Type: TypeText, Str: "Nashville"},
		{Type: TypeError, Str: "#DIV/0!"},
		{Type: TypeDate, Str: "2024-01-31T00:00:00"},
		NewSharedRef(3),
		Missing,
	} {
		got, err := parseCacheValue(v.Type, v.attr())
		assert.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := parseCacheValue(TypeNumeric, "abc")
	assert.ErrorIs(t, err, ErrParameterInvalid)
	_, err = parseCacheValue(TypeSharedRef, "-1")
	assert.ErrorIs(t, err, ErrSharedItemIndex)
	_, err = parseCacheValue(TypeDate, "31/01/2024")
	assert.ErrorIs(t, err, ErrParameterInvalid)
}

func TestCacheValueSortRank(t *testing.T) {
	ranks := []CacheValue{
		{Type: TypeNumeric, Num: 1},
		{Type: TypeText, Str: "a"},
		{Type: TypeBoolean},
		{Type: TypeError, Str: "#N/A"},
		Missing,
	}
	for i := 1; i < len(ranks); i++ {
		assert.Less(t, ranks[i-1].sortRank(), ranks[i].sortRank())
	}
	d := CacheValue{Type: TypeDate, Str: "1900-01-01T00:00:00"}
	assert.Equal(t, float64(2), d.serial())
	assert.Equal(t, "TRUE", CacheValue{Type: TypeBoolean, Bool: true}.Text())
	assert.Equal(t, "415.75", CacheValue{Type: TypeNumeric, Num: 415.75}.Text())
}
