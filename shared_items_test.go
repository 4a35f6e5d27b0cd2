package pivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocale(t *testing.T, tag string) *Locale {
	t.Helper()
	locale, err := NewLocale(tag)
	require.NoError(t, err)
	return locale
}

func TestSharedItemsAdd(t *testing.T) {
	items, err := NewSharedItems(newTestLocale(t, "en-US"))
	require.NoError(t, err)

	for _, c := range []struct {
		value interface{}
		index int
	}{
		{"Chicago", 0},
		{415.75, 1},
		{"CHICAGO", 0},
		{"chicago", 0},
		{nil, 2},
		{"", 2},
		{true, 3},
		{415.75, 1},
		{float32(2), 4},
		{2, 4},
		{"Nashville", 5},
	} {
		idx, err := items.Add(c.value)
		assert.NoError(t, err)
		assert.Equal(t, c.index, idx, c.value)
	}
	assert.Equal(t, 6, items.Count())

	// The first spelling is kept
	v, err := items.Get(0)
	assert.NoError(t, err)
	assert.Equal(t, "Chicago", v.Str)

	_, err = items.Get(6)
	assert.ErrorIs(t, err, ErrSharedItemIndex)
	_, err = items.Add(struct{}{})
	assert.ErrorIs(t, err, ErrUnknownValueType)
	assert.Equal(t, 6, items.Count())

	_, err = NewSharedItems(nil)
	assert.ErrorIs(t, err, ErrParameterRequired)
}

func TestSharedItemsIndexStability(t *testing.T) {
	items, err := NewSharedItems(newTestLocale(t, ""))
	require.NoError(t, err)
	values := []interface{}{"Car Rack", "Sleeping Bag", 99, "Headlamp", false, ErrorValue("#N/A"), "car rack"}
	issued := make(map[int]CacheValue)
	for round := 0; round < 3; round++ {
		for _, value := range values {
			idx, err := items.Add(value)
			require.NoError(t, err)
			v, err := items.Get(idx)
			require.NoError(t, err)
			if prev, ok := issued[idx]; ok {
				assert.Equal(t, prev, v)
				continue
			}
			issued[idx] = v
		}
		// Readding equivalent values never grows the collection
		assert.Equal(t, 6, items.Count())
	}
}

func TestSharedItemsReset(t *testing.T) {
	items, err := NewSharedItems(newTestLocale(t, ""))
	require.NoError(t, err)
	_, _ = items.Add("January")
	_, _ = items.Add("February")
	items.reset(items.Items()[:1])
	assert.Equal(t, 1, items.Count())
	_, ok := items.Find(CacheValue{Type: TypeText, Str: "February"})
	assert.False(t, ok)
	idx, ok := items.Find(CacheValue{Type: TypeText, Str: "january"})
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}
