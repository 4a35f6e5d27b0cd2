// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import "fmt"

// SharedItems is the deduplicated, order-stable dictionary of the distinct
// values seen in one cache field. Indices returned by Add are never
// reassigned: the collection only grows.
type SharedItems struct {
	items  []CacheValue
	locale *Locale
	text   map[string]int
	other  map[string]int
}

// NewSharedItems returns an empty collection comparing text with locale.
func NewSharedItems(locale *Locale) (*SharedItems, error) {
	if locale == nil {
		return nil, fmt.Errorf("%w: locale", ErrParameterRequired)
	}
	return &SharedItems{
		locale: locale,
		text:   make(map[string]int),
		other:  make(map[string]int),
	}, nil
}

// Add classifies value and returns the index of the equivalent entry,
// appending one when no entry is equivalent.
func (s *SharedItems) Add(value interface{}) (int, error) {
	v, err := Classify(value)
	if err != nil {
		return -1, err
	}
	return s.addValue(v), nil
}

// addValue appends a classified, non-reference value unless present.
func (s *SharedItems) addValue(v CacheValue) int {
	if i, ok := s.Find(v); ok {
		return i
	}
	s.items = append(s.items, v)
	s.index(len(s.items)-1, v)
	return len(s.items) - 1
}

// appendValue appends without deduplication, used when loading persisted
// items whose indices must be kept as stored.
func (s *SharedItems) appendValue(v CacheValue) {
	s.items = append(s.items, v)
	if _, ok := s.Find(v); !ok {
		s.index(len(s.items)-1, v)
	}
}

func (s *SharedItems) index(i int, v CacheValue) {
	if v.Type == TypeText {
		s.text[s.locale.key(v.Str)] = i
		return
	}
	s.other[v.contentKey()] = i
}

// Find returns the index of the entry equivalent to v.
func (s *SharedItems) Find(v CacheValue) (int, bool) {
	var (
		i  int
		ok bool
	)
	if v.Type == TypeText {
		i, ok = s.text[s.locale.key(v.Str)]
	} else {
		i, ok = s.other[v.contentKey()]
	}
	return i, ok
}

// Get resolves a shared item index.
func (s *SharedItems) Get(index int) (CacheValue, error) {
	if index < 0 || index >= len(s.items) {
		return CacheValue{}, fmt.Errorf("%w: %d of %d", ErrSharedItemIndex, index, len(s.items))
	}
	return s.items[index], nil
}

// Count returns the number of shared items.
func (s *SharedItems) Count() int {
	return len(s.items)
}

// Items returns the shared items in index order.
func (s *SharedItems) Items() []CacheValue {
	return s.items
}

// reset replaces the content, rebuilding the lookup tables.
func (s *SharedItems) reset(items []CacheValue) {
	s.items = make([]CacheValue, 0, len(items))
	s.text = make(map[string]int, len(items))
	s.other = make(map[string]int, len(items))
	for _, v := range items {
		s.appendValue(v)
	}
}
