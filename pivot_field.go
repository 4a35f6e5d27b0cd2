// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// ItemType is the type of a pivot field item.
type ItemType byte

// Pivot field item types.
const (
	ItemData ItemType = iota
	ItemDefault
)

// FieldItem is one entry of a pivot field's item list. Index is the shared
// item index of data items and -1 for the default subtotal marker. Missing is
// the "item no longer in source" annotation hosts attach to persisted items.
type FieldItem struct {
	Index   int
	Type    ItemType
	Missing bool
}

// PivotField is the display configuration of one cache field within a pivot
// table. Pivot field i always corresponds to cache field i.
type PivotField struct {
	Name            string
	Items           []FieldItem
	DefaultSubtotal bool
	SubtotalTop     bool
}

// needsResync reports whether the field's items are rebuilt on refresh.
func (p *PivotField) needsResync(onAxis bool) bool {
	return onAxis || len(p.Items) > 0
}

// resyncItems rebuilds the item list from the cache field's shared items in
// content order, or chronologically when month is set. The receiver is left
// untouched.
func (p *PivotField) resyncItems(field *CacheField, locale *Locale, month bool) ([]FieldItem, error) {
	count := field.Items.Count()
	if len(p.Items) > count+1 {
		return nil, fmt.Errorf("%w: %d items, %d shared items", ErrFieldItemsExceedSharedItems, len(p.Items), count)
	}
	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	shared := field.Items.Items()
	byContent := func(a, b int) int {
		return compareContent(shared[a], shared[b], locale)
	}
	if month {
		slices.SortStableFunc(order, func(a, b int) int {
			ma, oka := monthOf(shared[a], locale)
			mb, okb := monthOf(shared[b], locale)
			switch {
			case oka && okb:
				if c := cmp.Compare(ma, mb); c != 0 {
					return c
				}
			case oka:
				return -1
			case okb:
				return 1
			}
			return byContent(a, b)
		})
	} else {
		slices.SortStableFunc(order, byContent)
	}
	items := make([]FieldItem, 0, count+1)
	for _, idx := range order {
		items = append(items, FieldItem{Index: idx, Type: ItemData})
	}
	if p.DefaultSubtotal {
		items = append(items, FieldItem{Index: -1, Type: ItemDefault})
	}
	return items, nil
}

// stripMissing clears stale missing annotations.
func (p *PivotField) stripMissing() {
	for i := range p.Items {
		p.Items[i].Missing = false
	}
}

// validateItems checks persisted items against the cache field.
func validateItems(items []FieldItem, field *CacheField) error {
	count := field.Items.Count()
	if len(items) > count+1 {
		return fmt.Errorf("%w: %d items, %d shared items", ErrFieldItemsExceedSharedItems, len(items), count)
	}
	markers := 0
	for _, item := range items {
		switch item.Type {
		case ItemData:
			if item.Index < 0 || item.Index >= count {
				return fmt.Errorf("%w: item %d of %d", ErrSharedItemIndex, item.Index, count)
			}
		case ItemDefault:
			if markers++; markers > 1 {
				return fmt.Errorf("%w: more than one default subtotal item", ErrParameterInvalid)
			}
		default:
			return fmt.Errorf("%w: item type %d", ErrParameterInvalid, item.Type)
		}
	}
	return nil
}

// monthOf resolves a text value to its calendar month.
func monthOf(v CacheValue, locale *Locale) (int, bool) {
	if v.Type != TypeText {
		return 0, false
	}
	return locale.MonthIndex(v.Str)
}

// compareContent orders cache values by kind, then by value within a kind.
func compareContent(a, b CacheValue, locale *Locale) int {
	if c := cmp.Compare(a.sortRank(), b.sortRank()); c != 0 {
		return c
	}
	switch a.Type {
	case TypeNumeric, TypeDate:
		return cmp.Compare(a.serial(), b.serial())
	case TypeText:
		return locale.Compare(a.Str, b.Str)
	case TypeBoolean:
		switch {
		case a.Bool == b.Bool:
			return 0
		case b.Bool:
			return -1
		}
		return 1
	case TypeError:
		return strings.Compare(a.Str, b.Str)
	}
	return 0
}

// isMonthField reports whether name is one of the configured month fields.
func isMonthField(name string, names []string, locale *Locale) bool {
	for _, n := range names {
		if locale.Equivalent(name, n) {
			return true
		}
	}
	return false
}
