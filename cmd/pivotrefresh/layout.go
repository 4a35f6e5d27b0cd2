// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"

	pivot "github.com/OmniMCP-AI/excelize-pivot"
	"gopkg.in/yaml.v3"
)

// Layout is the YAML description of the pivot tables of a workbook.
type Layout struct {
	Locale      string        `yaml:"locale"`
	MonthFields []string      `yaml:"monthFields"`
	Tables      []TableLayout `yaml:"tables"`
}

// TableLayout places one pivot table. Fields are referenced by name, the
// data fields marker by "Values".
type TableLayout struct {
	Name        string            `yaml:"name"`
	Source      string            `yaml:"source"`
	Location    string            `yaml:"location"`
	Rows        []string          `yaml:"rows"`
	Columns     []string          `yaml:"columns"`
	Pages       []PageLayout      `yaml:"pages"`
	Data        []DataLayout      `yaml:"data"`
	GrandTotals *GrandTotalLayout `yaml:"grandTotals"`
	SubtotalTop []string          `yaml:"subtotalTop"`
	NoSubtotal  []string          `yaml:"noSubtotal"`
}

// PageLayout is a report filter, an empty item selects all.
type PageLayout struct {
	Field string `yaml:"field"`
	Item  string `yaml:"item"`
}

// DataLayout is an aggregated data field.
type DataLayout struct {
	Field    string `yaml:"field"`
	Name     string `yaml:"name"`
	Function string `yaml:"function"`
	NumFmtID int    `yaml:"numFmtId"`
	NumFmt   string `yaml:"numFmt"`
}

// GrandTotalLayout switches the grand totals of each axis.
type GrandTotalLayout struct {
	Rows    bool `yaml:"rows"`
	Columns bool `yaml:"columns"`
}

// markerNames are the spellings accepted for the data fields marker.
var markerNames = []string{"Values", "Σ", "Σ Values", "Data"}

// loadLayout reads and checks a layout file.
func loadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseLayout(data)
}

func parseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if len(l.Tables) == 0 {
		return nil, fmt.Errorf("layout has no tables")
	}
	names := make(map[string]bool)
	for i, t := range l.Tables {
		if t.Name == "" {
			l.Tables[i].Name = fmt.Sprintf("PivotTable%d", i+1)
		}
		if names[l.Tables[i].Name] {
			return nil, fmt.Errorf("duplicate table name %q", l.Tables[i].Name)
		}
		names[l.Tables[i].Name] = true
		if t.Source == "" || t.Location == "" {
			return nil, fmt.Errorf("table %q needs a source and a location", l.Tables[i].Name)
		}
	}
	return &l, nil
}

// axisRefs resolves field names against a cache.
func axisRefs(cache *pivot.CacheDefinition, names []string) ([]pivot.AxisFieldRef, error) {
	refs := make([]pivot.AxisFieldRef, 0, len(names))
	for _, name := range names {
		if isMarker(name) {
			refs = append(refs, pivot.DataFieldsMarker)
			continue
		}
		i, err := fieldIndex(cache, name)
		if err != nil {
			return nil, err
		}
		refs = append(refs, pivot.Field(i))
	}
	return refs, nil
}

func isMarker(name string) bool {
	for _, m := range markerNames {
		if strings.EqualFold(strings.TrimSpace(name), m) {
			return true
		}
	}
	return false
}

func fieldIndex(cache *pivot.CacheDefinition, name string) (int, error) {
	i, ok := cache.FieldIndex(name)
	if !ok {
		return -1, fmt.Errorf("no field %q in %s", name, cache.Source)
	}
	return i, nil
}

// pageField resolves a report filter, matching the item by its text.
func pageField(cache *pivot.CacheDefinition, p PageLayout) (pivot.PageField, error) {
	i, err := fieldIndex(cache, p.Field)
	if err != nil {
		return pivot.PageField{}, err
	}
	if p.Item == "" {
		return pivot.PageField{Field: i, Item: -1}, nil
	}
	for idx, v := range cache.Fields[i].Items.Items() {
		if cache.Locale().Equivalent(v.Text(), p.Item) {
			return pivot.PageField{Field: i, Item: idx}, nil
		}
	}
	return pivot.PageField{}, fmt.Errorf("no item %q in field %q", p.Item, p.Field)
}

// apply configures a pivot table from its layout.
func (tl TableLayout) apply(pt *pivot.PivotTable) error {
	cache := pt.Cache
	rows, err := axisRefs(cache, tl.Rows)
	if err != nil {
		return err
	}
	cols, err := axisRefs(cache, tl.Columns)
	if err != nil {
		return err
	}
	if err := pt.SetRowFields(rows...); err != nil {
		return err
	}
	if err := pt.SetColumnFields(cols...); err != nil {
		return err
	}
	pages := make([]pivot.PageField, 0, len(tl.Pages))
	for _, p := range tl.Pages {
		page, err := pageField(cache, p)
		if err != nil {
			return err
		}
		pages = append(pages, page)
	}
	if err := pt.SetPageFields(pages...); err != nil {
		return err
	}
	for _, d := range tl.Data {
		i, err := fieldIndex(cache, d.Field)
		if err != nil {
			return err
		}
		fn, err := pivot.ParseDataFieldFunction(d.Function)
		if err != nil {
			return err
		}
		if _, err := pt.AddDataField(i, d.Name, fn); err != nil {
			return err
		}
		if d.NumFmtID != 0 || d.NumFmt != "" {
			if err := pt.SetDataFieldNumFmt(len(pt.DataFields)-1, d.NumFmtID, d.NumFmt); err != nil {
				return err
			}
		}
	}
	for _, name := range tl.SubtotalTop {
		i, err := fieldIndex(cache, name)
		if err != nil {
			return err
		}
		if err := pt.SetFieldSubtotal(i, true, true); err != nil {
			return err
		}
	}
	for _, name := range tl.NoSubtotal {
		i, err := fieldIndex(cache, name)
		if err != nil {
			return err
		}
		if err := pt.SetFieldSubtotal(i, false, false); err != nil {
			return err
		}
	}
	if tl.GrandTotals != nil {
		pt.SetGrandTotals(tl.GrandTotals.Rows, tl.GrandTotals.Columns)
	}
	return nil
}
