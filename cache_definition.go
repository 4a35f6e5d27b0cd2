// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"
)

// CacheDefinition is a pivot cache: the fields, shared items and records of
// one source range. Several pivot tables may share a cache definition.
type CacheDefinition struct {
	ID          string
	Source      RangeRef
	Fields      []*CacheField
	Records     *CacheRecords
	RefreshedAt time.Time
	locale      *Locale
	tables      []*PivotTable
	mu          sync.Mutex
}

// cacheSnapshot is the restorable state of a cache definition.
type cacheSnapshot struct {
	Records []CacheRecord
	Count   int
	Items   [][]CacheValue
}

// NewCacheDefinition returns an empty cache over the named fields of source.
func NewCacheDefinition(source RangeRef, names []string, locale *Locale) (*CacheDefinition, error) {
	if locale == nil {
		return nil, fmt.Errorf("%w: locale", ErrParameterRequired)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: cache field names", ErrParameterRequired)
	}
	c := &CacheDefinition{ID: uuid.New().String(), Source: source, locale: locale}
	fields, err := c.newFields(names, nil)
	if err != nil {
		return nil, err
	}
	if c.Records, err = NewCacheRecords(fields); err != nil {
		return nil, err
	}
	c.Fields = fields
	return c, nil
}

// NewCacheDefinitionFromSheet builds a cache from a source range whose first
// row holds the field names.
func NewCacheDefinitionFromSheet(ws Worksheet, source RangeRef, locale *Locale) (*CacheDefinition, error) {
	names, rows, err := ReadSourceRange(ws, source)
	if err != nil {
		return nil, err
	}
	c, err := NewCacheDefinition(source, names, locale)
	if err != nil {
		return nil, err
	}
	if err := c.UpdateRecords(rows); err != nil {
		return nil, err
	}
	return c, nil
}

// newFields creates cache fields for names, keeping the shared items and
// flags of same-named fields of prev.
func (c *CacheDefinition) newFields(names []string, prev []*CacheField) ([]*CacheField, error) {
	fields := make([]*CacheField, len(names))
	for i, name := range names {
		for _, p := range prev {
			if p != nil && c.locale.Equivalent(p.Name, name) {
				fields[i] = &CacheField{Name: name, NumFmtID: p.NumFmtID, Items: p.Items, Indexed: p.Indexed}
				break
			}
		}
		if fields[i] != nil {
			continue
		}
		items, err := NewSharedItems(c.locale)
		if err != nil {
			return nil, err
		}
		fields[i] = &CacheField{Name: name, Items: items}
	}
	return fields, nil
}

// FieldIndex returns the index of the field with the given name.
func (c *CacheDefinition) FieldIndex(name string) (int, bool) {
	for i, field := range c.Fields {
		if c.locale.Equivalent(field.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// Locale returns the locale comparing the cache's text.
func (c *CacheDefinition) Locale() *Locale {
	return c.locale
}

// UpdateRecords reconciles the records with rows. A fault restores the
// records and shared items held before the call.
func (c *CacheDefinition) UpdateRecords(rows [][]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateRecords(rows)
}

func (c *CacheDefinition) updateRecords(rows [][]interface{}) error {
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	if err := c.Records.UpdateRecords(rows); err != nil {
		c.restore(snap)
		return err
	}
	c.RefreshedAt = time.Now()
	return nil
}

func (c *CacheDefinition) snapshot() (*cacheSnapshot, error) {
	snap := &cacheSnapshot{Count: c.Records.Count, Items: make([][]CacheValue, len(c.Fields))}
	if err := deepcopy.Copy(&snap.Records, c.Records.Records); err != nil {
		return nil, err
	}
	for i, field := range c.Fields {
		if err := deepcopy.Copy(&snap.Items[i], field.Items.Items()); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (c *CacheDefinition) restore(snap *cacheSnapshot) {
	c.Records.Records = snap.Records
	c.Records.Count = snap.Count
	c.Records.bitmaps = nil
	for i, field := range c.Fields {
		field.Items.reset(snap.Items[i])
	}
}

// UpdateData re-reads the source range from ws, reconciles the cache and
// refreshes every attached pivot table. A changed header row re-derives the
// fields: same-named fields keep their shared items, the rest start empty.
func (c *CacheDefinition) UpdateData(ws Worksheet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	names, rows, err := ReadSourceRange(ws, c.Source)
	if err != nil {
		return err
	}
	if err := c.reconcile(names, rows); err != nil {
		return err
	}
	log.Printf("🚀 [Pivot Cache] %s: %d records from %s, refreshing %d tables", c.ID, c.Records.Count, c.Source, len(c.tables))
	var errs []error
	for _, t := range c.tables {
		if err := t.RefreshFromCache(ws); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// reconcile brings the fields and records in line with a re-read source.
// New fields are committed and the attached tables remapped only when the
// records reconcile; a fault leaves fields, records, shared items and
// tables as they were.
func (c *CacheDefinition) reconcile(names []string, rows [][]interface{}) error {
	if c.sameFields(names) {
		return c.updateRecords(rows)
	}
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	fields, err := c.newFields(names, c.Fields)
	if err != nil {
		return err
	}
	records, err := NewCacheRecords(fields)
	if err != nil {
		return err
	}
	if err := records.UpdateRecords(rows); err != nil {
		c.restore(snap)
		return err
	}
	prev := make([]string, len(c.Fields))
	for i, field := range c.Fields {
		prev[i] = field.Name
	}
	log.Printf("🔄 [Pivot Cache] %s: fields changed from [%s] to [%s]", c.ID, strings.Join(prev, ", "), strings.Join(names, ", "))
	c.Fields, c.Records = fields, records
	c.RefreshedAt = time.Now()
	for _, t := range c.tables {
		t.remapFields(prev)
	}
	return nil
}

func (c *CacheDefinition) sameFields(names []string) bool {
	if len(names) != len(c.Fields) {
		return false
	}
	for i, name := range names {
		if c.Fields[i].Name != name {
			return false
		}
	}
	return true
}

// attach registers a pivot table reading the cache.
func (c *CacheDefinition) attach(t *PivotTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = append(c.tables, t)
}

// Tables returns the pivot tables reading the cache.
func (c *CacheDefinition) Tables() []*PivotTable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*PivotTable(nil), c.tables...)
}
