// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	pivot "github.com/OmniMCP-AI/excelize-pivot"
	"github.com/OmniMCP-AI/excelize-pivot/duckdb"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html/charset"
)

// session is one locked run over a workbook.
type session struct {
	cfg      settings
	path     string
	layout   *Layout
	lock     *flock.Flock
	file     *excelize.File
	locale   *pivot.Locale
	engine   *duckdb.Engine
	caches   map[string]*pivot.CacheDefinition
	tables   []*pivot.PivotTable
	evaluate pivot.EvaluatorFactory
}

// openSession locks the workbook and opens it.
func openSession(cfg settings, path string) (*session, error) {
	layout, err := loadLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, path: path, layout: layout, caches: make(map[string]*pivot.CacheDefinition)}
	if s.cfg.Locale == "" {
		s.cfg.Locale = layout.Locale
	}
	if s.locale, err = pivot.NewLocale(s.cfg.Locale); err != nil {
		return nil, err
	}

	s.lock = flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil || !locked {
		return nil, fmt.Errorf("lock %s: %w", path, errors.Join(err, errLockTimeout))
	}
	log.WithField("lock", s.lock.Path()).Debug("Acquired workbook lock")

	if s.file, err = excelize.OpenFile(path); err != nil {
		s.Close()
		return nil, err
	}
	switch cfg.Engine {
	case "", "excelize":
		s.evaluate = pivot.NewWorkbookEvaluator
	case "duckdb":
		if s.engine, err = duckdb.NewEngineWithConfig(&duckdb.Config{MemoryLimit: cfg.MemoryLimit}); err != nil {
			s.Close()
			return nil, err
		}
		s.evaluate = s.engine.NewEvaluator
	default:
		s.Close()
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
	return s, nil
}

var errLockTimeout = errors.New("workbook is locked by another process")

// Close releases the workbook, the engine and the lock.
func (s *session) Close() error {
	var errs []error
	if s.file != nil {
		errs = append(errs, s.file.Close())
	}
	if s.engine != nil {
		errs = append(errs, s.engine.Close())
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
	}
	return errors.Join(errs...)
}

// importCSV replaces the cells of the CSV sheet with the rows of the CSV
// file, decoding it from the configured charset.
func (s *session) importCSV() error {
	if s.cfg.CSV == "" {
		return nil
	}
	f, err := os.Open(s.cfg.CSV)
	if err != nil {
		return err
	}
	defer f.Close()
	var r io.Reader = f
	if s.cfg.Charset != "" {
		if r, err = charset.NewReaderLabel(s.cfg.Charset, f); err != nil {
			return fmt.Errorf("charset %q: %w", s.cfg.Charset, err)
		}
	}
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", s.cfg.CSV, err)
	}
	if idx, _ := s.file.GetSheetIndex(s.cfg.CSVSheet); idx < 0 {
		if _, err := s.file.NewSheet(s.cfg.CSVSheet); err != nil {
			return err
		}
	}
	for i, record := range records {
		row := make([]interface{}, len(record))
		for j, field := range record {
			row[j] = csvValue(field, i == 0)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := s.file.SetSheetRow(s.cfg.CSVSheet, cell, &row); err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{"csv": s.cfg.CSV, "sheet": s.cfg.CSVSheet, "rows": len(records)}).Info("Imported CSV")
	return nil
}

// csvValue types a CSV field: numbers and booleans outside the header row,
// text otherwise.
func csvValue(field string, header bool) interface{} {
	if header || field == "" {
		return field
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(field); err == nil && len(field) > 1 {
		return b
	}
	return field
}

// cacheFiles returns the persisted cache parts of a source range.
func (s *session) cacheFiles(source pivot.RangeRef) (string, string) {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		abs = s.path
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs+"#"+source.String())).String()
	return filepath.Join(s.cfg.CacheDir, id+".definition.xml"), filepath.Join(s.cfg.CacheDir, id+".records.xml")
}

// cache returns the cache of a source range, shared by the tables reading
// it. A persisted cache of the same range is reconciled instead of rebuilt.
func (s *session) cache(ref string) (*pivot.CacheDefinition, error) {
	source, err := pivot.ParseRangeRef(ref)
	if err != nil {
		return nil, err
	}
	key := source.String()
	if c, ok := s.caches[key]; ok {
		return c, nil
	}
	c, err := s.loadCache(source)
	if err != nil {
		return nil, err
	}
	if c == nil {
		if c, err = pivot.NewCacheDefinitionFromSheet(s.file, source, s.locale); err != nil {
			return nil, err
		}
	}
	s.caches[key] = c
	log.WithFields(log.Fields{"source": key, "cache": c.ID, "records": c.Records.Count}).Debug("Pivot cache ready")
	return c, nil
}

func (s *session) loadCache(source pivot.RangeRef) (*pivot.CacheDefinition, error) {
	if s.cfg.CacheDir == "" {
		return nil, nil
	}
	defPath, recPath := s.cacheFiles(source)
	def, err := os.Open(defPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	defer def.Close()
	recs, err := os.Open(recPath)
	if err != nil {
		return nil, err
	}
	defer recs.Close()
	c, err := pivot.LoadCache(def, recs, s.locale)
	if err != nil {
		log.WithError(err).WithField("file", defPath).Warn("Ignoring unreadable pivot cache")
		return nil, nil
	}
	if !c.Source.Equal(source) {
		return nil, nil
	}
	// No tables are attached yet, this only reconciles the records.
	if err := c.UpdateData(s.file); err != nil {
		return nil, err
	}
	return c, nil
}

// saveCaches persists every cache of the session.
func (s *session) saveCaches() error {
	if s.cfg.CacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return err
	}
	for _, c := range s.caches {
		defPath, recPath := s.cacheFiles(c.Source)
		if err := writeFile(defPath, func(w io.Writer) error { return pivot.WriteCacheDefinition(w, c) }); err != nil {
			return err
		}
		if err := writeFile(recPath, func(w io.Writer) error { return pivot.WriteCacheRecords(w, c) }); err != nil {
			return err
		}
	}
	return nil
}

// writeFile writes through a temporary file renamed into place.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// build creates the pivot tables of the layout.
func (s *session) build() error {
	if err := s.importCSV(); err != nil {
		return err
	}
	opts := &pivot.Options{Locale: s.cfg.Locale, MonthFields: s.layout.MonthFields, Evaluator: s.evaluate}
	for _, tl := range s.layout.Tables {
		c, err := s.cache(tl.Source)
		if err != nil {
			return fmt.Errorf("table %q: %w", tl.Name, err)
		}
		pt, err := pivot.NewPivotTable(c, tl.Name, tl.Location, opts)
		if err != nil {
			return fmt.Errorf("table %q: %w", tl.Name, err)
		}
		if err := tl.apply(pt); err != nil {
			return fmt.Errorf("table %q: %w", tl.Name, err)
		}
		s.tables = append(s.tables, pt)
	}
	return nil
}

// refresh recomputes every table.
func (s *session) refresh() error {
	var errs []error
	for _, pt := range s.tables {
		start := time.Now()
		if err := pt.RefreshFromCache(s.file); err != nil {
			errs = append(errs, err)
			continue
		}
		log.WithFields(log.Fields{
			"table":   pt.Name,
			"address": pt.Address.String(),
			"rows":    len(pt.RowHeaders),
			"columns": len(pt.ColumnHeaders),
			"elapsed": time.Since(start),
		}).Info("Refreshed pivot table")
	}
	return errors.Join(errs...)
}
