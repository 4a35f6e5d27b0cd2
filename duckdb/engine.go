// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package duckdb provides a DuckDB backed aggregate evaluator for pivot table
// refresh. Data field values are loaded into a scratch table and totalled
// with SQL aggregates instead of worksheet formulas.
package duckdb

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
)

// Engine wraps an in-memory DuckDB database shared by the evaluators it
// hands out. Each evaluator owns one scratch table.
type Engine struct {
	db          *sql.DB
	mu          sync.RWMutex
	tables      map[string]bool
	initialized bool
}

// Config holds configuration options for the DuckDB engine.
type Config struct {
	// MemoryLimit sets the maximum memory DuckDB can use (e.g., "4GB")
	MemoryLimit string
	// Threads sets the number of threads DuckDB should use (0 = auto)
	Threads int
}

// DefaultConfig returns the default configuration for the DuckDB engine.
func DefaultConfig() *Config {
	return &Config{
		MemoryLimit: "1GB",
		Threads:     0, // auto-detect
	}
}

// NewEngine creates a new DuckDB engine with default configuration.
func NewEngine() (*Engine, error) {
	return NewEngineWithConfig(DefaultConfig())
}

// NewEngineWithConfig creates a new DuckDB engine with custom configuration.
func NewEngineWithConfig(cfg *Config) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	e := &Engine{db: db, tables: make(map[string]bool)}
	if err := e.applyConfig(cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply config: %w", err)
	}
	e.initialized = true
	return e, nil
}

// memoryLimit matches the size literals DuckDB accepts for memory_limit.
var memoryLimit = regexp.MustCompile(`^\d+(\.\d+)?\s*(B|KB|MB|GB|TB|KiB|MiB|GiB|TiB)$`)

// applyConfig applies configuration settings to the DuckDB database.
func (e *Engine) applyConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	if cfg.MemoryLimit != "" {
		if !memoryLimit.MatchString(cfg.MemoryLimit) {
			return fmt.Errorf("invalid memory_limit %q", cfg.MemoryLimit)
		}
		if _, err := e.db.Exec(fmt.Sprintf("SET memory_limit = '%s'", cfg.MemoryLimit)); err != nil {
			return fmt.Errorf("failed to set memory_limit: %w", err)
		}
	}
	if cfg.Threads > 0 {
		if _, err := e.db.Exec(fmt.Sprintf("SET threads = %d", cfg.Threads)); err != nil {
			return fmt.Errorf("failed to set threads: %w", err)
		}
	}
	return nil
}

// createTable creates a scratch value table with a unique name.
func (e *Engine) createTable() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return "", fmt.Errorf("engine not initialized")
	}
	name := sanitizeTableName("pivot_values_" + uuid.NewString())
	if _, err := e.db.Exec(fmt.Sprintf("CREATE TABLE %s (num DOUBLE)", name)); err != nil {
		return "", fmt.Errorf("failed to create table: %w", err)
	}
	e.tables[name] = true
	return name, nil
}

// dropTable removes a scratch table.
func (e *Engine) dropTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.tables[name] {
		return nil
	}
	delete(e.tables, name)
	if _, err := e.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return nil
}

// Tables returns the number of live scratch tables.
func (e *Engine) Tables() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tables)
}

// Close closes the DuckDB database connection and releases resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = false
	if e.db != nil {
		err := e.db.Close()
		e.db = nil
		return err
	}
	return nil
}

// IsInitialized returns whether the engine has been initialized.
func (e *Engine) IsInitialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// sanitizeTableName converts a name to a valid SQL table name.
func sanitizeTableName(name string) string {
	reg := regexp.MustCompile(`[^a-zA-Z0-9_]`)
	sanitized := reg.ReplaceAllString(name, "_")

	// Ensure it starts with a letter
	if len(sanitized) > 0 && (sanitized[0] >= '0' && sanitized[0] <= '9') {
		sanitized = "t_" + sanitized
	}

	return strings.ToLower(sanitized)
}
