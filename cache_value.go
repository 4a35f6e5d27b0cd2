// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueType is the tag of a cache value. The string form of each tag is the
// element name used for it in pivot cache parts.
type ValueType byte

// Cache value types.
const (
	TypeBoolean ValueType = iota
	TypeDate
	TypeError
	TypeMissing
	TypeNumeric
	TypeText
	TypeSharedRef
)

var valueTypeNames = [...]string{"b", "d", "e", "m", "n", "s", "x"}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return "?"
}

// parseValueType returns the type for a pivot cache element name.
func parseValueType(name string) (ValueType, bool) {
	for i, n := range valueTypeNames {
		if n == name {
			return ValueType(i), true
		}
	}
	return 0, false
}

// dateLayout is the persisted form of date cache values.
const dateLayout = "2006-01-02T15:04:05"

// ErrorValue is a worksheet error literal such as "#N/A" or "#DIV/0!".
type ErrorValue string

// CacheValue is the stored representation of one cell in the pivot cache.
// Only the member selected by Type is meaningful: Bool for booleans, Num for
// numbers, Str for text, errors and dates (ISO 8601, no zone), Index for
// shared item references.
type CacheValue struct {
	Type  ValueType
	Bool  bool
	Num   float64
	Str   string
	Index int
}

// Missing is the cache value of an empty cell.
var Missing = CacheValue{Type: TypeMissing}

// NewSharedRef returns a reference to the shared item at index.
func NewSharedRef(index int) CacheValue {
	return CacheValue{Type: TypeSharedRef, Index: index}
}

// Classify converts a raw cell value into a cache value. Empty strings and
// nil are missing values. A value of any other Go type is a fault.
func Classify(value interface{}) (CacheValue, error) {
	switch v := value.(type) {
	case nil:
		return Missing, nil
	case bool:
		return CacheValue{Type: TypeBoolean, Bool: v}, nil
	case time.Time:
		return CacheValue{Type: TypeDate, Str: v.Format(dateLayout)}, nil
	case *time.Time:
		if v == nil {
			return Missing, nil
		}
		return CacheValue{Type: TypeDate, Str: v.Format(dateLayout)}, nil
	case ErrorValue:
		return CacheValue{Type: TypeError, Str: string(v)}, nil
	case string:
		if v == "" {
			return Missing, nil
		}
		return CacheValue{Type: TypeText, Str: v}, nil
	case []byte:
		if len(v) == 0 {
			return Missing, nil
		}
		return CacheValue{Type: TypeText, Str: string(v)}, nil
	case CacheValue:
		if v.Type == TypeSharedRef {
			return CacheValue{}, fmt.Errorf("%w: shared reference as raw value", ErrUnknownValueType)
		}
		return v, nil
	}
	if f, ok := toFloat(value); ok {
		return CacheValue{Type: TypeNumeric, Num: f}, nil
	}
	return CacheValue{}, fmt.Errorf("%w: %T", ErrUnknownValueType, value)
}

// toFloat converts the Go numeric kinds to float64.
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// Time returns the date of a date value.
func (v CacheValue) Time() (time.Time, error) {
	if v.Type != TypeDate {
		return time.Time{}, fmt.Errorf("%w: %s is not a date", ErrParameterInvalid, v.Type)
	}
	return time.Parse(dateLayout, v.Str)
}

// Interface returns the value as a plain Go value suitable for writing into a
// worksheet cell. Shared references must be resolved first.
func (v CacheValue) Interface() interface{} {
	switch v.Type {
	case TypeBoolean:
		return v.Bool
	case TypeDate:
		if t, err := v.Time(); err == nil {
			return t
		}
		return v.Str
	case TypeError:
		return ErrorValue(v.Str)
	case TypeNumeric:
		return v.Num
	case TypeText:
		return v.Str
	}
	return nil
}

// Text returns the display text of a resolved value.
func (v CacheValue) Text() string {
	switch v.Type {
	case TypeBoolean:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case TypeNumeric:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case TypeSharedRef:
		return strconv.Itoa(v.Index)
	case TypeMissing:
		return ""
	}
	return v.Str
}

// attr returns the persisted "v" attribute of the value.
func (v CacheValue) attr() string {
	switch v.Type {
	case TypeBoolean:
		if v.Bool {
			return "1"
		}
		return "0"
	case TypeNumeric:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case TypeSharedRef:
		return strconv.Itoa(v.Index)
	}
	return v.Str
}

// parseCacheValue builds a value from a persisted element name and attribute.
func parseCacheValue(t ValueType, attr string) (CacheValue, error) {
	switch t {
	case TypeBoolean:
		return CacheValue{Type: t, Bool: attr == "1" || strings.EqualFold(attr, "true")}, nil
	case TypeNumeric:
		f, err := strconv.ParseFloat(attr, 64)
		if err != nil {
			return CacheValue{}, fmt.Errorf("%w: numeric value %q", ErrParameterInvalid, attr)
		}
		return CacheValue{Type: t, Num: f}, nil
	case TypeSharedRef:
		i, err := strconv.Atoi(attr)
		if err != nil || i < 0 {
			return CacheValue{}, fmt.Errorf("%w: shared reference %q", ErrSharedItemIndex, attr)
		}
		return NewSharedRef(i), nil
	case TypeMissing:
		return Missing, nil
	case TypeDate:
		if _, err := time.Parse(dateLayout, attr); err != nil {
			return CacheValue{}, fmt.Errorf("%w: date value %q", ErrParameterInvalid, attr)
		}
	}
	return CacheValue{Type: t, Str: attr}, nil
}

// sameContent reports whether two non-reference values hold identical
// content. Text is compared exactly; equivalence is the locale's job.
func (v CacheValue) sameContent(o CacheValue) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeBoolean:
		return v.Bool == o.Bool
	case TypeNumeric:
		return v.Num == o.Num || (math.IsNaN(v.Num) && math.IsNaN(o.Num))
	case TypeMissing:
		return true
	case TypeSharedRef:
		return v.Index == o.Index
	}
	return v.Str == o.Str
}

// contentKey is the exact-content dictionary key of a non-text value.
func (v CacheValue) contentKey() string {
	return v.Type.String() + ":" + v.attr()
}

// sortRank orders value kinds the way worksheet ascending sorts do: numbers
// and dates, text, booleans, errors, then blanks.
func (v CacheValue) sortRank() int {
	switch v.Type {
	case TypeNumeric, TypeDate:
		return 0
	case TypeText:
		return 1
	case TypeBoolean:
		return 2
	case TypeError:
		return 3
	}
	return 4
}

// serial returns the numeric ordering key of numbers and dates. Dates use
// the 1900 date system serial number.
func (v CacheValue) serial() float64 {
	if v.Type == TypeNumeric {
		return v.Num
	}
	t, err := v.Time()
	if err != nil {
		return 0
	}
	epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	return t.Sub(epoch).Hours() / 24
}
