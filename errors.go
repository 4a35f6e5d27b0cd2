// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"errors"
	"fmt"
)

var (
	// ErrParameterRequired defined the error message on receive a nil
	// collaborator or an empty required argument.
	ErrParameterRequired = errors.New("parameter is required")
	// ErrParameterInvalid defined the error message on receive an invalid
	// numeric identifier or out of range argument.
	ErrParameterInvalid = errors.New("parameter is invalid")
	// ErrUnknownValueType defined the error message on a cell value which can
	// not be classified into any cache value type.
	ErrUnknownValueType = errors.New("unknown cache value type")
	// ErrUnknownDataFieldFunction defined the error message on an aggregation
	// kind which has no corresponding worksheet function.
	ErrUnknownDataFieldFunction = errors.New("invalid data field function")
	// ErrSharedItemIndex defined the error message on a shared item reference
	// which does not resolve in its field's shared items, the cache is
	// corrupted.
	ErrSharedItemIndex = errors.New("shared item index out of range")
	// ErrFieldItemsExceedSharedItems defined the error message on a pivot
	// field holding more items than its cache field has shared items.
	ErrFieldItemsExceedSharedItems = errors.New("there are more pivot field items than cache field shared items")
	// ErrDataFieldsMarker defined the error message on an axis carrying the
	// data fields marker more than once, on the page axis, or on a table with
	// several data fields and no marker.
	ErrDataFieldsMarker = errors.New("invalid data fields marker placement")
	// ErrFieldOnMultipleAxes defined the error message on assigning one field
	// to more than one axis.
	ErrFieldOnMultipleAxes = errors.New("field is already assigned to another axis")
	// ErrSourceShape defined the error message on a source row wider than the
	// cache field list.
	ErrSourceShape = errors.New("source range does not match cache fields")
	// ErrNumberFormat defined the error message on an invalid custom number
	// format code for a data field.
	ErrNumberFormat = errors.New("invalid number format code")
	// ErrRangeRef defined the error message on an unparsable range reference.
	ErrRangeRef = errors.New("invalid range reference")
	// ErrEvaluatorClosed defined the error message on using a released
	// evaluation context.
	ErrEvaluatorClosed = errors.New("evaluator is closed")
)

// FieldError represents a fault bound to one cache or pivot field.
type FieldError struct {
	Field int
	Name  string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("field %d (%q): %v", e.Field, e.Name, e.Err)
	}
	return fmt.Sprintf("field %d: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// RefreshError reports the refresh stage of a pivot table that faulted. A
// faulted refresh leaves the table indeterminate, callers should run a full
// refresh again.
type RefreshError struct {
	Table string
	Stage string
	Err   error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh pivot table %q failed at %s: %v", e.Table, e.Stage, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// newFieldError wraps err with the position and name of a field.
func newFieldError(field int, name string, err error) error {
	return &FieldError{Field: field, Name: name, Err: err}
}
