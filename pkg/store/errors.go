package store

import (
	"errors"
	"fmt"
)

// ErrInvalidTableName is returned before any SQL runs when a table name is
// not a plain identifier.
var ErrInvalidTableName = errors.New("invalid table name")

// SchemaError reports a failure to create or verify the table.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("ensuring table %q: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// InsertError reports the data row (1-based, header excluded) whose insertion
// aborted a load. Rows before it remain committed.
type InsertError struct {
	Table string
	File  string
	Row   int
	Err   error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("inserting row %d of %q into %q: %v", e.Row, e.File, e.Table, e.Err)
}

func (e *InsertError) Unwrap() error { return e.Err }
