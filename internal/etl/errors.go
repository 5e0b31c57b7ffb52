package etl

import (
	"errors"
	"fmt"

	"etlpipe/internal/domain"
)

var (
	ErrUnknownSource = errors.New("unknown access method")
	ErrEmptyData     = errors.New("no rows")
)

// SourceError reports that one source could not be fetched or parsed.
// The source is skipped; the run continues.
type SourceError struct {
	Source string
	Method domain.AccessMethod
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s (%s): %v", e.Source, e.Method, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// StoreError reports that one table could not be persisted to a destination.
// The table is skipped for that destination; the run continues.
type StoreError struct {
	Table       string
	Destination string
	Err         error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: table %s: %v", e.Destination, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// RuleError reports that a table rule failed; the table keeps its prior contents.
type RuleError struct {
	Table string
	Rule  string
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("table %s: rule %s: %v", e.Table, e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}
