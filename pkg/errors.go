package timetag

import "fmt"

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

// ErrBadEventTable represents a structural problem with the input event list.
type ErrBadEventTable struct {
	Reason string
}

func (e *ErrBadEventTable) Error() string {
	return fmt.Sprintf("malformed event table: %s", e.Reason)
}

// ErrRefLookup represents a reference-table query that did not return
// exactly one row where exactly one was required.
type ErrRefLookup struct {
	Table string
	Key   string
	Rows  int
}

func (e *ErrRefLookup) Error() string {
	return fmt.Sprintf("reference table %q: query %q matched %d rows, expected exactly one",
		e.Table, e.Key, e.Rows)
}

// ErrRefMissing represents a required reference table that is entirely absent.
type ErrRefMissing struct {
	Table string
	Err   error
}

func (e *ErrRefMissing) Error() string {
	return fmt.Sprintf("required reference table %q is not available: %v", e.Table, e.Err)
}

func (e *ErrRefMissing) Unwrap() error { return e.Err }
