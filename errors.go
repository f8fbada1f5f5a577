package odbx

import (
	"errors"
	"fmt"
)

// The engine surfaces five error classes. None of them is retried here;
// reconnect and retry policy belong to the layers above.

// ErrClosed is returned when a result set is used after Close.
var ErrClosed = errors.New("odbx: result set is closed")

// errBatchSuperseded is returned when a RowBatch is materialized after a
// later NextBatch has already overwritten the shared column buffers.
var errBatchSuperseded = errors.New("odbx: row batch superseded by a later fetch")

// StaleHandleError reports an operation attempted against a handle that
// was released, or invalidated by the release of an ancestor.
type StaleHandleError struct {
	Kind HandleKind
}

func (e *StaleHandleError) Error() string {
	return fmt.Sprintf("odbx: %s handle is no longer valid", e.Kind)
}

// MetadataError reports a column description failure. Opening the
// result set fails as a whole; no partial descriptor cache is kept.
type MetadataError struct {
	Ordinal int // 1-based column position, 0 when the count query failed
	Err     error
}

func (e *MetadataError) Error() string {
	if e.Ordinal == 0 {
		return fmt.Sprintf("odbx: describing result set: %v", e.Err)
	}
	return fmt.Sprintf("odbx: describing column %d: %v", e.Ordinal, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// FetchError reports a native fetch failure mid-stream. The batch loop
// is terminal after this; rows materialized from earlier batches stay
// valid.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("odbx: fetch: %v", e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// ConversionError reports that one cell's bytes could not be converted
// under the column's declared type. It is scoped to that cell; sibling
// cells already materialized are unaffected.
type ConversionError struct {
	Ordinal int
	Tag     TypeTag
	Err     error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("odbx: column %d (%s): %v", e.Ordinal, e.Tag, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// TruncationError reports that the LOB streaming fallback failed before
// the value was complete. Chunks read so far are discarded; a partial
// LOB is indistinguishable from a correct short value and is never
// surfaced as data.
type TruncationError struct {
	Ordinal int
	Tag     TypeTag
	Err     error
}

func (e *TruncationError) Error() string {
	return fmt.Sprintf("odbx: column %d (%s): streaming long value: %v", e.Ordinal, e.Tag, e.Err)
}

func (e *TruncationError) Unwrap() error { return e.Err }
