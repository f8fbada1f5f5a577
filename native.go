package odbx

// HandleKind identifies the three native resource classes of the
// call-level API.
type HandleKind int16

const (
	HandleEnv  HandleKind = 1 // SQL_HANDLE_ENV
	HandleConn HandleKind = 2 // SQL_HANDLE_DBC
	HandleStmt HandleKind = 3 // SQL_HANDLE_STMT
)

func (k HandleKind) String() string {
	switch k {
	case HandleEnv:
		return "environment"
	case HandleConn:
		return "connection"
	case HandleStmt:
		return "statement"
	}
	return "unknown"
}

// ColumnMeta is raw per-column metadata as the driver reports it.
// Size counts characters for character types and bytes otherwise; the
// driver reports 0 for unbounded ("MAX") columns.
type ColumnMeta struct {
	Name     string
	TypeCode int16
	Size     int
	Scale    int16
	Nullable bool
}

// NativeAPI is the boundary to the native call-level driver. The
// production implementation (LibAPI) drives a dynamically loaded ODBC
// driver manager; tests substitute an in-memory double.
//
// All calls are synchronous and block until the native layer returns.
// Handles passed here are raw native values; liveness tracking is the
// caller's job (see Tree).
type NativeAPI interface {
	// AllocHandle allocates a new handle of the given kind under parent
	// (0 for environment handles).
	AllocHandle(kind HandleKind, parent uintptr) (uintptr, error)

	// FreeHandle frees a handle directly. Freeing a connection
	// invalidates its statements inside the driver as a side effect;
	// that implicit invalidation is not signalled separately.
	FreeHandle(kind HandleKind, h uintptr) error

	// NumResultCols reports the number of columns in the statement's
	// current result set.
	NumResultCols(stmt uintptr) (int, error)

	// DescribeCol describes one column. Ordinals are 1-based.
	DescribeCol(stmt uintptr, ordinal int) (ColumnMeta, error)

	// FetchBatch binds the given column buffers and fetches up to
	// capacity rows into them, filling data slots and indicator arrays.
	// It returns the number of rows written; zero with a nil error
	// means the result set is exhausted.
	FetchBatch(stmt uintptr, cols []*ColumnBuffer, capacity int) (int, error)

	// GetData reads the next chunk of one cell's value, re-reading the
	// value from its beginning on the first call for that cell. row is
	// the 0-based position inside the current fetch batch; with batch
	// sizes above one the implementation must select that row before
	// reading. done reports that the value is complete after this chunk.
	GetData(stmt uintptr, row, ordinal int, cType int16, buf []byte) (n int, done bool, err error)

	// MoreResults advances the statement to its next result set, if
	// the executed batch produced more than one.
	MoreResults(stmt uintptr) (bool, error)
}
