// Package odbx implements the result-set materialization engine of a
// call-level (ODBC style) database driver: it owns the native handle
// tree, sizes and reuses columnar fetch buffers, and converts batched
// column data into application-visible row values.
//
// The package does not speak the wire protocol itself. Network I/O is
// performed by a native driver manager reached through the NativeAPI
// interface, either the purego-loaded production implementation in
// native_lib.go or a test double.
package odbx

// This file holds the ODBC constants shared across the package. Values
// follow the ODBC 3.x headers (sql.h / sqlext.h) plus the SQL Server
// driver-specific extensions.

// Return codes.
const (
	SQL_SUCCESS           = 0
	SQL_SUCCESS_WITH_INFO = 1
	SQL_NO_DATA           = 100
	SQL_ERROR             = -1
	SQL_INVALID_HANDLE    = -2
)

// Indicator sentinels. An indicator slot carries either a byte length
// or one of these two values; sqlNoTotal doubles as the "truncated,
// use the LOB fallback" marker, matching SQLGetData semantics.
const (
	sqlNullData = -1 // SQL_NULL_DATA
	sqlNoTotal  = -4 // SQL_NO_TOTAL
)

// SQL type codes as reported by SQLDescribeCol.
const (
	SQL_UNKNOWN_TYPE   = 0
	SQL_CHAR           = 1
	SQL_NUMERIC        = 2
	SQL_DECIMAL        = 3
	SQL_INTEGER        = 4
	SQL_SMALLINT       = 5
	SQL_FLOAT          = 6
	SQL_REAL           = 7
	SQL_DOUBLE         = 8
	SQL_DATETIME       = 9
	SQL_TIME           = 10
	SQL_TIMESTAMP      = 11
	SQL_VARCHAR        = 12
	SQL_TYPE_DATE      = 91
	SQL_TYPE_TIME      = 92
	SQL_TYPE_TIMESTAMP = 93
	SQL_LONGVARCHAR    = -1
	SQL_BINARY         = -2
	SQL_VARBINARY      = -3
	SQL_LONGVARBINARY  = -4
	SQL_BIGINT         = -5
	SQL_TINYINT        = -6
	SQL_BIT            = -7
	SQL_WCHAR          = -8
	SQL_WVARCHAR       = -9
	SQL_WLONGVARCHAR   = -10
	SQL_GUID           = -11

	// SQL Server extensions.
	SQL_SS_XML             = -152
	SQL_SS_TIME2           = -154
	SQL_SS_TIMESTAMPOFFSET = -155
)

// C buffer type codes passed to SQLBindCol / SQLGetData.
const (
	SQL_C_CHAR               = 1
	SQL_C_NUMERIC            = 2
	SQL_C_LONG               = 4
	SQL_C_SHORT              = 5
	SQL_C_FLOAT              = 7
	SQL_C_DOUBLE             = 8
	SQL_C_TYPE_DATE          = 91
	SQL_C_TYPE_TIME          = 92
	SQL_C_TYPE_TIMESTAMP     = 93
	SQL_C_BINARY             = -2
	SQL_C_TINYINT            = -6
	SQL_C_BIT                = -7
	SQL_C_WCHAR              = -8
	SQL_C_GUID               = -11
	SQL_C_SBIGINT            = -25
	SQL_C_SS_TIMESTAMPOFFSET = 0x4001
)

// Statement attributes, fetch orientation and cursor positioning used
// by the batch loop and the LOB fallback.
const (
	SQL_ATTR_ROWS_FETCHED_PTR = 26
	SQL_ATTR_ROW_ARRAY_SIZE   = 27
	SQL_FETCH_NEXT            = 1
	SQL_NTS                   = -3
	SQL_POSITION              = 0
	SQL_LOCK_NO_CHANGE        = 0
)

func sqlSucceeded(ret int16) bool {
	return ret == SQL_SUCCESS || ret == SQL_SUCCESS_WITH_INFO
}
