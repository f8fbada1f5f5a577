package odbx

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unicode/utf16"
	"unsafe"
)

// LibAPI is the production NativeAPI: a table of entry points resolved
// from a dynamically loaded ODBC driver manager. One LibAPI may serve
// any number of handle trees; the driver manager itself synchronizes
// per handle, and this engine never shares a statement across
// goroutines anyway.
type LibAPI struct {
	lib uintptr

	sqlAllocHandle   uintptr
	sqlFreeHandle    uintptr
	sqlNumResultCols uintptr
	sqlDescribeColW  uintptr
	sqlSetStmtAttr   uintptr
	sqlBindCol       uintptr
	sqlFetchScroll   uintptr
	sqlSetPos        uintptr
	sqlGetData       uintptr
	sqlMoreResults   uintptr
	sqlGetDiagRecW   uintptr

	// positioned remembers, per statement, which rowset row the block
	// cursor currently points at. SQLGetData against a rowset larger
	// than one row is only valid after SQLSetPos selected the row, and
	// repositioning resets the driver's get-data offset, so the SetPos
	// happens once per streamed value rather than once per chunk.
	mu         sync.Mutex
	positioned map[uintptr]int
}

// LoadDriverManager loads the driver manager library at path and
// resolves every entry point this engine calls. Missing symbols fail
// the load as a whole.
func LoadDriverManager(path string) (*LibAPI, error) {
	lib, err := loadDynamicLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("odbx: loading %s: %w", path, err)
	}

	l := &LibAPI{lib: lib, positioned: make(map[uintptr]int)}
	for _, s := range []struct {
		name string
		dst  *uintptr
	}{
		{"SQLAllocHandle", &l.sqlAllocHandle},
		{"SQLFreeHandle", &l.sqlFreeHandle},
		{"SQLNumResultCols", &l.sqlNumResultCols},
		{"SQLDescribeColW", &l.sqlDescribeColW},
		{"SQLSetStmtAttr", &l.sqlSetStmtAttr},
		{"SQLBindCol", &l.sqlBindCol},
		{"SQLFetchScroll", &l.sqlFetchScroll},
		{"SQLSetPos", &l.sqlSetPos},
		{"SQLGetData", &l.sqlGetData},
		{"SQLMoreResults", &l.sqlMoreResults},
		{"SQLGetDiagRecW", &l.sqlGetDiagRecW},
	} {
		sym, err := getSymbol(lib, s.name)
		if err != nil {
			closeLibrary(lib)
			return nil, fmt.Errorf("odbx: resolving %s in %s: %w", s.name, path, err)
		}
		*s.dst = sym
	}
	return l, nil
}

// LoadDefaultDriverManager probes the platform's usual driver manager
// library names and loads the first that resolves.
func LoadDefaultDriverManager() (*LibAPI, error) {
	var lastErr error
	for _, name := range defaultDriverManagers {
		l, err := LoadDriverManager(name)
		if err == nil {
			return l, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("odbx: no driver manager candidates")
	}
	return nil, lastErr
}

// Close unloads the driver manager library. Handles allocated through
// this LibAPI must be released first.
func (l *LibAPI) Close() {
	closeLibrary(l.lib)
	l.lib = 0
}

// diag pulls the first diagnostic record for a handle and folds it
// into an error, so native failures surface with SQLSTATE and driver
// message instead of a bare return code.
func (l *LibAPI) diag(kind HandleKind, h uintptr, fn string, ret int16) error {
	var (
		state    [6]uint16
		native   int32
		msg      [512]uint16
		msgLen   int16
	)
	r := int16(nativeCall(l.sqlGetDiagRecW,
		uintptr(uint16(kind)),
		h,
		1,
		uintptr(unsafe.Pointer(&state[0])),
		uintptr(unsafe.Pointer(&native)),
		uintptr(unsafe.Pointer(&msg[0])),
		uintptr(len(msg)),
		uintptr(unsafe.Pointer(&msgLen)),
	))
	if !sqlSucceeded(r) {
		return fmt.Errorf("odbx: %s failed with return code %d", fn, ret)
	}
	if msgLen > int16(len(msg)) {
		msgLen = int16(len(msg))
	}
	return fmt.Errorf("odbx: %s: [%s] %s (native %d)",
		fn,
		string(utf16.Decode(state[:5])),
		string(utf16.Decode(msg[:msgLen])),
		native)
}

func (l *LibAPI) AllocHandle(kind HandleKind, parent uintptr) (uintptr, error) {
	var out uintptr
	ret := int16(nativeCall(l.sqlAllocHandle,
		uintptr(uint16(kind)),
		parent,
		uintptr(unsafe.Pointer(&out)),
	))
	if !sqlSucceeded(ret) {
		// Diagnostics for a failed alloc live on the parent.
		parentKind := kind - 1
		if parent == 0 {
			return 0, fmt.Errorf("odbx: SQLAllocHandle failed with return code %d", ret)
		}
		return 0, l.diag(parentKind, parent, "SQLAllocHandle", ret)
	}
	return out, nil
}

func (l *LibAPI) FreeHandle(kind HandleKind, h uintptr) error {
	ret := int16(nativeCall(l.sqlFreeHandle, uintptr(uint16(kind)), h))
	if !sqlSucceeded(ret) {
		return fmt.Errorf("odbx: SQLFreeHandle failed with return code %d", ret)
	}
	return nil
}

func (l *LibAPI) NumResultCols(stmt uintptr) (int, error) {
	var n int16
	ret := int16(nativeCall(l.sqlNumResultCols, stmt, uintptr(unsafe.Pointer(&n))))
	if !sqlSucceeded(ret) {
		return 0, l.diag(HandleStmt, stmt, "SQLNumResultCols", ret)
	}
	return int(n), nil
}

func (l *LibAPI) DescribeCol(stmt uintptr, ordinal int) (ColumnMeta, error) {
	var (
		name     [256]uint16
		nameLen  int16
		typeCode int16
		size     uint64
		scale    int16
		nullable int16
	)
	ret := int16(nativeCall(l.sqlDescribeColW,
		stmt,
		uintptr(ordinal),
		uintptr(unsafe.Pointer(&name[0])),
		uintptr(len(name)),
		uintptr(unsafe.Pointer(&nameLen)),
		uintptr(unsafe.Pointer(&typeCode)),
		uintptr(unsafe.Pointer(&size)),
		uintptr(unsafe.Pointer(&scale)),
		uintptr(unsafe.Pointer(&nullable)),
	))
	if !sqlSucceeded(ret) {
		return ColumnMeta{}, l.diag(HandleStmt, stmt, "SQLDescribeColW", ret)
	}
	if nameLen > int16(len(name)) {
		nameLen = int16(len(name))
	}
	return ColumnMeta{
		Name:     string(utf16.Decode(name[:nameLen])),
		TypeCode: typeCode,
		Size:     int(size),
		Scale:    scale,
		Nullable: nullable != 0,
	}, nil
}

func (l *LibAPI) FetchBatch(stmt uintptr, cols []*ColumnBuffer, capacity int) (int, error) {
	var rowsFetched uint64

	ret := int16(nativeCall(l.sqlSetStmtAttr, stmt,
		SQL_ATTR_ROW_ARRAY_SIZE, uintptr(capacity), 0))
	if !sqlSucceeded(ret) {
		return 0, l.diag(HandleStmt, stmt, "SQLSetStmtAttr", ret)
	}
	ret = int16(nativeCall(l.sqlSetStmtAttr, stmt,
		SQL_ATTR_ROWS_FETCHED_PTR, uintptr(unsafe.Pointer(&rowsFetched)), 0))
	if !sqlSucceeded(ret) {
		return 0, l.diag(HandleStmt, stmt, "SQLSetStmtAttr", ret)
	}

	for _, c := range cols {
		ret = int16(nativeCall(l.sqlBindCol, stmt,
			uintptr(c.Desc.Ordinal),
			uintptr(uint16(c.CType)),
			uintptr(unsafe.Pointer(&c.Data[0])),
			uintptr(c.SlotWidth),
			uintptr(unsafe.Pointer(&c.Inds[0])),
		))
		if !sqlSucceeded(ret) {
			return 0, l.diag(HandleStmt, stmt, "SQLBindCol", ret)
		}
	}

	ret = int16(nativeCall(l.sqlFetchScroll, stmt, SQL_FETCH_NEXT, 0))
	runtime.KeepAlive(cols)

	// A new rowset invalidates any earlier SQLSetPos position.
	l.mu.Lock()
	delete(l.positioned, stmt)
	l.mu.Unlock()

	if ret == SQL_NO_DATA {
		return 0, nil
	}
	if !sqlSucceeded(ret) {
		return 0, l.diag(HandleStmt, stmt, "SQLFetchScroll", ret)
	}
	runtime.KeepAlive(&rowsFetched)
	return int(rowsFetched), nil
}

// position selects one rowset row for SQLGetData. Skipped when the
// cursor already points at that row, so chunked reads of a single value
// never reset the driver's get-data offset mid-stream.
func (l *LibAPI) position(stmt uintptr, row int) error {
	l.mu.Lock()
	cur, ok := l.positioned[stmt]
	l.mu.Unlock()
	if ok && cur == row {
		return nil
	}

	// SQLSetPos row numbers are 1-based within the rowset.
	ret := int16(nativeCall(l.sqlSetPos, stmt,
		uintptr(row+1), SQL_POSITION, SQL_LOCK_NO_CHANGE))
	if !sqlSucceeded(ret) {
		return l.diag(HandleStmt, stmt, "SQLSetPos", ret)
	}

	l.mu.Lock()
	l.positioned[stmt] = row
	l.mu.Unlock()
	return nil
}

func (l *LibAPI) GetData(stmt uintptr, row, ordinal int, cType int16, buf []byte) (int, bool, error) {
	if err := l.position(stmt, row); err != nil {
		return 0, false, err
	}

	var ind int64
	ret := int16(nativeCall(l.sqlGetData, stmt,
		uintptr(ordinal),
		uintptr(uint16(cType)),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&ind)),
	))
	runtime.KeepAlive(buf)
	if ret == SQL_NO_DATA {
		return 0, true, nil
	}
	if !sqlSucceeded(ret) {
		return 0, false, l.diag(HandleStmt, stmt, "SQLGetData", ret)
	}

	term := terminatorLen(cType)
	if ret == SQL_SUCCESS_WITH_INFO {
		// Buffer filled, more to come; the terminator bytes are not data.
		return len(buf) - term, false, nil
	}
	// Final chunk: the indicator holds the byte count that remained
	// before this call, unless the driver could not tell.
	n := len(buf) - term
	if ind >= 0 && ind <= int64(n) {
		n = int(ind)
	}
	return n, true, nil
}

func (l *LibAPI) MoreResults(stmt uintptr) (bool, error) {
	ret := int16(nativeCall(l.sqlMoreResults, stmt))
	if ret == SQL_NO_DATA {
		return false, nil
	}
	if !sqlSucceeded(ret) {
		return false, l.diag(HandleStmt, stmt, "SQLMoreResults", ret)
	}
	return true, nil
}
