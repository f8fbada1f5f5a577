package odbx

import (
	"encoding/binary"
	"errors"
	"math"
	"math/big"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeNative is an in-memory NativeAPI double. It hands out raw handle
// values, counts frees, and serves scripted result sets by encoding Go
// values into the column buffers exactly the way a driver would:
// native little-endian slots plus indicator lengths and sentinels.
type fakeNative struct {
	mu   sync.Mutex
	next uintptr

	frees map[uintptr]int

	// results is a queue of result sets per statement handle; the head
	// is the current one, MoreResults pops.
	results map[uintptr][]*fakeResult

	// lobs holds pending long values per (stmt, ordinal, batch row),
	// recorded during FetchBatch and drained by GetData. Keying by row
	// mirrors the block-cursor contract: a read that does not name the
	// spilled row finds nothing.
	lobs         map[lobKey]*lobValue
	lobSequences int

	fetchCalls     int
	fetchFailAfter int // fail the Nth FetchBatch call, 0 = never
	fetchErr       error

	getDataCalls  int
	getDataFailAt int // fail the Nth GetData call, 0 = never

	describeFailAt int // fail DescribeCol for this ordinal, 0 = never
}

type fakeResult struct {
	cols   []ColumnMeta
	rows   [][]any
	cursor int
}

type lobKey struct {
	stmt    uintptr
	ordinal int
	row     int
}

type lobValue struct {
	data []byte
	off  int
}

func newFakeNative() *fakeNative {
	return &fakeNative{
		frees:   make(map[uintptr]int),
		results: make(map[uintptr][]*fakeResult),
		lobs:    make(map[lobKey]*lobValue),
	}
}

func (f *fakeNative) AllocHandle(kind HandleKind, parent uintptr) (uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return f.next, nil
}

func (f *fakeNative) FreeHandle(kind HandleKind, h uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frees[h]++
	return nil
}

func (f *fakeNative) addResult(stmt uintptr, cols []ColumnMeta, rows [][]any) {
	f.results[stmt] = append(f.results[stmt], &fakeResult{cols: cols, rows: rows})
}

func (f *fakeNative) current(stmt uintptr) *fakeResult {
	if q := f.results[stmt]; len(q) > 0 {
		return q[0]
	}
	return nil
}

func (f *fakeNative) NumResultCols(stmt uintptr) (int, error) {
	r := f.current(stmt)
	if r == nil {
		return 0, nil
	}
	return len(r.cols), nil
}

func (f *fakeNative) DescribeCol(stmt uintptr, ordinal int) (ColumnMeta, error) {
	if f.describeFailAt == ordinal {
		return ColumnMeta{}, errors.New("describe rejected")
	}
	r := f.current(stmt)
	if r == nil || ordinal < 1 || ordinal > len(r.cols) {
		return ColumnMeta{}, errors.New("no such column")
	}
	return r.cols[ordinal-1], nil
}

func (f *fakeNative) MoreResults(stmt uintptr) (bool, error) {
	if q := f.results[stmt]; len(q) > 0 {
		f.results[stmt] = q[1:]
	}
	return len(f.results[stmt]) > 0, nil
}

func (f *fakeNative) FetchBatch(stmt uintptr, cols []*ColumnBuffer, capacity int) (int, error) {
	f.fetchCalls++
	if f.fetchFailAfter != 0 && f.fetchCalls >= f.fetchFailAfter {
		if f.fetchErr == nil {
			f.fetchErr = errors.New("connection reset")
		}
		return 0, f.fetchErr
	}

	r := f.current(stmt)
	if r == nil {
		return 0, nil
	}
	n := len(r.rows) - r.cursor
	if n > capacity {
		n = capacity
	}
	for i := 0; i < n; i++ {
		row := r.rows[r.cursor+i]
		for c, buf := range cols {
			f.encodeCell(stmt, buf, i, row[c])
		}
	}
	r.cursor += n
	return n, nil
}

func (f *fakeNative) GetData(stmt uintptr, row, ordinal int, cType int16, buf []byte) (int, bool, error) {
	f.getDataCalls++
	if f.getDataFailAt != 0 && f.getDataCalls >= f.getDataFailAt {
		return 0, false, errors.New("stream interrupted")
	}

	key := lobKey{stmt: stmt, ordinal: ordinal, row: row}
	v := f.lobs[key]
	if v == nil {
		return 0, true, nil
	}
	if v.off == 0 {
		f.lobSequences++
	}
	n := copy(buf, v.data[v.off:])
	v.off += n
	done := v.off == len(v.data)
	if done {
		delete(f.lobs, key)
	}
	return n, done, nil
}

// encodeCell writes one value into a column buffer slot the way the
// driver would: garbage-filled slot, then the native representation,
// then the indicator. Values that do not fit leave a truncated prefix
// and queue the full bytes for GetData.
func (f *fakeNative) encodeCell(stmt uintptr, buf *ColumnBuffer, row int, v any) {
	slot := buf.Slot(row)
	for i := range slot {
		slot[i] = 0xAB // NULL cells must win on the indicator alone
	}
	if v == nil {
		buf.Inds[row] = sqlNullData
		return
	}

	switch buf.CType {
	case SQL_C_TINYINT:
		slot[0] = byte(v.(int64))
		buf.Inds[row] = 1
	case SQL_C_BIT:
		slot[0] = 0
		if v.(bool) {
			slot[0] = 1
		}
		buf.Inds[row] = 1
	case SQL_C_SHORT:
		binary.LittleEndian.PutUint16(slot, uint16(v.(int64)))
		buf.Inds[row] = 2
	case SQL_C_LONG:
		binary.LittleEndian.PutUint32(slot, uint32(v.(int64)))
		buf.Inds[row] = 4
	case SQL_C_SBIGINT:
		binary.LittleEndian.PutUint64(slot, uint64(v.(int64)))
		buf.Inds[row] = 8
	case SQL_C_FLOAT:
		binary.LittleEndian.PutUint32(slot, math.Float32bits(float32(v.(float64))))
		buf.Inds[row] = 4
	case SQL_C_DOUBLE:
		binary.LittleEndian.PutUint64(slot, math.Float64bits(v.(float64)))
		buf.Inds[row] = 8
	case SQL_C_CHAR:
		f.encodeVariable(stmt, buf, row, []byte(v.(string)))
	case SQL_C_WCHAR:
		f.encodeVariable(stmt, buf, row, utf16leBytes(v.(string)))
	case SQL_C_BINARY:
		f.encodeVariable(stmt, buf, row, v.([]byte))
	case SQL_C_NUMERIC:
		encodeNumeric(slot, v.(decimal.Decimal))
		buf.Inds[row] = numericStructLen
	case SQL_C_TYPE_DATE:
		d := v.(civil.Date)
		binary.LittleEndian.PutUint16(slot[0:], uint16(int16(d.Year)))
		binary.LittleEndian.PutUint16(slot[2:], uint16(d.Month))
		binary.LittleEndian.PutUint16(slot[4:], uint16(d.Day))
		buf.Inds[row] = dateStructLen
	case SQL_C_TYPE_TIME:
		t := v.(civil.Time)
		binary.LittleEndian.PutUint16(slot[0:], uint16(t.Hour))
		binary.LittleEndian.PutUint16(slot[2:], uint16(t.Minute))
		binary.LittleEndian.PutUint16(slot[4:], uint16(t.Second))
		buf.Inds[row] = timeStructLen
	case SQL_C_TYPE_TIMESTAMP:
		encodeTimestamp(slot, v.(time.Time))
		buf.Inds[row] = timestampStructLen
	case SQL_C_SS_TIMESTAMPOFFSET:
		t := v.(time.Time)
		encodeTimestamp(slot, t)
		_, offset := t.Zone()
		binary.LittleEndian.PutUint16(slot[16:], uint16(int16(offset/3600)))
		binary.LittleEndian.PutUint16(slot[18:], uint16(int16(offset%3600/60)))
		buf.Inds[row] = tsOffsetStructLen
	case SQL_C_GUID:
		u := v.(uuid.UUID)
		slot[0], slot[1], slot[2], slot[3] = u[3], u[2], u[1], u[0]
		slot[4], slot[5] = u[5], u[4]
		slot[6], slot[7] = u[7], u[6]
		copy(slot[8:], u[8:16])
		buf.Inds[row] = guidLen
	default:
		// Unsupported columns still carry bytes; conversion rejects them.
		buf.Inds[row] = int64(buf.SlotWidth)
	}
}

func (f *fakeNative) encodeVariable(stmt uintptr, buf *ColumnBuffer, row int, raw []byte) {
	slot := buf.Slot(row)
	usable := buf.SlotWidth - terminatorLen(buf.CType)
	if len(raw) <= usable {
		copy(slot, raw)
		buf.Inds[row] = int64(len(raw))
		return
	}
	copy(slot, raw[:usable])
	buf.Inds[row] = sqlNoTotal
	if buf.Desc.Tag.IsLOB() {
		key := lobKey{stmt: stmt, ordinal: buf.Desc.Ordinal, row: row}
		f.lobs[key] = &lobValue{data: raw}
	}
}

func utf16leBytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

func encodeTimestamp(slot []byte, t time.Time) {
	binary.LittleEndian.PutUint16(slot[0:], uint16(int16(t.Year())))
	binary.LittleEndian.PutUint16(slot[2:], uint16(t.Month()))
	binary.LittleEndian.PutUint16(slot[4:], uint16(t.Day()))
	binary.LittleEndian.PutUint16(slot[6:], uint16(t.Hour()))
	binary.LittleEndian.PutUint16(slot[8:], uint16(t.Minute()))
	binary.LittleEndian.PutUint16(slot[10:], uint16(t.Second()))
	binary.LittleEndian.PutUint32(slot[12:], uint32(t.Nanosecond()))
}

func encodeNumeric(slot []byte, d decimal.Decimal) {
	coeff := new(big.Int).Set(d.Coefficient())
	var scale int8
	if exp := d.Exponent(); exp < 0 {
		scale = int8(-exp)
	} else if exp > 0 {
		coeff.Mul(coeff, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
	}

	sign := byte(1)
	if coeff.Sign() < 0 {
		sign = 0
		coeff.Neg(coeff)
	}

	precision := len(coeff.String())
	slot[0] = byte(precision)
	slot[1] = byte(scale)
	slot[2] = sign
	for i := 3; i < numericStructLen; i++ {
		slot[i] = 0
	}
	be := coeff.Bytes()
	for i, b := range be {
		slot[3+len(be)-1-i] = b
	}
}

// fixture allocates an env→conn→stmt chain against a fresh fake.
func newFakeStatement() (*fakeNative, *Tree, *Handle, *Handle, *Handle) {
	f := newFakeNative()
	tree := NewTree(f)
	env, _ := tree.Allocate(HandleEnv, nil)
	conn, _ := tree.Allocate(HandleConn, env)
	stmt, _ := tree.Allocate(HandleStmt, conn)
	return f, tree, env, conn, stmt
}

// Shorthand column metadata used across the tests.
func intCol(name string) ColumnMeta {
	return ColumnMeta{Name: name, TypeCode: SQL_INTEGER, Size: 4, Nullable: true}
}

func nvarcharCol(name string, size int) ColumnMeta {
	return ColumnMeta{Name: name, TypeCode: SQL_WVARCHAR, Size: size, Nullable: true}
}

func decimalCol(name string, precision, scale int) ColumnMeta {
	return ColumnMeta{Name: name, TypeCode: SQL_DECIMAL, Size: precision, Scale: int16(scale), Nullable: true}
}
