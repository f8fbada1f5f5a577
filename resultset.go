package odbx

import (
	"database/sql/driver"
	"errors"
	"io"
	"sync/atomic"

	"golang.org/x/text/encoding"
)

// fetchState is the batch loop's position in its life cycle.
type fetchState int32

const (
	stateIdle fetchState = iota
	stateBatchReady
	stateExhausted
	stateFailed
)

type options struct {
	batchCapacity int
	lobChunkSize  int
	narrowEnc     encoding.Encoding
}

// Option configures a result set at open time.
type Option func(*options)

// WithBatchCapacity fixes the number of rows requested per native
// fetch. Without it the capacity is derived from the per-row byte size.
func WithBatchCapacity(rows int) Option {
	return func(o *options) {
		if rows > 0 {
			o.batchCapacity = rows
		}
	}
}

// WithLobChunkSize sets the chunk size for the LOB streaming fallback.
func WithLobChunkSize(bytes int) Option {
	return func(o *options) {
		if bytes > 0 {
			// Keep chunks even so wide-character reads never split a
			// code unit.
			o.lobChunkSize = bytes &^ 1
		}
	}
}

// WithNarrowEncoding sets the character encoding used to decode narrow
// (non-wide) character columns. The default treats the bytes as UTF-8.
func WithNarrowEncoding(enc encoding.Encoding) Option {
	return func(o *options) { o.narrowEnc = enc }
}

// RowBatch is the outcome of one native fetch: the shared column
// buffers plus the number of rows actually filled. A batch stays
// readable only until the next fetch overwrites the buffers; exactly
// one batch per statement is live at a time.
type RowBatch struct {
	rs   *ResultSet
	cols []*ColumnBuffer
	gen  uint64

	// Rows is the number of rows the native fetch filled. It is less
	// than the batch capacity only on the final non-empty batch.
	Rows int
}

// ResultSet drives batched fetching and row materialization for one
// statement handle. It is not safe for concurrent use: the underlying
// buffers are mutated in place by every fetch.
type ResultSet struct {
	api      NativeAPI
	stmt     *Handle
	cols     []ColumnDescriptor
	dispatch []convertFunc
	bufs     *batchBuffers
	batch    RowBatch
	gen      uint64
	state    fetchState
	fetchErr error
	closed   int32
	opts     options
}

// OpenResultSet builds the descriptor cache, dispatch table and fetch
// buffers for the statement's current result set. The statement handle
// stays owned by the caller; Close releases only the buffers.
func OpenResultSet(api NativeAPI, stmt *Handle, opts ...Option) (*ResultSet, error) {
	if stmt == nil || !stmt.Live() {
		return nil, &StaleHandleError{Kind: HandleStmt}
	}
	if stmt.Kind() != HandleStmt {
		return nil, errors.New("odbx: result set requires a statement handle")
	}

	o := options{lobChunkSize: 32 * 1024}
	for _, opt := range opts {
		opt(&o)
	}

	cols, err := describeColumns(api, stmt)
	if err != nil {
		return nil, err
	}

	rs := &ResultSet{
		api:  api,
		stmt: stmt,
		opts: o,
	}
	rs.install(cols)
	return rs, nil
}

// install publishes a descriptor cache and everything derived from it.
// Called at open and again on every next-result-set transition.
func (rs *ResultSet) install(cols []ColumnDescriptor) {
	capacity := rs.opts.batchCapacity
	if capacity == 0 {
		capacity = batchCapacityFor(cols)
	}
	if rs.bufs != nil {
		rs.bufs.release()
	}
	rs.cols = cols
	rs.dispatch = buildDispatch(cols, &rs.opts)
	rs.bufs = newBatchBuffers(cols, capacity)
	rs.state = stateIdle
	rs.gen++ // any outstanding batch is now stale
}

// Columns returns the descriptor cache for the current result set.
func (rs *ResultSet) Columns() []ColumnDescriptor { return rs.cols }

// BatchCapacity returns the row count requested per native fetch, or
// zero once the result set is closed.
func (rs *ResultSet) BatchCapacity() int {
	if atomic.LoadInt32(&rs.closed) != 0 || rs.bufs == nil {
		return 0
	}
	return rs.bufs.capacity
}

// NextBatch runs one step of the batch fetch loop: a single native
// fetch filling the column buffers with up to BatchCapacity rows. It
// returns io.EOF once the result set is exhausted. A fetch failure is
// terminal; the error sticks and no further fetches are attempted.
//
// The returned batch aliases buffers that the next NextBatch call will
// overwrite: materialize it fully before fetching again.
func (rs *ResultSet) NextBatch() (*RowBatch, error) {
	if atomic.LoadInt32(&rs.closed) != 0 {
		return nil, ErrClosed
	}
	if !rs.stmt.Live() {
		return nil, &StaleHandleError{Kind: HandleStmt}
	}

	switch rs.state {
	case stateExhausted:
		return nil, io.EOF
	case stateFailed:
		return nil, rs.fetchErr
	}

	n, err := rs.api.FetchBatch(rs.stmt.Raw(), rs.bufs.cols, rs.bufs.capacity)
	if err != nil {
		rs.state = stateFailed
		rs.fetchErr = &FetchError{Err: err}
		return nil, rs.fetchErr
	}
	if n == 0 {
		rs.state = stateExhausted
		return nil, io.EOF
	}

	rs.state = stateBatchReady
	rs.gen++
	rs.batch = RowBatch{rs: rs, cols: rs.bufs.cols, gen: rs.gen, Rows: n}
	return &rs.batch, nil
}

// Value materializes a single cell of a live batch. NULL-ness is
// decided from the indicator alone, before any type-specific read, so
// whatever bytes sit in the slot of a NULL cell are never inspected.
func (rs *ResultSet) Value(b *RowBatch, row, col int) (driver.Value, error) {
	if b == nil || b.rs != rs || b.gen != rs.gen {
		return nil, errBatchSuperseded
	}
	if row < 0 || row >= b.Rows || col < 0 || col >= len(b.cols) {
		return nil, errors.New("odbx: cell index out of range")
	}
	buf := b.cols[col]
	if buf.IsNull(row) {
		return nil, nil
	}
	return rs.dispatch[col](rs, buf, row)
}

// Materialize converts one batch into rows. Values never alias the
// fetch buffers, so they stay valid after the next fetch.
//
// A ConversionError is scoped to its cell: the cell is left NULL, the
// rest of the row and batch still materialize, and the first such
// error is returned alongside all rows (its ordinal names the column).
// Any other failure mid-batch aborts the pass; the rows materialized
// before the failing row are returned with the error.
func (rs *ResultSet) Materialize(b *RowBatch) ([][]driver.Value, error) {
	if b == nil || b.rs != rs || b.gen != rs.gen {
		return nil, errBatchSuperseded
	}

	var firstErr error
	rows := make([][]driver.Value, 0, b.Rows)
	for i := 0; i < b.Rows; i++ {
		row := make([]driver.Value, len(b.cols))
		for c, buf := range b.cols {
			if buf.IsNull(i) {
				row[c] = nil
				continue
			}
			v, err := rs.dispatch[c](rs, buf, i)
			if err != nil {
				var conv *ConversionError
				if !errors.As(err, &conv) {
					return rows, err
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			row[c] = v
		}
		rows = append(rows, row)
	}
	return rows, firstErr
}

// FetchAll drains the result set: fetch, materialize, repeat until
// exhaustion.
func (rs *ResultSet) FetchAll() ([][]driver.Value, error) {
	var all [][]driver.Value
	for {
		batch, err := rs.NextBatch()
		if err == io.EOF {
			return all, nil
		}
		if err != nil {
			return all, err
		}
		rows, err := rs.Materialize(batch)
		all = append(all, rows...)
		if err != nil {
			return all, err
		}
	}
}

// NextResultSet advances the statement to its next result set, if the
// executed batch produced more than one, and rebuilds the descriptor
// cache, dispatch table and buffers for it. It reports whether another
// result set is available.
func (rs *ResultSet) NextResultSet() (bool, error) {
	if atomic.LoadInt32(&rs.closed) != 0 {
		return false, ErrClosed
	}
	if !rs.stmt.Live() {
		return false, &StaleHandleError{Kind: HandleStmt}
	}

	more, err := rs.api.MoreResults(rs.stmt.Raw())
	if err != nil {
		return false, &FetchError{Err: err}
	}
	if !more {
		return false, nil
	}

	cols, err := describeColumns(rs.api, rs.stmt)
	if err != nil {
		return false, err
	}
	rs.install(cols)
	rs.fetchErr = nil
	return true, nil
}

// Close releases the fetch buffers back to the pool. It does not
// release the statement handle; that stays with the handle tree.
// Close is idempotent.
func (rs *ResultSet) Close() error {
	if !atomic.CompareAndSwapInt32(&rs.closed, 0, 1) {
		return nil
	}
	rs.gen++ // invalidate any outstanding batch
	rs.bufs.release()
	rs.bufs = nil
	return nil
}
