package odbx

import "sync"

const (
	// lobSlotWidth is the provisional slot width for unbounded (LOB)
	// columns. Values longer than this trigger the streaming fallback
	// instead of growing the buffer.
	lobSlotWidth = 8 * 1024

	// minVarSlotWidth is the floor for variable-width slots when the
	// driver reports a zero or absurd declared size for a bounded
	// column; it avoids zero-length allocations.
	minVarSlotWidth = 256

	// maxBatchBytes caps the memory one fetch batch may pin across all
	// column buffers.
	maxBatchBytes = 16 * 1024 * 1024

	// defaultBatchCapacity is the row count requested per native fetch
	// when the row size does not force a smaller batch.
	defaultBatchCapacity = 1000

	// numericStructLen is the size of the driver's binary decimal
	// layout: precision, scale, sign, then 16 little-endian magnitude
	// bytes.
	numericStructLen = 19

	dateStructLen      = 6
	timeStructLen      = 6
	timestampStructLen = 16
	tsOffsetStructLen  = 20
	guidLen            = 16
)

// ColumnBuffer is one column's share of a fetch batch: a contiguous
// array of fixed-width slots plus a parallel indicator array carrying
// either a byte length or one of the two sentinels (NULL, truncated).
// The buffer is overwritten in place by every fetch, so materialized
// values must never alias Data.
type ColumnBuffer struct {
	Desc      *ColumnDescriptor
	CType     int16
	SlotWidth int
	Data      []byte
	Inds      []int64
}

// Slot returns the raw bytes of one row's slot.
func (b *ColumnBuffer) Slot(row int) []byte {
	off := row * b.SlotWidth
	return b.Data[off : off+b.SlotWidth]
}

// IsNull reports whether the row's indicator carries the NULL sentinel.
func (b *ColumnBuffer) IsNull(row int) bool {
	return b.Inds[row] == sqlNullData
}

// dataLen returns the valid byte count of the row's slot, and whether
// the value exceeded the slot (length unknown or longer than what was
// provisioned).
func (b *ColumnBuffer) dataLen(row int) (n int, truncated bool) {
	ind := b.Inds[row]
	if ind == sqlNoTotal {
		return 0, true
	}
	max := b.SlotWidth - terminatorLen(b.CType)
	if ind > int64(max) {
		return max, true
	}
	return int(ind), false
}

// terminatorLen returns the width of the null terminator the driver
// appends for character buffer types.
func terminatorLen(cType int16) int {
	switch cType {
	case SQL_C_CHAR:
		return 1
	case SQL_C_WCHAR:
		return 2
	}
	return 0
}

// slotWidthFor returns the fixed slot width for one column, including
// terminator space for character types.
func slotWidthFor(d *ColumnDescriptor) int {
	switch d.Tag {
	case TagTinyInt, TagBit:
		return 1
	case TagSmallInt:
		return 2
	case TagInteger, TagReal:
		return 4
	case TagBigInt, TagDouble:
		return 8
	case TagDecimal:
		return numericStructLen
	case TagDate:
		return dateStructLen
	case TagTime:
		return timeStructLen
	case TagTimestamp:
		return timestampStructLen
	case TagTimestampOffset:
		return tsOffsetStructLen
	case TagGUID:
		return guidLen
	case TagChar, TagVarChar:
		return clampVarSize(d.Size) + 1
	case TagWChar, TagWVarChar:
		return (clampVarSize(d.Size) + 1) * 2
	case TagBinary, TagVarBinary:
		return clampVarSize(d.Size)
	case TagCharLOB, TagBinaryLOB, TagWCharLOB, TagXML:
		return lobSlotWidth
	}
	// TagUnsupported still gets a slot so sibling columns line up; the
	// dispatch entry rejects every access.
	return minVarSlotWidth
}

func clampVarSize(size int) int {
	if size <= 0 {
		return minVarSlotWidth
	}
	return size
}

// cTypeFor returns the C buffer type a column is bound with.
func cTypeFor(tag TypeTag) int16 {
	switch tag {
	case TagTinyInt:
		return SQL_C_TINYINT
	case TagBit:
		return SQL_C_BIT
	case TagSmallInt:
		return SQL_C_SHORT
	case TagInteger:
		return SQL_C_LONG
	case TagBigInt:
		return SQL_C_SBIGINT
	case TagReal:
		return SQL_C_FLOAT
	case TagDouble:
		return SQL_C_DOUBLE
	case TagDecimal:
		return SQL_C_NUMERIC
	case TagDate:
		return SQL_C_TYPE_DATE
	case TagTime:
		return SQL_C_TYPE_TIME
	case TagTimestamp:
		return SQL_C_TYPE_TIMESTAMP
	case TagTimestampOffset:
		return SQL_C_SS_TIMESTAMPOFFSET
	case TagGUID:
		return SQL_C_GUID
	case TagChar, TagVarChar, TagCharLOB:
		return SQL_C_CHAR
	case TagWChar, TagWVarChar, TagWCharLOB, TagXML:
		return SQL_C_WCHAR
	}
	return SQL_C_BINARY
}

// batchBuffers is the full buffer set for one statement's fetch batch.
// It is reused in place across batches of the same result set, and
// recycled through a pool across result sets of the same shape.
type batchBuffers struct {
	cols     []*ColumnBuffer
	capacity int
}

var batchBufferPool sync.Pool

// newBatchBuffers returns a buffer set sized for the descriptors,
// reusing a pooled set when its shape (column widths and capacity)
// still fits.
func newBatchBuffers(descs []ColumnDescriptor, capacity int) *batchBuffers {
	if bb, ok := batchBufferPool.Get().(*batchBuffers); ok {
		if bb.fits(descs, capacity) {
			bb.rebind(descs)
			return bb
		}
	}

	bb := &batchBuffers{
		cols:     make([]*ColumnBuffer, len(descs)),
		capacity: capacity,
	}
	for i := range descs {
		d := &descs[i]
		w := slotWidthFor(d)
		bb.cols[i] = &ColumnBuffer{
			Desc:      d,
			CType:     cTypeFor(d.Tag),
			SlotWidth: w,
			Data:      make([]byte, w*capacity),
			Inds:      make([]int64, capacity),
		}
	}
	return bb
}

// fits reports whether a pooled set can serve the new shape without
// reallocating any column.
func (bb *batchBuffers) fits(descs []ColumnDescriptor, capacity int) bool {
	if len(bb.cols) != len(descs) || bb.capacity < capacity {
		return false
	}
	for i := range descs {
		if bb.cols[i].SlotWidth != slotWidthFor(&descs[i]) {
			return false
		}
	}
	return true
}

// rebind points a pooled set at fresh descriptors of the same shape.
func (bb *batchBuffers) rebind(descs []ColumnDescriptor) {
	for i := range descs {
		bb.cols[i].Desc = &descs[i]
		bb.cols[i].CType = cTypeFor(descs[i].Tag)
	}
}

// release returns the set to the pool for a future result set.
func (bb *batchBuffers) release() {
	if bb == nil {
		return
	}
	batchBufferPool.Put(bb)
}

// rowByteSize is the per-row cost of a batch across all columns,
// indicators included.
func rowByteSize(descs []ColumnDescriptor) int {
	size := 0
	for i := range descs {
		size += slotWidthFor(&descs[i]) + 8
	}
	return size
}

// batchCapacityFor derives a batch row count from the per-row byte
// cost so one batch never pins more than maxBatchBytes.
func batchCapacityFor(descs []ColumnDescriptor) int {
	row := rowByteSize(descs)
	if row == 0 {
		return defaultBatchCapacity
	}
	capacity := maxBatchBytes / row
	if capacity < 1 {
		return 1
	}
	if capacity > defaultBatchCapacity {
		return defaultBatchCapacity
	}
	return capacity
}
