package odbx

import (
	"database/sql/driver"
	"encoding/binary"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
)

// convertFunc produces one application-level value from one cell of a
// column buffer. The NULL check happens before dispatch, uniformly for
// every tag, so converters only ever see non-NULL cells.
type convertFunc func(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error)

var (
	errValueTooLong     = errors.New("value exceeds the provisioned buffer")
	errUnsupportedType  = errors.New("unsupported column type")
	errOddWideLength    = errors.New("wide character data has odd byte length")
	errDecimalPrecision = errors.New("decimal precision outside 1..38")
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func convErr(d *ColumnDescriptor, err error) error {
	return &ConversionError{Ordinal: d.Ordinal, Tag: d.Tag, Err: err}
}

// buildDispatch binds one converter per column. Built once per result
// set; the per-row hot loop then runs direct calls instead of a type
// switch per cell. Unsupported columns get a converter that fails at
// access time so the remaining columns stay usable.
func buildDispatch(cols []ColumnDescriptor, o *options) []convertFunc {
	dispatch := make([]convertFunc, len(cols))
	for i := range cols {
		dispatch[i] = converterFor(cols[i].Tag)
	}
	return dispatch
}

func converterFor(tag TypeTag) convertFunc {
	switch tag {
	case TagTinyInt:
		return convertTinyInt
	case TagSmallInt:
		return convertSmallInt
	case TagInteger:
		return convertInteger
	case TagBigInt:
		return convertBigInt
	case TagReal:
		return convertReal
	case TagDouble:
		return convertDouble
	case TagBit:
		return convertBit
	case TagChar, TagVarChar, TagCharLOB:
		return convertNarrow
	case TagWChar, TagWVarChar, TagWCharLOB, TagXML:
		return convertWide
	case TagBinary, TagVarBinary, TagBinaryLOB:
		return convertBinary
	case TagDecimal:
		return convertDecimal
	case TagDate:
		return convertDate
	case TagTime:
		return convertTime
	case TagTimestamp:
		return convertTimestamp
	case TagTimestampOffset:
		return convertTimestampOffset
	case TagGUID:
		return convertGUID
	}
	return convertUnsupported
}

func convertUnsupported(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	return nil, convErr(b.Desc, errUnsupportedType)
}

// Fixed-width numerics read straight from the slot. Slots hold the
// native little-endian representation the driver wrote.

func convertTinyInt(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	return int64(int8(b.Slot(row)[0])), nil
}

func convertSmallInt(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	return int64(int16(binary.LittleEndian.Uint16(b.Slot(row)))), nil
}

func convertInteger(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	return int64(int32(binary.LittleEndian.Uint32(b.Slot(row)))), nil
}

func convertBigInt(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	return int64(binary.LittleEndian.Uint64(b.Slot(row))), nil
}

func convertReal(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b.Slot(row)))), nil
}

func convertDouble(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	return math.Float64frombits(binary.LittleEndian.Uint64(b.Slot(row))), nil
}

func convertBit(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	return b.Slot(row)[0] != 0, nil
}

// Character and binary values honor the truncation sentinel: LOB
// columns escalate to the streaming fallback, bounded columns fail —
// a bounded column longer than its declared size is driver misbehavior,
// not a LOB.

func convertNarrow(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	raw, err := cellBytes(rs, b, row)
	if err != nil {
		return nil, err
	}
	if rs.opts.narrowEnc == nil {
		return string(raw), nil
	}
	out, err := rs.opts.narrowEnc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, convErr(b.Desc, err)
	}
	return string(out), nil
}

func convertWide(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	raw, err := cellBytes(rs, b, row)
	if err != nil {
		return nil, err
	}
	// The indicator counts bytes; with 2-byte code units that is
	// exactly 2x the code-unit count, so an odd length is malformed.
	if len(raw)%2 != 0 {
		return nil, convErr(b.Desc, errOddWideLength)
	}
	out, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, convErr(b.Desc, err)
	}
	return string(out), nil
}

func convertBinary(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	raw, err := cellBytes(rs, b, row)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), raw...), nil
}

// cellBytes returns the valid bytes of a variable-width cell,
// escalating to the LOB fallback when the indicator carries the
// truncation sentinel. The returned slice may alias the fetch buffer;
// converters must copy before returning.
func cellBytes(rs *ResultSet, b *ColumnBuffer, row int) ([]byte, error) {
	n, truncated := b.dataLen(row)
	if !truncated {
		return b.Slot(row)[:n], nil
	}
	if !b.Desc.Tag.IsLOB() {
		return nil, convErr(b.Desc, errValueTooLong)
	}
	return rs.streamLOB(b.Desc, b.CType, row)
}

// convertDecimal parses the driver's binary numeric layout: precision,
// scale, sign, then a 16-byte little-endian magnitude. Exact for every
// precision up to 38; the scale is applied as a power of ten, never
// through a float.
func convertDecimal(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	s := b.Slot(row)
	precision := int(s[0])
	scale := int32(int8(s[1]))
	if precision < 1 || precision > 38 {
		return nil, convErr(b.Desc, errDecimalPrecision)
	}

	// Magnitude bytes are little-endian; big.Int wants big-endian.
	var be [16]byte
	for i := 0; i < 16; i++ {
		be[i] = s[18-i]
	}
	mag := new(big.Int).SetBytes(be[:])
	if s[2] == 0 {
		mag.Neg(mag)
	}
	return decimal.NewFromBigInt(mag, -scale), nil
}

// Date and time structs are unpacked field by field from the slot
// layout the driver wrote (all fields little-endian).

func convertDate(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	s := b.Slot(row)
	return civil.Date{
		Year:  int(int16(binary.LittleEndian.Uint16(s[0:]))),
		Month: time.Month(binary.LittleEndian.Uint16(s[2:])),
		Day:   int(binary.LittleEndian.Uint16(s[4:])),
	}, nil
}

func convertTime(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	s := b.Slot(row)
	return civil.Time{
		Hour:   int(binary.LittleEndian.Uint16(s[0:])),
		Minute: int(binary.LittleEndian.Uint16(s[2:])),
		Second: int(binary.LittleEndian.Uint16(s[4:])),
	}, nil
}

// timestampFields decodes the common 16-byte timestamp layout:
// year, month, day, hour, minute, second (2 bytes each) and a 4-byte
// nanosecond fraction.
func timestampFields(s []byte) (y int, mo time.Month, d, h, mi, sec, ns int) {
	y = int(int16(binary.LittleEndian.Uint16(s[0:])))
	mo = time.Month(binary.LittleEndian.Uint16(s[2:]))
	d = int(binary.LittleEndian.Uint16(s[4:]))
	h = int(binary.LittleEndian.Uint16(s[6:]))
	mi = int(binary.LittleEndian.Uint16(s[8:]))
	sec = int(binary.LittleEndian.Uint16(s[10:]))
	ns = int(binary.LittleEndian.Uint32(s[12:]))
	return
}

func convertTimestamp(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	y, mo, d, h, mi, sec, ns := timestampFields(b.Slot(row))
	return time.Date(y, mo, d, h, mi, sec, ns, time.UTC), nil
}

func convertTimestampOffset(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	s := b.Slot(row)
	y, mo, d, h, mi, sec, ns := timestampFields(s)
	// Offset hours and minutes carry the same sign.
	tzh := int(int16(binary.LittleEndian.Uint16(s[16:])))
	tzm := int(int16(binary.LittleEndian.Uint16(s[18:])))
	loc := time.FixedZone("", tzh*3600+tzm*60)
	return time.Date(y, mo, d, h, mi, sec, ns, loc), nil
}

// convertGUID corrects the driver's byte order: the first three GUID
// fields sit in the slot little-endian, while the canonical form (and
// uuid.UUID) is big-endian throughout.
func convertGUID(rs *ResultSet, b *ColumnBuffer, row int) (driver.Value, error) {
	s := b.Slot(row)
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = s[3], s[2], s[1], s[0]
	u[4], u[5] = s[5], s[4]
	u[6], u[7] = s[7], s[6]
	copy(u[8:], s[8:16])
	return u, nil
}
