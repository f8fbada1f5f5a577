package odbx

// TypeTag is the logical classification of a column. Every SQL type
// code maps to exactly one tag; codes this engine cannot convert map
// to TagUnsupported, which fails per cell at materialization time so
// the remaining columns stay usable.
type TypeTag int

const (
	TagUnsupported TypeTag = iota
	TagTinyInt
	TagSmallInt
	TagInteger
	TagBigInt
	TagReal
	TagDouble
	TagBit
	TagChar
	TagVarChar
	TagWChar
	TagWVarChar
	TagBinary
	TagVarBinary
	TagDecimal
	TagDate
	TagTime
	TagTimestamp
	TagTimestampOffset
	TagGUID
	TagCharLOB
	TagWCharLOB
	TagBinaryLOB
	TagXML
)

var tagNames = map[TypeTag]string{
	TagUnsupported:     "UNSUPPORTED",
	TagTinyInt:         "TINYINT",
	TagSmallInt:        "SMALLINT",
	TagInteger:         "INTEGER",
	TagBigInt:          "BIGINT",
	TagReal:            "REAL",
	TagDouble:          "DOUBLE",
	TagBit:             "BIT",
	TagChar:            "CHAR",
	TagVarChar:         "VARCHAR",
	TagWChar:           "NCHAR",
	TagWVarChar:        "NVARCHAR",
	TagBinary:          "BINARY",
	TagVarBinary:       "VARBINARY",
	TagDecimal:         "DECIMAL",
	TagDate:            "DATE",
	TagTime:            "TIME",
	TagTimestamp:       "DATETIME",
	TagTimestampOffset: "DATETIMEOFFSET",
	TagGUID:            "UNIQUEIDENTIFIER",
	TagCharLOB:         "TEXT",
	TagWCharLOB:        "NTEXT",
	TagBinaryLOB:       "IMAGE",
	TagXML:             "XML",
}

func (t TypeTag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsLOB reports whether values of this tag may exceed any pre-sized
// buffer and are eligible for the streaming fallback.
func (t TypeTag) IsLOB() bool {
	switch t {
	case TagCharLOB, TagWCharLOB, TagBinaryLOB, TagXML:
		return true
	}
	return false
}

// ColumnDescriptor is the per-column slice of the descriptor cache.
// Immutable once built; a new result set on the same statement gets a
// fresh cache.
type ColumnDescriptor struct {
	Ordinal  int // 1-based
	Name     string
	Tag      TypeTag
	TypeCode int16
	Size     int // declared size: characters for character types, bytes otherwise
	Scale    int16
	Nullable bool
}

// classify maps a driver type code (plus declared size) to a logical
// tag. The mapping is total. Bounded variable types whose declared
// size is zero are "MAX" columns and classify as LOBs.
func classify(code int16, size int) TypeTag {
	switch code {
	case SQL_CHAR:
		return TagChar
	case SQL_VARCHAR:
		if size == 0 {
			return TagCharLOB
		}
		return TagVarChar
	case SQL_LONGVARCHAR:
		return TagCharLOB
	case SQL_WCHAR:
		return TagWChar
	case SQL_WVARCHAR:
		if size == 0 {
			return TagWCharLOB
		}
		return TagWVarChar
	case SQL_WLONGVARCHAR:
		return TagWCharLOB
	case SQL_SS_XML:
		return TagXML
	case SQL_BINARY:
		return TagBinary
	case SQL_VARBINARY:
		if size == 0 {
			return TagBinaryLOB
		}
		return TagVarBinary
	case SQL_LONGVARBINARY:
		return TagBinaryLOB
	case SQL_TINYINT:
		return TagTinyInt
	case SQL_SMALLINT:
		return TagSmallInt
	case SQL_INTEGER:
		return TagInteger
	case SQL_BIGINT:
		return TagBigInt
	case SQL_REAL:
		return TagReal
	case SQL_FLOAT, SQL_DOUBLE:
		return TagDouble
	case SQL_BIT:
		return TagBit
	case SQL_DECIMAL, SQL_NUMERIC:
		return TagDecimal
	case SQL_TYPE_DATE:
		return TagDate
	case SQL_TIME, SQL_TYPE_TIME, SQL_SS_TIME2:
		return TagTime
	case SQL_DATETIME, SQL_TIMESTAMP, SQL_TYPE_TIMESTAMP:
		return TagTimestamp
	case SQL_SS_TIMESTAMPOFFSET:
		return TagTimestampOffset
	case SQL_GUID:
		return TagGUID
	}
	return TagUnsupported
}

// describeColumns builds the descriptor cache for the statement's
// current result set. On any metadata failure the whole result set is
// unusable: the error is returned and no partial cache escapes.
func describeColumns(api NativeAPI, stmt *Handle) ([]ColumnDescriptor, error) {
	if !stmt.Live() {
		return nil, &StaleHandleError{Kind: stmt.kind}
	}

	n, err := api.NumResultCols(stmt.Raw())
	if err != nil {
		return nil, &MetadataError{Err: err}
	}

	cols := make([]ColumnDescriptor, n)
	for i := 1; i <= n; i++ {
		meta, err := api.DescribeCol(stmt.Raw(), i)
		if err != nil {
			return nil, &MetadataError{Ordinal: i, Err: err}
		}
		cols[i-1] = ColumnDescriptor{
			Ordinal:  i,
			Name:     meta.Name,
			Tag:      classify(meta.TypeCode, meta.Size),
			TypeCode: meta.TypeCode,
			Size:     meta.Size,
			Scale:    meta.Scale,
			Nullable: meta.Nullable,
		}
	}
	return cols, nil
}
