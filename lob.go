package odbx

// streamLOB pulls a long value for one batch row and column directly
// through the native get-data primitive, in chunks, until the driver
// reports the value complete. row is the 0-based position inside the
// current batch; the native layer positions the block cursor there
// before the first read. Invoked only for LOB-classified columns whose
// indicator carried the truncation sentinel; classification is a
// descriptor property, never inferred per cell.
//
// A failure mid-stream discards every chunk read so far: a partial LOB
// looks exactly like a correct short value, so it must never escape.
func (rs *ResultSet) streamLOB(d *ColumnDescriptor, cType int16, row int) ([]byte, error) {
	if !rs.stmt.Live() {
		return nil, &StaleHandleError{Kind: HandleStmt}
	}

	chunk := make([]byte, rs.opts.lobChunkSize)
	var out []byte
	for {
		n, done, err := rs.api.GetData(rs.stmt.Raw(), row, d.Ordinal, cType, chunk)
		if err != nil {
			return nil, &TruncationError{Ordinal: d.Ordinal, Tag: d.Tag, Err: err}
		}
		out = append(out, chunk[:n]...)
		if done {
			return out, nil
		}
	}
}
