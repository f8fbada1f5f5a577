package odbx

import (
	"errors"
	"testing"
)

func TestReleaseParentInvalidatesChildren(t *testing.T) {
	f, tree, _, conn, stmt := newFakeStatement()

	if err := tree.Release(conn); err != nil {
		t.Fatalf("release conn: %v", err)
	}
	if f.frees[conn.Raw()] != 1 {
		t.Errorf("conn frees = %d, want 1", f.frees[conn.Raw()])
	}
	if f.frees[stmt.Raw()] != 0 {
		t.Errorf("stmt frees = %d, want 0 (invalidated by parent release)", f.frees[stmt.Raw()])
	}
	if conn.Live() || stmt.Live() {
		t.Errorf("liveness after parent release: conn=%v stmt=%v, want both dead", conn.Live(), stmt.Live())
	}

	// Releasing the already-dead child must not issue a second free.
	if err := tree.Release(stmt); err != nil {
		t.Fatalf("release dead stmt: %v", err)
	}
	if f.frees[stmt.Raw()] != 0 {
		t.Errorf("stmt frees after explicit release = %d, want 0", f.frees[stmt.Raw()])
	}
}

func TestReleaseChildThenParent(t *testing.T) {
	f, tree, _, conn, stmt := newFakeStatement()

	if err := tree.Release(stmt); err != nil {
		t.Fatalf("release stmt: %v", err)
	}
	if err := tree.Release(conn); err != nil {
		t.Fatalf("release conn: %v", err)
	}
	if f.frees[stmt.Raw()] != 1 || f.frees[conn.Raw()] != 1 {
		t.Errorf("frees: stmt=%d conn=%d, want 1 and 1", f.frees[stmt.Raw()], f.frees[conn.Raw()])
	}
}

func TestReleaseIdempotent(t *testing.T) {
	f, tree, _, _, stmt := newFakeStatement()

	for i := 0; i < 3; i++ {
		if err := tree.Release(stmt); err != nil {
			t.Fatalf("release #%d: %v", i+1, err)
		}
	}
	if f.frees[stmt.Raw()] != 1 {
		t.Errorf("frees = %d, want exactly 1", f.frees[stmt.Raw()])
	}
}

func TestAllocateOnDeadParent(t *testing.T) {
	_, tree, _, conn, _ := newFakeStatement()

	if err := tree.Release(conn); err != nil {
		t.Fatalf("release conn: %v", err)
	}
	_, err := tree.Allocate(HandleStmt, conn)
	var stale *StaleHandleError
	if !errors.As(err, &stale) {
		t.Fatalf("allocate on dead parent: err = %v, want StaleHandleError", err)
	}
	if stale.Kind != HandleConn {
		t.Errorf("stale kind = %v, want %v", stale.Kind, HandleConn)
	}
}

func TestFetchOnStaleStatement(t *testing.T) {
	f, tree, _, conn, stmt := newFakeStatement()
	f.addResult(stmt.Raw(), []ColumnMeta{intCol("n")}, [][]any{{int64(1)}})

	rs, err := OpenResultSet(f, stmt)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rs.Close()

	// Invalidate the whole subtree out from under the result set.
	if err := tree.Release(conn); err != nil {
		t.Fatalf("release conn: %v", err)
	}

	_, err = rs.NextBatch()
	var stale *StaleHandleError
	if !errors.As(err, &stale) {
		t.Fatalf("fetch on stale stmt: err = %v, want StaleHandleError", err)
	}
	if f.fetchCalls != 0 {
		t.Errorf("native fetch calls = %d, want 0", f.fetchCalls)
	}
}

func TestOpenOnNonStatementHandle(t *testing.T) {
	f, _, _, conn, _ := newFakeStatement()
	if _, err := OpenResultSet(f, conn); err == nil {
		t.Fatal("open on connection handle succeeded, want error")
	}
}
