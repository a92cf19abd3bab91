package sqlconnect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlconnect/driver"
)

func newTestConn(t *testing.T, fc *fakeConn, attempts int) *Conn {
	t.Helper()
	conn, err := Open("fake.db", testOptions(&fakeDriver{conn: fc}, attempts))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestOpenPropagatesDriverError(t *testing.T) {
	_, err := Open("/no/such/dir/x.db", testOptions(&fakeDriver{openErr: driver.ErrCannotOpen}, 1))
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestPrepare(t *testing.T) {
	t.Run("empty statement yields nil", func(t *testing.T) {
		fc := newFakeConn()
		fc.empty["   "] = true
		conn := newTestConn(t, fc, 1)

		stmt, err := conn.Prepare("   ")
		require.NoError(t, err)
		assert.Nil(t, stmt)
	})

	t.Run("invalid SQL propagates", func(t *testing.T) {
		fc := newFakeConn()
		fc.prepareErr["SELEKT"] = driver.ErrInvalidQuery
		conn := newTestConn(t, fc, 1)

		_, err := conn.Prepare("SELEKT")
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("closed connection rejected", func(t *testing.T) {
		conn := newTestConn(t, newFakeConn(), 1)
		require.NoError(t, conn.Close())

		_, err := conn.Prepare("SELECT 1")
		assert.ErrorIs(t, err, ErrConnClosed)
	})
}

func TestPrepareList(t *testing.T) {
	t.Run("prepares segments in order, skipping empties", func(t *testing.T) {
		fc := newFakeConn()
		fc.empty["  "] = true
		conn := newTestConn(t, fc, 1)

		stmts, err := conn.PrepareList("CREATE TABLE t (x);  ;INSERT INTO t VALUES (1)")
		require.NoError(t, err)
		require.Len(t, stmts, 2)
		assert.Equal(t, "CREATE TABLE t (x)", stmts[0].SQL())
		assert.Equal(t, "INSERT INTO t VALUES (1)", stmts[1].SQL())
	})

	t.Run("first failure closes earlier statements", func(t *testing.T) {
		fc := newFakeConn()
		fc.prepareErr["BAD"] = driver.ErrInvalidQuery
		conn := newTestConn(t, fc, 1)

		_, err := conn.PrepareList("GOOD;BAD")
		require.ErrorIs(t, err, ErrInvalidQuery)
		assert.Equal(t, 1, fc.stmts["GOOD"].finalizes)
	})
}

func TestExecuteOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("effect statement yields nil rows and rearms", func(t *testing.T) {
		fc := newFakeConn()
		st := fc.script("DELETE FROM t", &fakeStmt{steps: []step{doneStep()}})
		conn := newTestConn(t, fc, 1)

		stmt, err := conn.Prepare("DELETE FROM t")
		require.NoError(t, err)
		rows, err := conn.Execute(ctx, stmt)
		require.NoError(t, err)
		assert.Nil(t, rows)
		assert.Equal(t, 1, st.resets)
	})

	t.Run("empty result set yields a stream with no items", func(t *testing.T) {
		fc := newFakeConn()
		fc.script("SELECT x FROM t", newQueryStmt(1, []step{doneStep()}, nil))
		conn := newTestConn(t, fc, 1)

		stmt, err := conn.Prepare("SELECT x FROM t")
		require.NoError(t, err)
		rows, err := conn.Execute(ctx, stmt)
		require.NoError(t, err)
		require.NotNil(t, rows)
		defer func() { _ = rows.Close() }()

		assert.False(t, rows.Next(ctx))
		assert.NoError(t, rows.Err())
	})

	t.Run("first row is pre-materialized", func(t *testing.T) {
		fc := newFakeConn()
		fc.script("SELECT x FROM t", newQueryStmt(1,
			[]step{rowStep(), doneStep()},
			[][]any{{int64(7)}}))
		conn := newTestConn(t, fc, 1)

		stmt, err := conn.Prepare("SELECT x FROM t")
		require.NoError(t, err)
		rows, err := conn.Execute(ctx, stmt)
		require.NoError(t, err)
		require.NotNil(t, rows)
		defer func() { _ = rows.Close() }()

		require.True(t, rows.Next(ctx))
		var x int64
		require.NoError(t, rows.Scan(&x))
		assert.Equal(t, int64(7), x)
		assert.False(t, rows.Next(ctx))
		assert.NoError(t, rows.Err())
	})

	t.Run("nil statement is a no-op", func(t *testing.T) {
		conn := newTestConn(t, newFakeConn(), 1)
		rows, err := conn.Execute(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, rows)
	})
}

func TestExecuteBusyRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("busy on first step is retried invisibly", func(t *testing.T) {
		fc := newFakeConn()
		fc.script("INSERT INTO t VALUES (1)",
			&fakeStmt{steps: []step{busyStep(), busyStep(), doneStep()}})
		conn := newTestConn(t, fc, 5)

		stmt, err := conn.Prepare("INSERT INTO t VALUES (1)")
		require.NoError(t, err)
		rows, err := conn.Execute(ctx, stmt)
		require.NoError(t, err)
		assert.Nil(t, rows)
	})

	t.Run("exhausted schedule surfaces busy", func(t *testing.T) {
		fc := newFakeConn()
		st := fc.script("INSERT INTO t VALUES (1)",
			&fakeStmt{steps: []step{busyStep(), busyStep(), busyStep(), busyStep()}})
		conn := newTestConn(t, fc, 2)

		stmt, err := conn.Prepare("INSERT INTO t VALUES (1)")
		require.NoError(t, err)
		_, err = conn.Execute(ctx, stmt)
		assert.ErrorIs(t, err, ErrBusy)
		// 1 initial attempt + 2 retries
		assert.Equal(t, 3, st.stepIdx)
	})
}

func TestExecuteBindsPositionally(t *testing.T) {
	fc := newFakeConn()
	st := fc.script("INSERT INTO t VALUES (?, ?, ?, ?, ?)",
		&fakeStmt{steps: []step{doneStep()}})
	conn := newTestConn(t, fc, 1)

	stmt, err := conn.Prepare("INSERT INTO t VALUES (?, ?, ?, ?, ?)")
	require.NoError(t, err)
	_, err = conn.Execute(context.Background(), stmt,
		Integer(42), Float(3.5), Text("hi"), Blob([]byte{1, 2}), Null())
	require.NoError(t, err)

	// argument i lands in engine slot i+1
	assert.Equal(t, map[int]any{
		1: int64(42),
		2: 3.5,
		3: "hi",
		4: []byte{1, 2},
		5: nil,
	}, st.binds)
}

func TestExecuteRejectsActiveStream(t *testing.T) {
	ctx := context.Background()
	fc := newFakeConn()
	fc.script("SELECT x FROM t", newQueryStmt(1,
		[]step{rowStep(), rowStep(), doneStep()},
		[][]any{{int64(1)}, {int64(2)}}))
	conn := newTestConn(t, fc, 1)

	stmt, err := conn.Prepare("SELECT x FROM t")
	require.NoError(t, err)
	rows, err := conn.Execute(ctx, stmt)
	require.NoError(t, err)
	require.NotNil(t, rows)

	_, err = conn.Execute(ctx, stmt)
	assert.ErrorIs(t, err, ErrRowsActive)

	require.NoError(t, rows.Close())

	// after the stream closes the statement is executable again
	rows, err = conn.Execute(ctx, stmt)
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.NoError(t, rows.Close())
}

func TestExecSQL(t *testing.T) {
	ctx := context.Background()

	t.Run("stream owns and finalizes the statement", func(t *testing.T) {
		fc := newFakeConn()
		st := fc.script("SELECT x FROM t", newQueryStmt(1,
			[]step{rowStep(), doneStep()},
			[][]any{{int64(1)}}))
		conn := newTestConn(t, fc, 1)

		rows, err := conn.ExecSQL(ctx, "SELECT x FROM t")
		require.NoError(t, err)
		require.NotNil(t, rows)
		for rows.Next(ctx) {
		}
		require.NoError(t, rows.Err())
		require.NoError(t, rows.Close())
		assert.Equal(t, 1, st.finalizes)
	})

	t.Run("effect statement is finalized immediately", func(t *testing.T) {
		fc := newFakeConn()
		st := fc.script("DELETE FROM t", &fakeStmt{steps: []step{doneStep()}})
		conn := newTestConn(t, fc, 1)

		rows, err := conn.ExecSQL(ctx, "DELETE FROM t")
		require.NoError(t, err)
		assert.Nil(t, rows)
		assert.Equal(t, 1, st.finalizes)
	})

	t.Run("empty SQL yields nil", func(t *testing.T) {
		fc := newFakeConn()
		fc.empty[" "] = true
		conn := newTestConn(t, fc, 1)

		rows, err := conn.ExecSQL(ctx, " ")
		require.NoError(t, err)
		assert.Nil(t, rows)
	})
}

func TestExecScript(t *testing.T) {
	ctx := context.Background()

	t.Run("runs segments in source order", func(t *testing.T) {
		fc := newFakeConn()
		conn := newTestConn(t, fc, 1)

		err := conn.ExecScript(ctx, "CREATE TABLE t (x); INSERT INTO t VALUES (1); INSERT INTO t VALUES (2)")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"CREATE TABLE t (x)",
			" INSERT INTO t VALUES (1)",
			" INSERT INTO t VALUES (2)",
		}, fc.prepared)
	})

	t.Run("discards produced rows", func(t *testing.T) {
		fc := newFakeConn()
		st := fc.script("SELECT x FROM t", newQueryStmt(1,
			[]step{rowStep(), doneStep()},
			[][]any{{int64(1)}}))
		conn := newTestConn(t, fc, 1)

		require.NoError(t, conn.ExecScript(ctx, "SELECT x FROM t"))
		assert.Equal(t, 1, st.finalizes)
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		fc := newFakeConn()
		fc.prepareErr[" BAD"] = driver.ErrInvalidQuery
		conn := newTestConn(t, fc, 1)

		err := conn.ExecScript(ctx, "GOOD; BAD; NEVER")
		require.ErrorIs(t, err, ErrInvalidQuery)
		assert.Equal(t, []string{"GOOD", " BAD"}, fc.prepared)
	})
}

func TestConnCloseIdempotent(t *testing.T) {
	fc := newFakeConn()
	conn := newTestConn(t, fc, 1)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.True(t, fc.closed)
}
