package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlconnect"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := sqlconnect.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return New(conn, &sync.Mutex{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func post(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExecAndQuery(t *testing.T) {
	s := newTestServer(t)

	rec := post(t, s, "/v1/exec", gin.H{"sql": "CREATE TABLE t (id INTEGER, name TEXT)"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, s, "/v1/exec", gin.H{
		"sql":  "INSERT INTO t VALUES (?, ?)",
		"args": []any{1, "one"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, s, "/v1/query", gin.H{"sql": "SELECT id, name FROM t"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Columns int     `json:"columns"`
		Rows    [][]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Columns)
	require.Len(t, resp.Rows, 1)
	// JSON numbers decode as float64
	assert.Equal(t, float64(1), resp.Rows[0][0])
	assert.Equal(t, "one", resp.Rows[0][1])
}

func TestQueryEmptyResult(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, post(t, s, "/v1/exec", gin.H{"sql": "CREATE TABLE t (x)"}).Code)

	rec := post(t, s, "/v1/query", gin.H{"sql": "SELECT x FROM t"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Rows [][]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Rows)
}

func TestScript(t *testing.T) {
	s := newTestServer(t)

	rec := post(t, s, "/v1/script", gin.H{
		"sql": "CREATE TABLE t (x); INSERT INTO t VALUES (1); INSERT INTO t VALUES (2)",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, s, "/v1/query", gin.H{"sql": "SELECT count(*) FROM t"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Rows [][]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, float64(2), resp.Rows[0][0])
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	t.Run("missing sql field", func(t *testing.T) {
		rec := post(t, s, "/v1/query", gin.H{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid query", func(t *testing.T) {
		rec := post(t, s, "/v1/query", gin.H{"sql": "SELEKT 1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp struct {
			Kind string `json:"kind"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "InvalidQuery", resp.Kind)
	})
}

func TestBindArgs(t *testing.T) {
	got := bindArgs([]any{
		nil,
		true,
		false,
		float64(3),      // integral JSON number
		float64(3.5),    // fractional JSON number
		"text",
		[]any{"nested"}, // unsupported shapes bind as null
	})

	want := []sqlconnect.Value{
		sqlconnect.Null(),
		sqlconnect.Integer(1),
		sqlconnect.Integer(0),
		sqlconnect.Integer(3),
		sqlconnect.Float(3.5),
		sqlconnect.Text("text"),
		sqlconnect.Null(),
	}
	assert.Equal(t, want, got)
}
