// Package server exposes one sqlconnect connection over HTTP. The
// connection is single-owner, so every request takes the server's mutex
// before touching it; concurrency is serialized here, not in the library.
package server

import (
	"log/slog"
	"math"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"sqlconnect"
)

// Server handles query and exec requests against one connection.
type Server struct {
	conn *sqlconnect.Conn
	mu   *sync.Mutex
	log  *slog.Logger
}

// New creates a server around conn. The mutex serializes all access to the
// connection and may be shared with other components (e.g. maintenance
// jobs).
func New(conn *sqlconnect.Conn, mu *sync.Mutex, log *slog.Logger) *Server {
	return &Server{conn: conn, mu: mu, log: log}
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.health)
	v1 := r.Group("/v1")
	v1.POST("/query", s.query)
	v1.POST("/exec", s.exec)
	v1.POST("/script", s.script)
	return r
}

type sqlRequest struct {
	SQL  string `json:"sql" binding:"required"`
	Args []any  `json:"args"`
}

type queryResponse struct {
	Columns int     `json:"columns"`
	Rows    [][]any `json:"rows"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) query(c *gin.Context) {
	var req sqlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	args := bindArgs(req.Args)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.ExecSQL(c.Request.Context(), req.SQL, args...)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := queryResponse{Rows: [][]any{}}
	if rows != nil {
		defer rows.Close()
		resp.Columns = rows.ColumnCount()
		for rows.Next(c.Request.Context()) {
			row := rows.Row()
			out := make([]any, 0, row.Len())
			for {
				v, ok := row.Next()
				if !ok {
					break
				}
				out = append(out, v.Any())
			}
			resp.Rows = append(resp.Rows, out)
		}
		if err := rows.Err(); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) exec(c *gin.Context) {
	var req sqlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	args := bindArgs(req.Args)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.ExecSQL(c.Request.Context(), req.SQL, args...)
	if err != nil {
		s.fail(c, err)
		return
	}
	if rows != nil {
		// exec on a row-producing statement: discard the result set
		if err := rows.Close(); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) script(c *gin.Context) {
	var req sqlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.ExecScript(c.Request.Context(), req.SQL); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) fail(c *gin.Context, err error) {
	kind := sqlconnect.KindOf(err)
	s.log.Error("request failed",
		slog.String("kind", kind.String()),
		slog.Any("err", err),
	)
	c.JSON(statusOf(kind), gin.H{"error": err.Error(), "kind": kind.String()})
}

func statusOf(kind sqlconnect.Kind) int {
	switch kind {
	case sqlconnect.KindInvalidQuery, sqlconnect.KindConversion:
		return http.StatusBadRequest
	case sqlconnect.KindBusy:
		return http.StatusServiceUnavailable
	case sqlconnect.KindUsage:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// bindArgs maps JSON request arguments onto engine values. JSON numbers
// arrive as float64; integral ones bind as integers so row ids round-trip.
func bindArgs(in []any) []sqlconnect.Value {
	out := make([]sqlconnect.Value, 0, len(in))
	for _, a := range in {
		switch v := a.(type) {
		case nil:
			out = append(out, sqlconnect.Null())
		case bool:
			if v {
				out = append(out, sqlconnect.Integer(1))
			} else {
				out = append(out, sqlconnect.Integer(0))
			}
		case float64:
			if v == math.Trunc(v) && v >= -(1<<63) && v < 1<<63 {
				out = append(out, sqlconnect.Integer(int64(v)))
			} else {
				out = append(out, sqlconnect.Float(v))
			}
		case string:
			out = append(out, sqlconnect.Text(v))
		default:
			out = append(out, sqlconnect.Null())
		}
	}
	return out
}
