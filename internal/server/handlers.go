package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skshohagmiah/kvquery/internal/kv"
	"github.com/skshohagmiah/kvquery/internal/query"
)

func (s *Server) handlePut(c *gin.Context) {
	var v kv.Value
	if err := c.ShouldBindJSON(&v); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.store.Put(c.Request.Context(), c.Param("key"), v); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGet(c *gin.Context) {
	v, err := s.store.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, kv.Entry{Key: c.Param("key"), Value: v})
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("key")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleBatch applies puts, then deletes. Each half is atomic on its own.
func (s *Server) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if len(req.Put) > 0 {
		if err := s.store.PutBatch(ctx, req.Put); err != nil {
			s.fail(c, err)
			return
		}
	}
	if len(req.Delete) > 0 {
		if err := s.store.DeleteBatch(ctx, req.Delete); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"put": len(req.Put), "deleted": len(req.Delete)})
}

func (s *Server) handleListEntries(c *gin.Context) {
	entries, err := s.store.GetEntries(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if entries == nil {
		entries = []kv.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "entries": entries})
}

// bindQuery reads a query request. It returns the built query for call
// programs, or nil plus the rendered string for sqlLike bodies.
func (s *Server) bindQuery(c *gin.Context) (*query.Query, string, bool) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return nil, "", false
	}
	if err := req.validate(); err != nil {
		s.fail(c, err)
		return nil, "", false
	}
	if req.SQLLike != nil {
		return nil, *req.SQLLike, true
	}
	q, err := req.Calls.Build()
	if err != nil {
		s.fail(c, err)
		return nil, "", false
	}
	return q, q.SQLLike(), true
}

func (s *Server) runQuery(c *gin.Context, deviceID string) ([]kv.Entry, string, bool) {
	q, sqlLike, ok := s.bindQuery(c)
	if !ok {
		return nil, "", false
	}

	ctx := c.Request.Context()
	var entries []kv.Entry
	var err error
	switch {
	case q == nil:
		var plan *query.Plan
		plan, err = s.store.PlanSQL(sqlLike)
		if err == nil {
			entries, err = s.store.Execute(ctx, deviceID, plan)
		}
	case deviceID != "":
		entries, err = s.store.GetEntriesForDevice(ctx, deviceID, q)
	default:
		entries, err = s.store.GetEntriesByQuery(ctx, q)
	}
	if err != nil {
		s.fail(c, err)
		return nil, "", false
	}
	if entries == nil {
		entries = []kv.Entry{}
	}
	return entries, sqlLike, true
}

func (s *Server) handleQuery(c *gin.Context) {
	entries, sqlLike, ok := s.runQuery(c, "")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, queryResponse{SQLLike: sqlLike, Count: len(entries), Entries: entries})
}

func (s *Server) handleQuerySize(c *gin.Context) {
	q, sqlLike, ok := s.bindQuery(c)
	if !ok {
		return
	}
	if q == nil {
		plan, err := s.store.PlanSQL(sqlLike)
		if err != nil {
			s.fail(c, err)
			return
		}
		entries, err := s.store.Execute(c.Request.Context(), "", plan)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, sizeResponse{SQLLike: sqlLike, Size: len(entries)})
		return
	}
	n, err := s.store.GetResultSize(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sizeResponse{SQLLike: sqlLike, Size: n})
}

// handleRender builds a call program and returns its rendered form
// without touching the store.
func (s *Server) handleRender(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.SQLLike != nil {
		badRequest(c, errors.New("render takes \"calls\" only"))
		return
	}
	q, err := req.Calls.Build()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, renderResponse{SQLLike: q.SQLLike()})
}

func (s *Server) handleOpenResultSet(c *gin.Context) {
	q, _, ok := s.bindQuery(c)
	if !ok {
		return
	}
	if q == nil {
		badRequest(c, errors.New("result sets take \"calls\" only"))
		return
	}
	rs, err := s.store.GetResultSet(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resultSetResponse{ID: rs.ID(), Count: rs.Count(), Position: rs.Position()})
}

func (s *Server) handleResultSetInfo(c *gin.Context) {
	rs, err := s.store.ResultSet(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resultSetResponse{ID: rs.ID(), Count: rs.Count(), Position: rs.Position()})
}

// handleResultSetEntry moves the cursor to :pos and returns the entry there.
func (s *Server) handleResultSetEntry(c *gin.Context) {
	pos, err := strconv.Atoi(c.Param("pos"))
	if err != nil {
		badRequest(c, errors.New("position must be an integer"))
		return
	}
	rs, err := s.store.ResultSet(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	rs.MoveToPosition(pos)
	e, err := rs.Entry()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entryResponse{Position: rs.Position(), Entry: e})
}

func (s *Server) handleCloseResultSet(c *gin.Context) {
	rs, err := s.store.ResultSet(c.Param("id"))
	if err == nil {
		err = s.store.CloseResultSet(rs)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDevicePut(c *gin.Context) {
	var v kv.Value
	if err := c.ShouldBindJSON(&v); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.store.PutForDevice(c.Request.Context(), c.Param("id"), c.Param("key"), v); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeviceGet(c *gin.Context) {
	v, err := s.store.GetDevice(c.Request.Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, kv.Entry{Key: c.Param("key"), Value: v})
}

func (s *Server) handleDeviceQuery(c *gin.Context) {
	entries, sqlLike, ok := s.runQuery(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, queryResponse{SQLLike: sqlLike, Count: len(entries), Entries: entries})
}

func (s *Server) handleRemoveDevice(c *gin.Context) {
	if err := s.store.RemoveDeviceData(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
