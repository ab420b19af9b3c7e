// Package server exposes a kv.Store over HTTP with gin.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skshohagmiah/kvquery/internal/kv"
	"github.com/skshohagmiah/kvquery/internal/metrics"
	"github.com/skshohagmiah/kvquery/internal/query"
)

// Store is the part of kv.Store the HTTP API needs.
type Store interface {
	DeviceID() string
	Put(ctx context.Context, key string, value kv.Value) error
	Get(ctx context.Context, key string) (kv.Value, error)
	Delete(ctx context.Context, key string) error
	PutBatch(ctx context.Context, entries []kv.Entry) error
	DeleteBatch(ctx context.Context, keys []string) error
	PutForDevice(ctx context.Context, deviceID, key string, value kv.Value) error
	GetDevice(ctx context.Context, deviceID, key string) (kv.Value, error)
	GetEntries(ctx context.Context, prefix string) ([]kv.Entry, error)
	GetEntriesByQuery(ctx context.Context, q *query.Query) ([]kv.Entry, error)
	GetEntriesForDevice(ctx context.Context, deviceID string, q *query.Query) ([]kv.Entry, error)
	GetResultSize(ctx context.Context, q *query.Query) (int, error)
	GetResultSet(ctx context.Context, q *query.Query) (*kv.ResultSet, error)
	ResultSet(id string) (*kv.ResultSet, error)
	CloseResultSet(rs *kv.ResultSet) error
	RemoveDeviceData(ctx context.Context, deviceID string) error
	PlanSQL(sqlLike string) (*query.Plan, error)
	Execute(ctx context.Context, deviceID string, plan *query.Plan) ([]kv.Entry, error)
}

type Options struct {
	Addr    string
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server is the HTTP front end of the store.
type Server struct {
	store   Store
	log     *zap.Logger
	metrics *metrics.Metrics
	engine  *gin.Engine
	http    *http.Server
}

func New(store Store, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	engine := gin.New()
	engine.Use(ginzap.Ginzap(log, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(log, true))

	s := &Server{
		store:   store,
		log:     log,
		metrics: opts.Metrics,
		engine:  engine,
	}
	s.routes()

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.engine.Group("/v1")

	v1.GET("/kv", s.handleListEntries)
	v1.POST("/kv/batch", s.handleBatch)
	v1.PUT("/kv/:key", s.handlePut)
	v1.GET("/kv/:key", s.handleGet)
	v1.DELETE("/kv/:key", s.handleDelete)

	v1.POST("/query", s.handleQuery)
	v1.POST("/query/size", s.handleQuerySize)
	v1.POST("/query/render", s.handleRender)

	v1.POST("/resultsets", s.handleOpenResultSet)
	v1.GET("/resultsets/:id", s.handleResultSetInfo)
	v1.GET("/resultsets/:id/entries/:pos", s.handleResultSetEntry)
	v1.DELETE("/resultsets/:id", s.handleCloseResultSet)

	v1.PUT("/devices/:id/kv/:key", s.handleDevicePut)
	v1.GET("/devices/:id/kv/:key", s.handleDeviceGet)
	v1.POST("/devices/:id/query", s.handleDeviceQuery)
	v1.DELETE("/devices/:id", s.handleRemoveDevice)
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.log.Info("HTTP API listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "device": s.store.DeviceID()})
}

// fail maps store and query errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	var invalid *query.InvalidArgumentError
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Method: invalid.Method})
	case errors.Is(err, kv.ErrKeyNotFound),
		errors.Is(err, kv.ErrResultSetNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, kv.ErrValueTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.Is(err, kv.ErrTooManyResultSets):
		c.JSON(http.StatusTooManyRequests, errorResponse{Error: err.Error()})
	case errors.Is(err, kv.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, query.ErrMalformedQuery),
		errors.Is(err, kv.ErrInvalidKey),
		errors.Is(err, kv.ErrInvalidDevice),
		errors.Is(err, kv.ErrBatchTooLarge),
		errors.Is(err, kv.ErrQueryTooLong),
		errors.Is(err, kv.ErrNoEntry),
		errors.Is(err, errQueryShape):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}
