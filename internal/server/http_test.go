package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skshohagmiah/kvquery/internal/kv"
	"github.com/skshohagmiah/kvquery/internal/metrics"
	"github.com/skshohagmiah/kvquery/internal/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := storage.Open(storage.Options{InMemory: true})
	require.NoError(t, err)
	store, err := kv.New(st, kv.Options{DeviceID: "dev1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return New(store, Options{Metrics: metrics.New(metrics.Config{})})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","device":"dev1"}`, rec.Body.String())

	do(t, s, "PUT", "/v1/kv/a", `{"type":"STRING","value":"x"}`)
	rec = do(t, s, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kvq_operations_total")
}

// TestKVRoutes tests the single-key and batch endpoints
func TestKVRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "PUT", "/v1/kv/user:1", `{"type":"INTEGER","value":5}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, s, "GET", "/v1/kv/user:1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"key":"user:1","value":{"type":"INTEGER","value":5}}`, rec.Body.String())

	rec = do(t, s, "PUT", "/v1/kv/bad", `{"type":"BLOB","value":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/v1/kv/batch", `{"put":[{"key":"user:2","value":{"type":"BOOLEAN","value":true}},{"key":"other","value":{"value":"s"}}],"delete":["user:1"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, "GET", "/v1/kv?prefix=user:", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count   int        `json:"count"`
		Entries []kv.Entry `json:"entries"`
	}
	decode(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "user:2", list.Entries[0].Key)
	assert.True(t, list.Entries[0].Value.Bool())

	rec = do(t, s, "DELETE", "/v1/kv/user:2", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, "GET", "/v1/kv/user:2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func seed(t *testing.T, s *Server) {
	t.Helper()
	rec := do(t, s, "POST", "/v1/kv/batch", `{"put":[
		{"key":"u1","value":{"type":"STRING","value":"{\"name\":\"Alice\",\"age\":30}"}},
		{"key":"u2","value":{"type":"STRING","value":"{\"name\":\"Bob\",\"age\":25}"}},
		{"key":"u3","value":{"type":"STRING","value":"{\"name\":\"Carol\",\"age\":35}"}}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// TestQueryRoutes tests both request shapes and the size and render endpoints
func TestQueryRoutes(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)

	rec := do(t, s, "POST", "/v1/query", `{"calls":[["greaterThan","$.age",26],["orderByDesc","$.age"]]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp queryResponse
	decode(t, rec, &resp)
	assert.Equal(t, "^GREATER $.age DOUBLE 26 ^DESC $.age", resp.SQLLike)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "u3", resp.Entries[0].Key)
	assert.Equal(t, "u1", resp.Entries[1].Key)

	rec = do(t, s, "POST", "/v1/query", `{"sqlLike":"^LIKE $.name B% ^LIMIT 5 0"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "u2", resp.Entries[0].Key)

	rec = do(t, s, "POST", "/v1/query/size", `{"calls":[["lessThan","age",31]]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sqlLike":"^LESS age DOUBLE 31","size":2}`, rec.Body.String())

	rec = do(t, s, "POST", "/v1/query/size", `{"sqlLike":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sqlLike":"","size":3}`, rec.Body.String())

	rec = do(t, s, "POST", "/v1/query/render", `{"calls":[["prefixKey","u"],["isNotNull","name"],["limit",1,0]]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sqlLike":"^KEY_PREFIX u ^IS_NOT_NULL name ^LIMIT 1 0"}`, rec.Body.String())
}

// TestEmptyCallProgram tests that an empty call list is a match-all query
func TestEmptyCallProgram(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)

	rec := do(t, s, "POST", "/v1/query", `{"calls":[]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp queryResponse
	decode(t, rec, &resp)
	assert.Equal(t, "", resp.SQLLike)
	assert.Equal(t, 3, resp.Count)

	rec = do(t, s, "POST", "/v1/query/size", `{"calls":[]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"sqlLike":"","size":3}`, rec.Body.String())

	rec = do(t, s, "POST", "/v1/query/render", `{"calls":[]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"sqlLike":""}`, rec.Body.String())

	rec = do(t, s, "POST", "/v1/query", `{"calls":[],"sqlLike":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/v1/query", `{"calls":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryErrors(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "POST", "/v1/query", `{"calls":[["equalTo","age"]]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var e errorResponse
	decode(t, rec, &e)
	assert.Equal(t, "equalTo", e.Method)

	rec = do(t, s, "POST", "/v1/query", `{"calls":[["inNumber","n",[]]]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	decode(t, rec, &e)
	assert.Equal(t, "inNumber", e.Method)

	rec = do(t, s, "POST", "/v1/query", `{"calls":[["nope"]]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/v1/query", `{"sqlLike":"^EQUAL"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/v1/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/v1/query", `{"calls":[["and"]],"sqlLike":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/v1/query", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/v1/query/render", `{"sqlLike":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultSetRoutes(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)

	rec := do(t, s, "POST", "/v1/resultsets", `{"calls":[["orderByAsc","name"]]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rs resultSetResponse
	decode(t, rec, &rs)
	assert.Equal(t, 3, rs.Count)
	assert.Equal(t, -1, rs.Position)

	rec = do(t, s, "GET", "/v1/resultsets/"+rs.ID+"/entries/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var er entryResponse
	decode(t, rec, &er)
	assert.Equal(t, 1, er.Position)
	assert.Equal(t, "u2", er.Entry.Key)

	rec = do(t, s, "GET", "/v1/resultsets/"+rs.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &rs)
	assert.Equal(t, 1, rs.Position)

	rec = do(t, s, "GET", "/v1/resultsets/"+rs.ID+"/entries/9", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, "GET", "/v1/resultsets/"+rs.ID+"/entries/x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "DELETE", "/v1/resultsets/"+rs.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, "DELETE", "/v1/resultsets/"+rs.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for i := 0; i < kv.MaxResultSets; i++ {
		rec = do(t, s, "POST", "/v1/resultsets", `{"calls":[["and"]]}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec = do(t, s, "POST", "/v1/resultsets", `{"calls":[["and"]]}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestDeviceRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "PUT", "/v1/devices/peer/kv/k", `{"type":"DOUBLE","value":1.5}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, s, "GET", "/v1/devices/peer/kv/k", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"key":"k","value":{"type":"DOUBLE","value":1.5}}`, rec.Body.String())

	rec = do(t, s, "GET", "/v1/kv/k", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, "POST", "/v1/devices/peer/query", `{"calls":[["greaterThan","$value",1]]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp queryResponse
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)

	rec = do(t, s, "POST", "/v1/devices/peer/query", `{"sqlLike":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)

	rec = do(t, s, "DELETE", "/v1/devices/peer", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, "GET", "/v1/devices/peer/kv/k", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, "DELETE", "/v1/devices/dev1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
