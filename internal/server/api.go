package server

import (
	"errors"

	"github.com/skshohagmiah/kvquery/internal/kv"
	"github.com/skshohagmiah/kvquery/internal/query"
)

// queryRequest carries a query either as builder calls or as an already
// rendered string. Exactly one must be set; an empty call list is a
// match-all query.
type queryRequest struct {
	Calls   query.Program `json:"calls"`
	SQLLike *string       `json:"sqlLike"`
}

var errQueryShape = errors.New(`body must set exactly one of "calls" or "sqlLike"`)

func (r queryRequest) validate() error {
	if (r.Calls != nil) == (r.SQLLike != nil) {
		return errQueryShape
	}
	return nil
}

type queryResponse struct {
	SQLLike string     `json:"sqlLike"`
	Count   int        `json:"count"`
	Entries []kv.Entry `json:"entries"`
}

type sizeResponse struct {
	SQLLike string `json:"sqlLike"`
	Size    int    `json:"size"`
}

type renderResponse struct {
	SQLLike string `json:"sqlLike"`
}

type batchRequest struct {
	Put    []kv.Entry `json:"put"`
	Delete []string   `json:"delete"`
}

type resultSetResponse struct {
	ID       string `json:"id"`
	Count    int    `json:"count"`
	Position int    `json:"position"`
}

type entryResponse struct {
	Position int      `json:"position"`
	Entry    kv.Entry `json:"entry"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Method string `json:"method,omitempty"`
}
