package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skshohagmiah/kvquery/internal/query"
)

// ResultSet is a cursor over a snapshot of query results. The position starts
// before the first entry (-1) and ranges up to Count(), which is after the last.
type ResultSet struct {
	id string

	mu      sync.Mutex
	entries []Entry
	pos     int
	closed  bool
}

// GetResultSet runs q and opens a cursor over its results. At most
// MaxResultSets may be open at once.
func (s *Store) GetResultSet(ctx context.Context, q *query.Query) (rs *ResultSet, err error) {
	defer s.observe("get_result_set", time.Now(), &err)
	plan, err := s.Plan(q)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	open := len(s.resultSets)
	s.mu.Unlock()
	if open >= MaxResultSets {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyResultSets, MaxResultSets)
	}

	entries, err := s.Execute(ctx, "", plan)
	if err != nil {
		return nil, err
	}

	rs = &ResultSet{id: uuid.New().String(), entries: entries, pos: -1}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(s.resultSets) >= MaxResultSets {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyResultSets, MaxResultSets)
	}
	s.resultSets[rs.id] = rs
	s.metrics.SetOpenResultSets(len(s.resultSets))
	return rs, nil
}

// ResultSet looks up an open result set by ID.
func (s *Store) ResultSet(id string) (*ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.resultSets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResultSetNotFound, id)
	}
	return rs, nil
}

// CloseResultSet releases rs. Closing it twice fails.
func (s *Store) CloseResultSet(rs *ResultSet) error {
	if rs == nil {
		return ErrResultSetNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultSets[rs.id] != rs {
		return fmt.Errorf("%w: %s", ErrResultSetNotFound, rs.id)
	}
	delete(s.resultSets, rs.id)
	rs.close()
	s.metrics.SetOpenResultSets(len(s.resultSets))
	return nil
}

func (rs *ResultSet) close() {
	rs.mu.Lock()
	rs.closed = true
	rs.entries = nil
	rs.mu.Unlock()
}

func (rs *ResultSet) ID() string { return rs.id }

func (rs *ResultSet) Count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.entries)
}

func (rs *ResultSet) Position() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.pos
}

// moveTo clamps p into [-1, Count] and reports whether it landed on an entry.
func (rs *ResultSet) moveTo(p int) bool {
	n := len(rs.entries)
	switch {
	case p < 0:
		rs.pos = -1
	case p >= n:
		rs.pos = n
	default:
		rs.pos = p
	}
	return rs.pos >= 0 && rs.pos < n
}

func (rs *ResultSet) MoveToFirst() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.moveTo(0)
}

func (rs *ResultSet) MoveToLast() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.entries) == 0 {
		return rs.moveTo(-1)
	}
	return rs.moveTo(len(rs.entries) - 1)
}

func (rs *ResultSet) MoveToNext() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.moveTo(rs.pos + 1)
}

func (rs *ResultSet) MoveToPrevious() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.moveTo(rs.pos - 1)
}

// Move shifts the position by offset, which may be negative.
func (rs *ResultSet) Move(offset int) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.moveTo(rs.pos + offset)
}

func (rs *ResultSet) MoveToPosition(p int) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.moveTo(p)
}

func (rs *ResultSet) IsFirst() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.entries) > 0 && rs.pos == 0
}

func (rs *ResultSet) IsLast() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.entries) > 0 && rs.pos == len(rs.entries)-1
}

// IsBeforeFirst is always true for an empty result set.
func (rs *ResultSet) IsBeforeFirst() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.entries) == 0 || rs.pos < 0
}

// IsAfterLast is always true for an empty result set.
func (rs *ResultSet) IsAfterLast() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.entries) == 0 || rs.pos >= len(rs.entries)
}

// Entry returns the entry at the current position.
func (rs *ResultSet) Entry() (Entry, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return Entry{}, fmt.Errorf("%w: %s", ErrResultSetNotFound, rs.id)
	}
	if rs.pos < 0 || rs.pos >= len(rs.entries) {
		return Entry{}, fmt.Errorf("%w: position %d of %d", ErrNoEntry, rs.pos, len(rs.entries))
	}
	return rs.entries[rs.pos], nil
}
