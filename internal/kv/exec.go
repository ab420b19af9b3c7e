package kv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skshohagmiah/kvquery/internal/query"
)

type match struct {
	entry Entry
	doc   query.Document
}

// Plan parses q's rendered form through the plan cache. A builder that
// recorded a validation error is rejected with that error.
func (s *Store) Plan(q *query.Query) (*query.Plan, error) {
	if q == nil {
		return nil, ErrNilQuery
	}
	if err := q.Err(); err != nil {
		return nil, err
	}
	return s.PlanSQL(q.SQLLike())
}

// PlanSQL is Plan for an already rendered query string.
func (s *Store) PlanSQL(sqlLike string) (*query.Plan, error) {
	if len(sqlLike) > MaxQueryLength {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrQueryTooLong, len(sqlLike), MaxQueryLength)
	}
	if plan, ok := s.plans.Get(sqlLike); ok {
		s.metrics.PlanCacheLookup(true)
		return plan, nil
	}
	s.metrics.PlanCacheLookup(false)

	plan, err := query.Parse(sqlLike)
	if err != nil {
		return nil, err
	}
	s.plans.Add(sqlLike, plan)
	return plan, nil
}

// GetEntriesByQuery returns the entries q selects. The device is taken from
// the query's device hint, or the local device when there is none.
func (s *Store) GetEntriesByQuery(ctx context.Context, q *query.Query) (entries []Entry, err error) {
	defer s.observe("get_entries_by_query", time.Now(), &err)
	plan, err := s.Plan(q)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, "", plan)
}

// GetEntriesForDevice runs q against deviceID's data. deviceID overrides
// any device hint in q.
func (s *Store) GetEntriesForDevice(ctx context.Context, deviceID string, q *query.Query) (entries []Entry, err error) {
	defer s.observe("get_entries_for_device", time.Now(), &err)
	if err := validateDevice(deviceID); err != nil {
		return nil, err
	}
	plan, err := s.Plan(q)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, deviceID, plan)
}

// GetResultSize counts the entries GetEntriesByQuery would return.
func (s *Store) GetResultSize(ctx context.Context, q *query.Query) (n int, err error) {
	defer s.observe("get_result_size", time.Now(), &err)
	plan, err := s.Plan(q)
	if err != nil {
		return 0, err
	}
	if !plan.HasFilter() {
		return s.countAll(ctx, plan)
	}
	matched, err := s.run(ctx, "", plan)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// countAll sizes a filterless plan from the key count alone. Ordering does
// not change the count, so no value is read or decoded.
func (s *Store) countAll(ctx context.Context, plan *query.Plan) (int, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}
	device, err := s.targetDevice("", plan)
	if err != nil {
		return 0, err
	}
	n, err := s.storage.CountPrefix(devicePrefix(device) + plan.KeyPrefix())
	if err != nil {
		return 0, err
	}
	start, end := plan.Window(n)
	return end - start, nil
}

// Execute evaluates plan. An empty deviceID defers to the plan's hint.
func (s *Store) Execute(ctx context.Context, deviceID string, plan *query.Plan) ([]Entry, error) {
	matched, err := s.run(ctx, deviceID, plan)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(matched))
	for i, m := range matched {
		entries[i] = m.entry
	}
	return entries, nil
}

func (s *Store) targetDevice(deviceID string, plan *query.Plan) (string, error) {
	if deviceID != "" {
		if err := validateDevice(deviceID); err != nil {
			return "", err
		}
		return deviceID, nil
	}
	if hint, ok := plan.DeviceID(); ok && hint != "" {
		if err := validateDevice(hint); err != nil {
			return "", err
		}
		return hint, nil
	}
	return s.deviceID, nil
}

func (s *Store) run(ctx context.Context, deviceID string, plan *query.Plan) ([]match, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	device, err := s.targetDevice(deviceID, plan)
	if err != nil {
		return nil, err
	}
	if idx, ok := plan.SuggestIndex(); ok {
		s.log.Debug("index hint ignored, scanning", zap.String("index", idx))
	}

	devPrefix := devicePrefix(device)
	var matched []match
	scanned := 0

	err = s.storage.ScanPrefix(devPrefix+plan.KeyPrefix(), func(key string, raw []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		scanned++
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		doc := v.document()
		if plan.Match(doc) {
			matched = append(matched, match{
				entry: Entry{Key: strings.TrimPrefix(key, devPrefix), Value: v},
				doc:   doc,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveScan(scanned, len(matched))

	sortEntries(plan, matched)
	start, end := plan.Window(len(matched))
	return matched[start:end], nil
}
