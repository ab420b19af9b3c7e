package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skshohagmiah/kvquery/internal/query"
)

func seedUsers(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.PutBatch(ctx, []Entry{
		{Key: "user:1", Value: StringValue(`{"name":"Alice","age":30,"city":"Oslo"}`)},
		{Key: "user:2", Value: StringValue(`{"name":"Bob","age":25,"city":"Rome"}`)},
		{Key: "user:3", Value: StringValue(`{"name":"Carol","age":35,"city":"Oslo"}`)},
		{Key: "user:4", Value: StringValue(`{"name":"Dave","address":{"city":"Oslo"}}`)},
		{Key: "score:1", Value: IntegerValue(10)},
		{Key: "score:2", Value: DoubleValue(20.5)},
		{Key: "flag", Value: BoolValue(true)},
		{Key: "note", Value: StringValue("plain text")},
	}))
}

func keys(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

// TestGetEntriesByQuery tests filtering, ordering and paging of JSON documents
func TestGetEntriesByQuery(t *testing.T) {
	s := createTestStore(t)
	seedUsers(t, s)
	ctx := context.Background()

	tests := []struct {
		name string
		q    *query.Query
		want []string
	}{
		{"all", query.New(), []string{"flag", "note", "score:1", "score:2", "user:1", "user:2", "user:3", "user:4"}},
		{"equal", query.New().EqualTo("$.city", query.String("Oslo")), []string{"user:1", "user:3"}},
		{"nested", query.New().EqualTo("$.address.city", query.String("Oslo")), []string{"user:4"}},
		{"range and order", query.New().GreaterThan("age", query.Number(24)).OrderByDesc("age"), []string{"user:3", "user:1", "user:2"}},
		{"or group", query.New().PrefixKey("user:").BeginGroup().EqualTo("name", query.String("Bob")).Or().LessThan("age", query.Number(20)).EndGroup(), []string{"user:2"}},
		{"limit", query.New().PrefixKey("user:").OrderByAsc("name").Limit(2, 1), []string{"user:2", "user:3"}},
		{"like", query.New().Like("name", "%o%"), []string{"user:2", "user:3"}},
		{"is null", query.New().PrefixKey("user:").IsNull("age"), []string{"user:4"}},
		{"scalar value", query.New().GreaterThanOrEqualTo(ValueField, query.Number(10)), []string{"score:1", "score:2"}},
		{"scalar in", query.New().InNumber(ValueField, query.Int32s([]int32{10, 11})), []string{"score:1"}},
		{"bool value", query.New().EqualTo(ValueField, query.Bool(true)), []string{"flag"}},
		{"plain string", query.New().Like(ValueField, "plain%"), []string{"note"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.GetEntriesByQuery(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(entries))
		})
	}
}

func TestQueryDeviceSelection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", IntegerValue(1)))
	require.NoError(t, s.PutForDevice(ctx, "peer", "k2", IntegerValue(2)))

	entries, err := s.GetEntriesByQuery(ctx, query.New().DeviceID("peer"))
	require.NoError(t, err)
	assert.Equal(t, []string{"k2"}, keys(entries))

	entries, err = s.GetEntriesByQuery(ctx, query.New().DeviceID(""))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, keys(entries))

	entries, err = s.GetEntriesForDevice(ctx, testDevice, query.New().DeviceID("peer"))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, keys(entries), "explicit device wins over the hint")

	_, err = s.GetEntriesByQuery(ctx, query.New().DeviceID("a/b"))
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestQueryRejectsInvalidBuilder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	q := query.New().EqualTo("", query.Number(1))
	require.Error(t, q.Err())

	_, err := s.GetEntriesByQuery(ctx, q)
	assert.ErrorIs(t, err, query.ErrInvalidArgument)
	_, err = s.GetResultSize(ctx, q)
	assert.ErrorIs(t, err, query.ErrInvalidArgument)
	_, err = s.GetResultSet(ctx, q)
	assert.ErrorIs(t, err, query.ErrInvalidArgument)

	_, err = s.GetEntriesByQuery(ctx, nil)
	assert.ErrorIs(t, err, ErrNilQuery)

	_, err = s.PlanSQL("^BOGUS")
	assert.ErrorIs(t, err, query.ErrMalformedQuery)
}

func TestGetResultSize(t *testing.T) {
	s := createTestStore(t)
	seedUsers(t, s)
	ctx := context.Background()

	n, err := s.GetResultSize(ctx, query.New().EqualTo("city", query.String("Oslo")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.GetResultSize(ctx, query.New().PrefixKey("user:").Limit(3, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.GetResultSize(ctx, query.New().PrefixKey("user:").OrderByDesc("age"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = s.GetResultSize(ctx, query.New())
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = s.GetResultSize(ctx, query.New().Limit(5, 6))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.PutForDevice(ctx, "peer", "user:9", IntegerValue(1)))
	n, err = s.GetResultSize(ctx, query.New().DeviceID("peer"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.GetResultSize(ctx, query.New().PrefixKey("user:").And().Or())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPlanCache(t *testing.T) {
	s := createTestStore(t)

	q := query.New().EqualTo("a", query.Number(1))
	p1, err := s.Plan(q)
	require.NoError(t, err)
	p2, err := s.Plan(query.New().EqualTo("a", query.Number(1)))
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, s.plans.Len())

	for i := 0; i < 10; i++ {
		_, err := s.Plan(query.New().Limit(i, 0))
		require.NoError(t, err)
	}
	assert.Equal(t, 4, s.plans.Len())
}
