package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanObserver struct {
	ch chan ChangeNotification
}

func newChanObserver() *chanObserver {
	return &chanObserver{ch: make(chan ChangeNotification, 16)}
}

func (o *chanObserver) OnChange(n ChangeNotification) { o.ch <- n }

func (o *chanObserver) next(t *testing.T) ChangeNotification {
	t.Helper()
	select {
	case n := <-o.ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
	return ChangeNotification{}
}

func (o *chanObserver) none(t *testing.T) {
	t.Helper()
	select {
	case n := <-o.ch:
		t.Fatalf("unexpected notification: %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestChangeNotifications tests insert, update and delete delivery
func TestChangeNotifications(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	local := newChanObserver()
	_, err := s.Subscribe(SubscribeLocal, local)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "k", IntegerValue(1)))
	n := local.next(t)
	assert.Equal(t, testDevice, n.DeviceID)
	require.Len(t, n.InsertEntries, 1)
	assert.Equal(t, "k", n.InsertEntries[0].Key)
	assert.Empty(t, n.UpdateEntries)

	require.NoError(t, s.Put(ctx, "k", IntegerValue(2)))
	n = local.next(t)
	require.Len(t, n.UpdateEntries, 1)
	assert.Equal(t, int64(2), n.UpdateEntries[0].Value.Int())

	require.NoError(t, s.PutBatch(ctx, []Entry{{Key: "k", Value: IntegerValue(3)}, {Key: "j", Value: IntegerValue(4)}}))
	n = local.next(t)
	assert.Len(t, n.UpdateEntries, 1)
	assert.Len(t, n.InsertEntries, 1)

	require.NoError(t, s.DeleteBatch(ctx, []string{"k", "j", "nope"}))
	n = local.next(t)
	assert.Len(t, n.DeleteEntries, 2)

	require.NoError(t, s.Delete(ctx, "k"))
	local.none(t)
}

func TestSubscribeTypes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	local, remote, all := newChanObserver(), newChanObserver(), newChanObserver()
	_, err := s.Subscribe(SubscribeLocal, local)
	require.NoError(t, err)
	_, err = s.Subscribe(SubscribeRemote, remote)
	require.NoError(t, err)
	_, err = s.Subscribe(SubscribeAll, all)
	require.NoError(t, err)

	require.NoError(t, s.PutForDevice(ctx, "peer", "k", StringValue("v")))
	assert.Equal(t, "peer", remote.next(t).DeviceID)
	assert.Equal(t, "peer", all.next(t).DeviceID)
	local.none(t)

	require.NoError(t, s.Put(ctx, "k", StringValue("v")))
	assert.Equal(t, testDevice, local.next(t).DeviceID)
	assert.Equal(t, testDevice, all.next(t).DeviceID)
	remote.none(t)
}

func TestSubscribeDuplicateAndUnsubscribe(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	o := newChanObserver()
	id, err := s.Subscribe(SubscribeLocal, o)
	require.NoError(t, err)

	_, err = s.Subscribe(SubscribeAll, o)
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	require.NoError(t, s.Unsubscribe(id))
	assert.ErrorIs(t, s.Unsubscribe(id), ErrNotSubscribed)

	require.NoError(t, s.Put(ctx, "k", StringValue("v")))
	o.none(t)

	f := ObserverFunc(func(ChangeNotification) {})
	_, err = s.Subscribe(SubscribeLocal, f)
	require.NoError(t, err)
	_, err = s.Subscribe(SubscribeLocal, f)
	assert.NoError(t, err, "funcs are not comparable, so they are never duplicates")

	_, err = s.Subscribe(SubscribeType(7), newChanObserver())
	assert.Error(t, err)
	_, err = s.Subscribe(SubscribeLocal, nil)
	assert.Error(t, err)
}

func TestObserverPanicIsContained(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Subscribe(SubscribeLocal, ObserverFunc(func(ChangeNotification) { panic("boom") }))
	require.NoError(t, err)
	o := newChanObserver()
	_, err = s.Subscribe(SubscribeLocal, o)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "k", StringValue("v")))
	o.next(t)
}
