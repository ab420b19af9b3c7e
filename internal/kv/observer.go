package kv

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubscribeType selects which writes an observer hears about.
type SubscribeType int

const (
	// SubscribeLocal delivers writes made to the local device.
	SubscribeLocal SubscribeType = iota
	// SubscribeRemote delivers writes made on behalf of other devices.
	SubscribeRemote
	SubscribeAll
)

func (t SubscribeType) String() string {
	switch t {
	case SubscribeLocal:
		return "LOCAL"
	case SubscribeRemote:
		return "REMOTE"
	case SubscribeAll:
		return "ALL"
	}
	return fmt.Sprintf("SubscribeType(%d)", int(t))
}

// ChangeNotification describes one committed write.
type ChangeNotification struct {
	InsertEntries []Entry `json:"insertEntries"`
	UpdateEntries []Entry `json:"updateEntries"`
	DeleteEntries []Entry `json:"deleteEntries"`
	DeviceID      string  `json:"deviceId"`
}

func (n ChangeNotification) empty() bool {
	return len(n.InsertEntries) == 0 && len(n.UpdateEntries) == 0 && len(n.DeleteEntries) == 0
}

// Observer receives change notifications on a worker goroutine. Deliveries
// to one observer may run concurrently and out of commit order.
type Observer interface {
	OnChange(ChangeNotification)
}

// ObserverFunc adapts a function to Observer. Function values cannot be
// compared, so the same func subscribed twice yields two subscriptions.
type ObserverFunc func(ChangeNotification)

func (f ObserverFunc) OnChange(n ChangeNotification) { f(n) }

type subscription struct {
	typ      SubscribeType
	observer Observer
}

func (s subscription) wants(local bool) bool {
	switch s.typ {
	case SubscribeAll:
		return true
	case SubscribeLocal:
		return local
	default:
		return !local
	}
}

// Subscribe registers o and returns the subscription ID. Registering the
// same comparable observer twice fails with ErrAlreadySubscribed.
func (s *Store) Subscribe(typ SubscribeType, o Observer) (string, error) {
	if o == nil {
		return "", errors.New("observer is nil")
	}
	if typ < SubscribeLocal || typ > SubscribeAll {
		return "", fmt.Errorf("invalid subscribe type %d", int(typ))
	}

	canCompare := reflect.TypeOf(o).Comparable()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if canCompare {
		for _, sub := range s.observers {
			if sub.observer == o {
				return "", ErrAlreadySubscribed
			}
		}
	}

	id := uuid.New().String()
	s.observers[id] = subscription{typ: typ, observer: o}
	s.log.Debug("observer subscribed", zap.String("id", id), zap.Stringer("type", typ))
	return id, nil
}

func (s *Store) Unsubscribe(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.observers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, id)
	}
	delete(s.observers, id)
	return nil
}

// notify hands n to every interested observer on the worker pool.
func (s *Store) notify(n ChangeNotification) {
	if n.empty() {
		return
	}
	local := n.DeviceID == s.deviceID

	s.mu.Lock()
	var targets []Observer
	for _, sub := range s.observers {
		if sub.wants(local) {
			targets = append(targets, sub.observer)
		}
	}
	s.mu.Unlock()

	for _, o := range targets {
		o := o
		err := s.pool.Submit(func() {
			o.OnChange(n)
		})
		if err != nil {
			s.metrics.NotificationDelivered(false)
			s.log.Warn("dropped change notification", zap.String("device", n.DeviceID), zap.Error(err))
			continue
		}
		s.metrics.NotificationDelivered(true)
	}
}
