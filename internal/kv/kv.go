// Package kv is a device-scoped key-value store that executes queries
// rendered by package query against badger storage.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/skshohagmiah/kvquery/internal/metrics"
	"github.com/skshohagmiah/kvquery/internal/query"
	"github.com/skshohagmiah/kvquery/internal/storage"
)

// Entry is a key and its value. Keys never include the device namespace.
type Entry struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

type Options struct {
	// DeviceID names the local device. Required.
	DeviceID      string
	PlanCacheSize int
	NotifyWorkers int
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Store is the developer-facing API over a storage.Storage. It owns the
// storage and closes it on Close.
type Store struct {
	storage  *storage.Storage
	deviceID string
	log      *zap.Logger
	metrics  *metrics.Metrics
	plans    *lru.Cache[string, *query.Plan]
	pool     *ants.Pool

	mu         sync.Mutex
	closed     bool
	resultSets map[string]*ResultSet
	observers  map[string]subscription
}

// New wraps st. On error st is left open.
func New(st *storage.Storage, opts Options) (*Store, error) {
	if err := validateDevice(opts.DeviceID); err != nil {
		return nil, err
	}
	if opts.PlanCacheSize <= 0 {
		opts.PlanCacheSize = 256
	}
	if opts.NotifyWorkers <= 0 {
		opts.NotifyWorkers = 16
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("kv")

	plans, err := lru.New[string, *query.Plan](opts.PlanCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan cache: %w", err)
	}

	pool, err := ants.NewPool(opts.NotifyWorkers, ants.WithPanicHandler(func(v any) {
		log.Error("observer panic", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create notify pool: %w", err)
	}

	return &Store{
		storage:    st,
		deviceID:   opts.DeviceID,
		log:        log,
		metrics:    opts.Metrics,
		plans:      plans,
		pool:       pool,
		resultSets: make(map[string]*ResultSet),
		observers:  make(map[string]subscription),
	}, nil
}

// DeviceID returns the local device ID.
func (s *Store) DeviceID() string {
	return s.deviceID
}

// Close releases the notify pool, invalidates open result sets and closes
// the underlying storage. Pending notifications get up to three seconds.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, rs := range s.resultSets {
		rs.close()
		delete(s.resultSets, id)
	}
	s.observers = make(map[string]subscription)
	s.mu.Unlock()

	s.metrics.SetOpenResultSets(0)
	if err := s.pool.ReleaseTimeout(3 * time.Second); err != nil {
		s.log.Warn("notify pool did not drain", zap.Error(err))
	}
	return s.storage.Close()
}

func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, start, *err)
}

func validateDevice(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDevice)
	}
	if strings.Contains(deviceID, "/") {
		return fmt.Errorf("%w: %q contains '/'", ErrInvalidDevice, deviceID)
	}
	return nil
}

// normalizeKey trims surrounding spaces and enforces the length limit.
func normalizeKey(key string) (string, error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(k) > MaxKeyLength {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidKey, len(k), MaxKeyLength)
	}
	return k, nil
}

func checkValue(v Value) error {
	if v.Size() > MaxValueLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrValueTooLarge, v.Size(), MaxValueLength)
	}
	if _, err := decodeValue(v.encode()); err != nil {
		return err
	}
	return nil
}

func devicePrefix(deviceID string) string {
	return deviceID + "/"
}

func storageKey(deviceID, key string) string {
	return devicePrefix(deviceID) + key
}

// Put stores value under key for the local device.
func (s *Store) Put(ctx context.Context, key string, value Value) (err error) {
	defer s.observe("put", time.Now(), &err)
	return s.putForDevice(ctx, s.deviceID, key, value)
}

// PutForDevice writes on behalf of another device, the way a sync peer
// delivers its data. Observers registered for remote changes are notified.
func (s *Store) PutForDevice(ctx context.Context, deviceID, key string, value Value) (err error) {
	defer s.observe("put_for_device", time.Now(), &err)
	if err := validateDevice(deviceID); err != nil {
		return err
	}
	return s.putForDevice(ctx, deviceID, key, value)
}

func (s *Store) putForDevice(ctx context.Context, deviceID, key string, value Value) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if err := checkValue(value); err != nil {
		return err
	}

	var existed bool
	err = s.storage.Update(func(txn *storage.Txn) error {
		_, err := txn.Get(storageKey(deviceID, k))
		switch {
		case err == nil:
			existed = true
		case !errors.Is(err, storage.ErrKeyNotFound):
			return err
		}
		return txn.Set(storageKey(deviceID, k), value.encode())
	})
	if err != nil {
		return fmt.Errorf("put %q: %w", k, err)
	}

	n := ChangeNotification{DeviceID: deviceID}
	if existed {
		n.UpdateEntries = []Entry{{Key: k, Value: value}}
	} else {
		n.InsertEntries = []Entry{{Key: k, Value: value}}
	}
	s.notify(n)
	return nil
}

// Get returns the local device's value for key.
func (s *Store) Get(ctx context.Context, key string) (v Value, err error) {
	defer s.observe("get", time.Now(), &err)
	return s.get(ctx, s.deviceID, key)
}

// GetDevice returns the value another device wrote under key.
func (s *Store) GetDevice(ctx context.Context, deviceID, key string) (v Value, err error) {
	defer s.observe("get_device", time.Now(), &err)
	if err := validateDevice(deviceID); err != nil {
		return Value{}, err
	}
	return s.get(ctx, deviceID, key)
}

func (s *Store) get(ctx context.Context, deviceID, key string) (Value, error) {
	if err := s.checkOpen(ctx); err != nil {
		return Value{}, err
	}
	k, err := normalizeKey(key)
	if err != nil {
		return Value{}, err
	}
	raw, err := s.storage.Get(storageKey(deviceID, k))
	if err != nil {
		return Value{}, err
	}
	return decodeValue(raw)
}

// Delete removes key from the local device. Deleting a missing key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer s.observe("delete", time.Now(), &err)
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}

	var old []byte
	err = s.storage.Update(func(txn *storage.Txn) error {
		raw, err := txn.Get(storageKey(s.deviceID, k))
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		old = raw
		return txn.Delete(storageKey(s.deviceID, k))
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", k, err)
	}

	if old != nil {
		if v, err := decodeValue(old); err == nil {
			s.notify(ChangeNotification{DeviceID: s.deviceID, DeleteEntries: []Entry{{Key: k, Value: v}}})
		}
	}
	return nil
}

// PutBatch writes all entries atomically. A key repeated in the batch keeps
// its last value.
func (s *Store) PutBatch(ctx context.Context, entries []Entry) (err error) {
	defer s.observe("put_batch", time.Now(), &err)
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if len(entries) > MaxBatchSize {
		return fmt.Errorf("%w: %d entries exceeds %d", ErrBatchTooLarge, len(entries), MaxBatchSize)
	}

	normalized := make([]Entry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		k, err := normalizeKey(e.Key)
		if err != nil {
			return err
		}
		if err := checkValue(e.Value); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		if i, dup := index[k]; dup {
			normalized[i].Value = e.Value
			continue
		}
		index[k] = len(normalized)
		normalized = append(normalized, Entry{Key: k, Value: e.Value})
	}

	n := ChangeNotification{DeviceID: s.deviceID}
	err = s.storage.Update(func(txn *storage.Txn) error {
		n.InsertEntries, n.UpdateEntries = nil, nil
		for _, e := range normalized {
			sk := storageKey(s.deviceID, e.Key)
			_, err := txn.Get(sk)
			switch {
			case err == nil:
				n.UpdateEntries = append(n.UpdateEntries, e)
			case errors.Is(err, storage.ErrKeyNotFound):
				n.InsertEntries = append(n.InsertEntries, e)
			default:
				return err
			}
			if err := txn.Set(sk, e.Value.encode()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put batch: %w", err)
	}

	s.notify(n)
	return nil
}

// DeleteBatch removes all keys atomically. Missing keys are skipped.
func (s *Store) DeleteBatch(ctx context.Context, keys []string) (err error) {
	defer s.observe("delete_batch", time.Now(), &err)
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if len(keys) > MaxBatchSize {
		return fmt.Errorf("%w: %d keys exceeds %d", ErrBatchTooLarge, len(keys), MaxBatchSize)
	}

	normalized := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		k, err := normalizeKey(key)
		if err != nil {
			return err
		}
		if !seen[k] {
			seen[k] = true
			normalized = append(normalized, k)
		}
	}

	var deleted []Entry
	err = s.storage.Update(func(txn *storage.Txn) error {
		deleted = nil
		for _, k := range normalized {
			sk := storageKey(s.deviceID, k)
			raw, err := txn.Get(sk)
			if errors.Is(err, storage.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if v, err := decodeValue(raw); err == nil {
				deleted = append(deleted, Entry{Key: k, Value: v})
			}
			if err := txn.Delete(sk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}

	s.notify(ChangeNotification{DeviceID: s.deviceID, DeleteEntries: deleted})
	return nil
}

// GetEntries returns the local device's entries whose key starts with prefix,
// in key order.
func (s *Store) GetEntries(ctx context.Context, prefix string) (entries []Entry, err error) {
	defer s.observe("get_entries", time.Now(), &err)
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	devPrefix := devicePrefix(s.deviceID)
	err = s.storage.ScanPrefix(devPrefix+prefix, func(key string, raw []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		entries = append(entries, Entry{Key: strings.TrimPrefix(key, devPrefix), Value: v})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// RemoveDeviceData deletes everything stored for another device. The local
// device's data cannot be removed this way.
func (s *Store) RemoveDeviceData(ctx context.Context, deviceID string) (err error) {
	defer s.observe("remove_device_data", time.Now(), &err)
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if err := validateDevice(deviceID); err != nil {
		return err
	}
	if deviceID == s.deviceID {
		return fmt.Errorf("%w: cannot remove data of the local device", ErrInvalidDevice)
	}

	removed, err := s.storage.DeletePrefix(devicePrefix(deviceID))
	if err != nil {
		return fmt.Errorf("remove device %q: %w", deviceID, err)
	}
	s.log.Info("removed device data", zap.String("device", deviceID), zap.Int("keys", len(removed)))
	return nil
}

// sortEntries orders matched entries by the plan's sort keys. Ties keep key order.
func sortEntries(plan *query.Plan, matched []match) {
	if !plan.HasOrder() {
		return
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return plan.Compare(matched[i].doc, matched[j].doc) < 0
	})
}
