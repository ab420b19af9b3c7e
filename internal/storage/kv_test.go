package storage

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a test storage
func createTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setKeys(t *testing.T, s *Storage, kvs map[string]string) {
	t.Helper()
	require.NoError(t, s.Update(func(txn *Txn) error {
		for k, v := range kvs {
			if err := txn.Set(k, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	}))
}

// TestSetGetDelete tests the basic round trip
func TestSetGetDelete(t *testing.T) {
	s := createTestStorage(t)
	setKeys(t, s, map[string]string{"dev/a": "1"})

	v, err := s.Get("dev/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, s.Update(func(txn *Txn) error { return txn.Delete("dev/a") }))
	_, err = s.Get("dev/a")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestEmptyKeyRejected(t *testing.T) {
	s := createTestStorage(t)

	_, err := s.Get("")
	assert.ErrorIs(t, err, ErrInvalidKey)
	err = s.Update(func(txn *Txn) error { return txn.Set("", nil) })
	assert.ErrorIs(t, err, ErrInvalidKey)
	err = s.Update(func(txn *Txn) error { return txn.Delete("") })
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// TestScanPrefix tests ordered prefix iteration and counting
func TestScanPrefix(t *testing.T) {
	s := createTestStorage(t)
	setKeys(t, s, map[string]string{"dev/b": "dev/b", "dev/a": "dev/a", "other/a": "other/a", "dev/c": "dev/c"})

	var keys []string
	err := s.ScanPrefix("dev/", func(key string, value []byte) error {
		assert.Equal(t, key, string(value))
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"dev/a", "dev/b", "dev/c"}, keys)

	n, err := s.CountPrefix("dev/")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stop := errors.New("stop")
	calls := 0
	err = s.ScanPrefix("dev/", func(string, []byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestDeletePrefix(t *testing.T) {
	s := createTestStorage(t)
	setKeys(t, s, map[string]string{"dev/a": "x", "dev/b": "x", "other/a": "x"})

	removed, err := s.DeletePrefix("dev/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dev/a", "dev/b"}, removed)

	n, err := s.CountPrefix("")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err = s.DeletePrefix("none/")
	require.NoError(t, err)
	assert.Empty(t, removed)
}

// TestUpdateAtomic tests that a failed transaction writes nothing
func TestUpdateAtomic(t *testing.T) {
	s := createTestStorage(t)
	setKeys(t, s, map[string]string{"k0": "old"})

	boom := errors.New("boom")
	err := s.Update(func(txn *Txn) error {
		if err := txn.Set("k1", []byte("v1")); err != nil {
			return err
		}
		if err := txn.Delete("k0"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Get("k1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	v, err := s.Get("k0")
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)

	err = s.Update(func(txn *Txn) error {
		if err := txn.Set("k1", []byte("v1")); err != nil {
			return err
		}
		v, err := txn.Get("k1")
		if err != nil {
			return err
		}
		assert.Equal(t, []byte("v1"), v)
		_, err = txn.Get("missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		return txn.Delete("k0")
	})
	require.NoError(t, err)

	_, err = s.Get("k0")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

// TestConcurrentUpdates tests that read-modify-write updates on one key
// neither fail nor lose increments.
func TestConcurrentUpdates(t *testing.T) {
	s := createTestStorage(t)
	const workers, rounds = 32, 20

	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				errs <- s.Update(func(txn *Txn) error {
					n := 0
					raw, err := txn.Get("counter")
					switch {
					case err == nil:
						if n, err = strconv.Atoi(string(raw)); err != nil {
							return err
						}
					case !errors.Is(err, ErrKeyNotFound):
						return err
					}
					return txn.Set("counter", []byte(strconv.Itoa(n+1)))
				})
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := s.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(workers*rounds), string(v))
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	setKeys(t, s, map[string]string{"k": "v"})
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	_, err = Open(Options{})
	assert.Error(t, err)
}
