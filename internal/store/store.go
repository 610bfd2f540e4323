// Package store persists the desktop configuration as a single JSON
// document and notifies subscribers when keys change.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Well-known keys.
const (
	KeyPushIdentifier     = "pushIdentifier"
	KeyPushEncSessionKeys = "pushEncSessionKeys"
)

// Listener receives the new value of a key, or nil once it is deleted.
type Listener func(value json.RawMessage)

// Store is a JSON-file-backed key/value configuration.  An empty path
// keeps everything in memory.
type Store struct {
	path string

	mu        sync.Mutex
	values    map[string]json.RawMessage
	listeners map[string]map[uint64]Listener
	nextID    uint64
}

// Open loads the store at path.  A missing file yields an empty store
// that is created on the first write.
func Open(path string) (*Store, error) {
	s := &Store{
		path:      path,
		values:    make(map[string]json.RawMessage),
		listeners: make(map[string]map[uint64]Listener),
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string { return s.path }

// Get returns the raw value of key.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Decode unmarshals key into dst.  It reports false when the key is
// absent, leaving dst untouched.
func (s *Store) Decode(key string, dst interface{}) (bool, error) {
	raw, ok := s.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decoding config key %q: %w", key, err)
	}
	return true, nil
}

// All returns a copy of every stored value.
func (s *Store) All() map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]json.RawMessage, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Set stores v under key and persists the store.
func (s *Store) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding config key %q: %w", key, err)
	}
	return s.SetAll(map[string]json.RawMessage{key: raw})
}

// SetAll merges values into the store and persists it once.  Listeners
// of every changed key fire after the write succeeds.
func (s *Store) SetAll(values map[string]json.RawMessage) error {
	s.mu.Lock()
	prev := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		if old, ok := s.values[k]; ok {
			prev[k] = old
		}
		s.values[k] = v
	}
	if err := s.persistLocked(); err != nil {
		for k := range values {
			if old, ok := prev[k]; ok {
				s.values[k] = old
			} else {
				delete(s.values, k)
			}
		}
		s.mu.Unlock()
		return err
	}
	var fire []func()
	for _, k := range sortedKeys(values) {
		if old, ok := prev[k]; ok && bytes.Equal(old, values[k]) {
			continue
		}
		fire = append(fire, s.notifyLocked(k, values[k])...)
	}
	s.mu.Unlock()

	for _, f := range fire {
		f()
	}
	return nil
}

// Delete removes key.  Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	old, ok := s.values[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.values, key)
	if err := s.persistLocked(); err != nil {
		s.values[key] = old
		s.mu.Unlock()
		return err
	}
	fire := s.notifyLocked(key, nil)
	s.mu.Unlock()

	for _, f := range fire {
		f()
	}
	return nil
}

// On subscribes fn to changes of key.  With fireNow, fn is called once
// immediately with the current value.  The returned function removes
// the subscription and may be called more than once.
func (s *Store) On(key string, fn Listener, fireNow bool) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.listeners[key] == nil {
		s.listeners[key] = make(map[uint64]Listener)
	}
	s.listeners[key][id] = fn
	current := s.values[key]
	s.mu.Unlock()

	if fireNow {
		fn(current)
	}
	return func() {
		s.mu.Lock()
		delete(s.listeners[key], id)
		if len(s.listeners[key]) == 0 {
			delete(s.listeners, key)
		}
		s.mu.Unlock()
	}
}

// Listeners returns the number of subscriptions on key.
func (s *Store) Listeners(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[key])
}

func (s *Store) notifyLocked(key string, value json.RawMessage) []func() {
	ls := s.listeners[key]
	ids := make([]uint64, 0, len(ls))
	for id := range ls {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]func(), 0, len(ids))
	for _, id := range ids {
		fn := ls[id]
		out = append(out, func() { fn(value) })
	}
	return out
}

// persistLocked writes the document to a temp file in the same
// directory and renames it over the old one.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.values, "", "\t")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
