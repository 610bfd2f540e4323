// Package push keeps the push identifier and the per-identifier session
// keys in the desktop config, and tells windows to drop their alarms
// once no user is bound to the identifier any more.
package push

import (
	"context"
	"encoding/json"
	"sync"

	"deskbridge/internal/errors"
	"deskbridge/internal/protocol"
	"deskbridge/internal/store"
	"deskbridge/util"
)

// Info is the stored push identifier.
type Info struct {
	Identifier string   `json:"identifier"`
	SSEOrigin  string   `json:"sseOrigin"`
	UserIDs    []string `json:"userIds"`
}

// Store reads and writes push state in a config store.
type Store struct {
	conf *store.Store
	mu   sync.Mutex // serializes read-modify-write cycles
}

// New wraps conf.
func New(conf *store.Store) *Store {
	return &Store{conf: conf}
}

// Info returns the stored identifier, or nil when there is none.
func (s *Store) Info() (*Info, error) {
	var info Info
	ok, err := s.conf.Decode(store.KeyPushIdentifier, &info)
	if err != nil || !ok {
		return nil, err
	}
	return &info, nil
}

// Identifier returns the stored identifier string.
func (s *Store) Identifier(context.Context) (string, bool, error) {
	info, err := s.Info()
	if err != nil || info == nil {
		return "", false, err
	}
	return info.Identifier, true, nil
}

// StoreIdentifier records identifier for userID.  A new identifier
// replaces the old one and its users; the same identifier gains userID
// if it is not bound yet.
func (s *Store) StoreIdentifier(_ context.Context, identifier, userID, sseOrigin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.Info()
	if err != nil {
		return err
	}
	if info == nil || info.Identifier != identifier {
		info = &Info{Identifier: identifier}
	}
	info.SSEOrigin = sseOrigin
	if !contains(info.UserIDs, userID) {
		info.UserIDs = append(info.UserIDs, userID)
	}
	return s.conf.Set(store.KeyPushIdentifier, info)
}

// RemoveUser unbinds userID from the identifier.  Removing the last
// user leaves the identifier with an empty user list, which makes every
// window watcher invalidate its alarms.
func (s *Store) RemoveUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.Info()
	if err != nil || info == nil {
		return err
	}
	kept := info.UserIDs[:0]
	for _, u := range info.UserIDs {
		if u != userID {
			kept = append(kept, u)
		}
	}
	info.UserIDs = append([]string{}, kept...)
	return s.conf.Set(store.KeyPushIdentifier, info)
}

// StoreSessionKey records the session key for a push identifier id.
func (s *Store) StoreSessionKey(_ context.Context, pushIdentifierID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := map[string]string{}
	if _, err := s.conf.Decode(store.KeyPushEncSessionKeys, &keys); err != nil {
		return err
	}
	keys[pushIdentifierID] = key
	return s.conf.Set(store.KeyPushEncSessionKeys, keys)
}

// SessionKey returns the stored session key for pushIdentifierID.
func (s *Store) SessionKey(pushIdentifierID string) (string, bool, error) {
	keys := map[string]string{}
	if _, err := s.conf.Decode(store.KeyPushEncSessionKeys, &keys); err != nil {
		return "", false, err
	}
	k, ok := keys[pushIdentifierID]
	return k, ok, nil
}

// ── Window watcher ───────────────────────────────────────────────────

// OutboundSender sends a request to one window and waits for its reply.
type OutboundSender interface {
	SendOutbound(ctx context.Context, id protocol.WindowID, typ protocol.Outbound, args ...interface{}) (json.RawMessage, error)
}

// Watch subscribes window id to identifier changes.  Whenever the
// stored identifier has no users, invalidateAlarms is sent to the
// window; the first failed send ends the subscription.  The current
// value is checked immediately.  The returned function unsubscribes.
func (s *Store) Watch(ctx context.Context, out OutboundSender, id protocol.WindowID, log *util.Logger) (stop func()) {
	w := &watch{}

	unsubscribe := s.conf.On(store.KeyPushIdentifier, func(raw json.RawMessage) {
		if len(raw) == 0 {
			return
		}
		var info Info
		if err := json.Unmarshal(raw, &info); err != nil {
			log.Debug("ignoring malformed push identifier: %v", err)
			return
		}
		if len(info.UserIDs) != 0 {
			return
		}
		go func() {
			log.Debug("invalidating alarms for %s", id)
			_, err := out.SendOutbound(ctx, id, protocol.OutboundInvalidateAlarms)
			switch {
			case err == nil:
			case errors.IsGone(err):
				log.Debug("%s went away, dropping alarm watch: %v", id, err)
				w.stop()
			case ctx.Err() != nil:
				// The host is tearing the window down and stops the watch itself.
			default:
				log.Warn("could not invalidate alarms for %s: %v", id, err)
				w.stop()
			}
		}()
	}, true)

	w.set(unsubscribe)
	return w.stop
}

// watch lets a listener cancel itself before On has returned.
type watch struct {
	mu      sync.Mutex
	cancel  func()
	stopped bool
}

func (w *watch) set(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		fn()
		return
	}
	w.cancel = fn
}

func (w *watch) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
