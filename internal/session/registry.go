package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"deskbridge/internal/protocol"
)

// Window is the host-side record for one connected renderer.
type Window struct {
	ID         protocol.WindowID
	RemoteAddr string
	Sender     Sender
	OpenedAt   time.Time

	mu   sync.RWMutex
	user *protocol.UserInfo
}

// SetUserInfo records the user logged into this window.
func (w *Window) SetUserInfo(u protocol.UserInfo) {
	w.mu.Lock()
	w.user = &u
	w.mu.Unlock()
}

// UserInfo returns the logged-in user, if any.
func (w *Window) UserInfo() (protocol.UserInfo, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.user == nil {
		return protocol.UserInfo{}, false
	}
	return *w.user, true
}

// Registry assigns window ids and maps them to windows.  Ids start at
// 1 and are never reused within a process.
type Registry struct {
	mu      sync.RWMutex
	windows map[protocol.WindowID]*Window
	lastID  atomic.Uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{windows: make(map[protocol.WindowID]*Window)}
}

// Add registers a new window and returns it.
func (r *Registry) Add(remoteAddr string, sender Sender) *Window {
	w := &Window{
		ID:         protocol.WindowID(r.lastID.Add(1)),
		RemoteAddr: remoteAddr,
		Sender:     sender,
		OpenedAt:   time.Now(),
	}
	r.mu.Lock()
	r.windows[w.ID] = w
	r.mu.Unlock()
	return w
}

// Get returns the window with the given id.
func (r *Registry) Get(id protocol.WindowID) (*Window, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.windows[id]
	return w, ok
}

// All returns every open window ordered by id.
func (r *Registry) All() []*Window {
	r.mu.RLock()
	out := make([]*Window, 0, len(r.windows))
	for _, w := range r.windows {
		out = append(out, w)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove forgets the window.  Removing an unknown id is a no-op.
func (r *Registry) Remove(id protocol.WindowID) {
	r.mu.Lock()
	delete(r.windows, id)
	r.mu.Unlock()
}

// Len returns the number of open windows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.windows)
}
