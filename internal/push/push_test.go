package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskbridge/internal/errors"
	"deskbridge/internal/protocol"
	"deskbridge/internal/store"
	"deskbridge/util"
)

func newStore(t *testing.T) (*Store, *store.Store) {
	t.Helper()
	conf, err := store.Open("")
	require.NoError(t, err)
	return New(conf), conf
}

func TestStoreIdentifier(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, ok, err := s.Identifier(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.StoreIdentifier(ctx, "id-1", "user-a", "https://mail.example"))
	require.NoError(t, s.StoreIdentifier(ctx, "id-1", "user-b", "https://mail.example"))
	require.NoError(t, s.StoreIdentifier(ctx, "id-1", "user-a", "https://mail.example"))

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, &Info{
		Identifier: "id-1",
		SSEOrigin:  "https://mail.example",
		UserIDs:    []string{"user-a", "user-b"},
	}, info)

	// A new identifier starts over.
	require.NoError(t, s.StoreIdentifier(ctx, "id-2", "user-c", "https://other.example"))
	info, err = s.Info()
	require.NoError(t, err)
	assert.Equal(t, []string{"user-c"}, info.UserIDs)

	id, ok, err := s.Identifier(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "id-2", id)
}

func TestRemoveUser(t *testing.T) {
	s, conf := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.StoreIdentifier(ctx, "id-1", "user-a", "o"))
	require.NoError(t, s.StoreIdentifier(ctx, "id-1", "user-b", "o"))

	require.NoError(t, s.RemoveUser("user-a"))
	require.NoError(t, s.RemoveUser("user-b"))

	raw, ok := conf.Get(store.KeyPushIdentifier)
	require.True(t, ok)
	assert.JSONEq(t, `{"identifier":"id-1","sseOrigin":"o","userIds":[]}`, string(raw))
}

func TestSessionKeys(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreSessionKey(ctx, "pi-1", "key-1"))
	require.NoError(t, s.StoreSessionKey(ctx, "pi-2", "key-2"))

	k, ok, err := s.SessionKey("pi-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "key-1", k)

	_, ok, err = s.SessionKey("pi-3")
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeOutbound struct {
	mu    sync.Mutex
	calls []protocol.WindowID
	err   error
	sent  chan struct{}
}

func (f *fakeOutbound) SendOutbound(_ context.Context, id protocol.WindowID, typ protocol.Outbound, _ ...interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if typ != protocol.OutboundInvalidateAlarms {
		return nil, fmt.Errorf("unexpected %s", typ)
	}
	f.calls = append(f.calls, id)
	f.sent <- struct{}{}
	return nil, f.err
}

func (f *fakeOutbound) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitSent(t *testing.T, f *fakeOutbound) {
	t.Helper()
	select {
	case <-f.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("invalidateAlarms was not sent")
	}
}

func TestWatch_InvalidatesWhenNoUsers(t *testing.T) {
	s, conf := newStore(t)
	ctx := context.Background()
	out := &fakeOutbound{sent: make(chan struct{}, 4)}

	require.NoError(t, s.StoreIdentifier(ctx, "id-1", "user-a", "o"))
	stop := s.Watch(ctx, out, 3, util.Nop())
	defer stop()
	assert.Equal(t, 0, out.count(), "identifier with users must not invalidate")

	require.NoError(t, s.RemoveUser("user-a"))
	waitSent(t, out)
	assert.Equal(t, []protocol.WindowID{3}, out.calls)
	assert.Equal(t, 1, conf.Listeners(store.KeyPushIdentifier))
}

func TestWatch_FiresForCurrentValue(t *testing.T) {
	s, conf := newStore(t)
	out := &fakeOutbound{sent: make(chan struct{}, 4)}
	require.NoError(t, conf.Set(store.KeyPushIdentifier, Info{Identifier: "id-1", UserIDs: []string{}}))

	stop := s.Watch(context.Background(), out, 1, util.Nop())
	defer stop()
	waitSent(t, out)
}

func TestWatch_UnsubscribesOnFailure(t *testing.T) {
	s, conf := newStore(t)
	out := &fakeOutbound{sent: make(chan struct{}, 4), err: fmt.Errorf("window gone")}
	require.NoError(t, conf.Set(store.KeyPushIdentifier, Info{Identifier: "id-1", UserIDs: []string{}}))

	s.Watch(context.Background(), out, 1, util.Nop())
	waitSent(t, out)

	require.Eventually(t, func() bool {
		return conf.Listeners(store.KeyPushIdentifier) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWatch_Stop(t *testing.T) {
	s, conf := newStore(t)
	out := &fakeOutbound{sent: make(chan struct{}, 4)}

	stop := s.Watch(context.Background(), out, 1, util.Nop())
	stop()
	stop()

	assert.Equal(t, 0, conf.Listeners(store.KeyPushIdentifier))
	require.NoError(t, conf.Set(store.KeyPushIdentifier, Info{Identifier: "id-1", UserIDs: []string{}}))
	assert.Equal(t, 0, out.count())
}

func TestWatch_StopsWhenWindowGone(t *testing.T) {
	s, conf := newStore(t)
	out := &fakeOutbound{sent: make(chan struct{}, 4), err: fmt.Errorf("send: %w", errors.ErrWindowClosed)}
	require.NoError(t, conf.Set(store.KeyPushIdentifier, Info{Identifier: "id-1", UserIDs: []string{}}))

	s.Watch(context.Background(), out, 1, util.Nop())
	waitSent(t, out)

	require.Eventually(t, func() bool {
		return conf.Listeners(store.KeyPushIdentifier) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWatch_KeepsSubscriptionOnCancelledContext(t *testing.T) {
	s, conf := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := &fakeOutbound{sent: make(chan struct{}, 4), err: context.Canceled}
	require.NoError(t, conf.Set(store.KeyPushIdentifier, Info{Identifier: "id-1", UserIDs: []string{}}))

	stop := s.Watch(ctx, out, 1, util.Nop())
	waitSent(t, out)

	// The send goroutine finishes right after recording the call.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, conf.Listeners(store.KeyPushIdentifier))

	stop()
	assert.Equal(t, 0, conf.Listeners(store.KeyPushIdentifier))
}
