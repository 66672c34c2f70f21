package push

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu     sync.Mutex
	frames chan []byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16)}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil // pings are uninteresting here
	}
	select {
	case c.frames <- append([]byte(nil), data...):
	default: // drop when the test isn't reading
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func waitFrame(t *testing.T, c *fakeConn) []byte {
	t.Helper()
	select {
	case data := <-c.frames:
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case data := <-c.frames:
		t.Fatalf("unexpected frame delivered: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPushReachesAllSessionsOfUser(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	tab1 := newFakeConn()
	tab2 := newFakeConn()
	m.Add("u2", tab1)
	m.Add("u2", tab2)

	delivered := m.PushToUser("u2", map[string]string{"hello": "world"})
	assert.Equal(t, 2, delivered)

	var got map[string]string
	require.NoError(t, json.Unmarshal(waitFrame(t, tab1), &got))
	assert.Equal(t, "world", got["hello"])
	waitFrame(t, tab2)
}

func TestDisconnectLeavesRemainingSessions(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	tab1 := newFakeConn()
	tab2 := newFakeConn()
	s1 := m.Add("u2", tab1)
	m.Add("u2", tab2)

	m.Remove(s1)
	assert.Equal(t, 1, m.SessionCount("u2"))
	assert.True(t, tab1.isClosed())

	delivered := m.PushToUser("u2", "ping")
	assert.Equal(t, 1, delivered)
	waitFrame(t, tab2)
	assertNoFrame(t, tab1)
}

func TestPushToUserWithoutSessionsIsSilentNoop(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	assert.Zero(t, m.PushToUser("ghost", "anything"))
}

func TestPushToUsersIsIndependentPerUser(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	c1 := newFakeConn()
	c3 := newFakeConn()
	m.Add("u1", c1)
	m.Add("u3", c3)

	// u2 has no sessions; that must not affect u1 or u3.
	m.PushToUsers([]string{"u1", "u2", "u3"}, "payload")

	waitFrame(t, c1)
	waitFrame(t, c3)
}

func TestDrainingUserRemovesMapEntry(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	s := m.Add("u1", newFakeConn())

	m.Remove(s)
	m.Remove(s) // idempotent

	assert.Zero(t, m.SessionCount("u1"))
	assert.Zero(t, m.PushToUser("u1", "late push"))
}

func TestBroadcastReachesEveryUser(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	c1 := newFakeConn()
	c2 := newFakeConn()
	m.Add("u1", c1)
	m.Add("u2", c2)

	m.Broadcast("all hands")
	waitFrame(t, c1)
	waitFrame(t, c2)
}

func TestConcurrentRegistryAccess(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := m.Add("u1", newFakeConn())
				m.PushToUser("u1", j)
				m.Remove(s)
			}
		}()
	}

	wg.Wait()
	assert.Zero(t, m.SessionCount("u1"))
}
