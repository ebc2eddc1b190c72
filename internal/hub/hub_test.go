package hub

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id       string
	mu       sync.Mutex
	received [][]byte
	closed   bool
	sendErr  error
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) setSendErr(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) messages() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, 0, len(m.received))
	for _, raw := range m.received {
		var msg map[string]any
		_ = json.Unmarshal(raw, &msg)
		out = append(out, msg)
	}
	return out
}

func (m *mockConn) types() []string {
	var out []string
	for _, msg := range m.messages() {
		if t, ok := msg["type"].(string); ok {
			out = append(out, t)
		}
	}
	return out
}

func newTestHub() *Hub {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConnectAnnouncesToSession(t *testing.T) {
	h := newTestHub()
	dm := &mockConn{id: "dm"}
	h.Connect("sess", dm, RoleDM, "Master")

	player := &mockConn{id: "p1"}
	h.Connect("sess", player, RolePlayer, "Alice")

	types := dm.types()
	require.NotEmpty(t, types)
	assert.Contains(t, types, "client_connected")

	msgs := dm.messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, "Alice", last["client_name"])
	assert.Equal(t, "player", last["client_type"])
	assert.Equal(t, float64(2), last["total_connections"])
	assert.NotEmpty(t, last["timestamp"])
}

func TestLauncherConnectIsSilent(t *testing.T) {
	h := newTestHub()
	dm := &mockConn{id: "dm"}
	h.Connect("sess", dm, RoleDM, "Master")

	h.Connect("sess", &mockConn{id: "probe"}, RoleLauncher, "probe")

	assert.NotContains(t, dm.types(), "client_connected",
		"launcher connect must not be announced")
}

func TestSendToSessionDeliversToAll(t *testing.T) {
	h := newTestHub()
	conns := []*mockConn{{id: "a"}, {id: "b"}, {id: "c"}}
	for _, c := range conns {
		h.Connect("sess", c, RoleLauncher, c.id) // launcher avoids connect chatter
	}

	h.SendToSession("sess", map[string]string{"type": "ping"})

	for _, c := range conns {
		assert.Contains(t, c.types(), "ping", "conn %s", c.id)
	}
}

func TestFailingSendPrunesChannelOnly(t *testing.T) {
	h := newTestHub()
	good1 := &mockConn{id: "g1"}
	bad := &mockConn{id: "bad"}
	good2 := &mockConn{id: "g2"}
	h.Connect("sess", good1, RolePlayer, "Alice")
	h.Connect("sess", bad, RolePlayer, "Bob")
	h.Connect("sess", good2, RolePlayer, "Carol")
	bad.setSendErr(errors.New("broken pipe"))

	h.SendToSession("sess", map[string]string{"type": "ping"})

	assert.Contains(t, good1.types(), "ping")
	assert.Contains(t, good2.types(), "ping")
	assert.Equal(t, 2, h.Count("sess"), "failed channel must be removed")
	assert.True(t, bad.closed, "pruned channel must be closed")

	// remaining clients hear about the departure
	assert.Contains(t, good1.types(), "client_disconnected")
	assert.Contains(t, good2.types(), "client_disconnected")

	// subsequent disconnect of the pruned conn reports not found
	_, ok := h.Disconnect("sess", bad)
	assert.False(t, ok)
}

func TestBroadcastExcept(t *testing.T) {
	h := newTestHub()
	origin := &mockConn{id: "origin"}
	other1 := &mockConn{id: "o1"}
	other2 := &mockConn{id: "o2"}
	for _, c := range []*mockConn{origin, other1, other2} {
		h.Connect("sess", c, RoleLauncher, c.id)
	}

	h.BroadcastExcept("sess", map[string]string{"type": "token_updated"}, origin)

	assert.NotContains(t, origin.types(), "token_updated")
	assert.Contains(t, other1.types(), "token_updated")
	assert.Contains(t, other2.types(), "token_updated")
}

func TestSendToRole(t *testing.T) {
	h := newTestHub()
	dm := &mockConn{id: "dm"}
	player := &mockConn{id: "p"}
	h.Connect("sess", dm, RoleDM, "Master")
	h.Connect("sess", player, RolePlayer, "Alice")

	h.SendToRole("sess", map[string]string{"type": "dm_overlay"}, RoleDM)

	assert.Contains(t, dm.types(), "dm_overlay")
	assert.NotContains(t, player.types(), "dm_overlay")
}

func TestClientsExcludesLauncher(t *testing.T) {
	h := newTestHub()
	h.Connect("sess", &mockConn{id: "dm"}, RoleDM, "Master")
	h.Connect("sess", &mockConn{id: "p"}, RolePlayer, "Alice")
	h.Connect("sess", &mockConn{id: "probe"}, RoleLauncher, "probe")

	clients := h.Clients("sess")
	require.Len(t, clients, 2)
	for _, c := range clients {
		assert.NotEqual(t, RoleLauncher, c.Role)
		assert.True(t, c.Online)
		assert.NotEmpty(t, c.ConnectedAt)
	}
	assert.Equal(t, 3, h.Count("sess"), "count includes launcher")
}

func TestDisconnectReturnsMetadata(t *testing.T) {
	h := newTestHub()
	c := &mockConn{id: "p"}
	h.Connect("sess", c, RolePlayer, "Alice")

	info, ok := h.Disconnect("sess", c)
	require.True(t, ok)
	assert.Equal(t, "Alice", info.Name)
	assert.Equal(t, RolePlayer, info.Role)

	_, ok = h.Disconnect("sess", c)
	assert.False(t, ok, "second disconnect reports not found")
}

func TestEmptySessionIsDropped(t *testing.T) {
	h := newTestHub()
	c := &mockConn{id: "p"}
	h.Connect("sess", c, RolePlayer, "Alice")

	sessions, _ := h.Stats()
	require.Equal(t, 1, sessions)

	h.Disconnect("sess", c)
	sessions, clients := h.Stats()
	assert.Equal(t, 0, sessions)
	assert.Equal(t, 0, clients)
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newTestHub()
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	h.Connect("s1", a, RoleLauncher, "a")
	h.Connect("s2", b, RoleLauncher, "b")

	h.SendToSession("s1", map[string]string{"type": "ping"})

	assert.Contains(t, a.types(), "ping")
	assert.NotContains(t, b.types(), "ping")
}

func TestRoleValidation(t *testing.T) {
	assert.True(t, RoleDM.Valid())
	assert.True(t, RolePlayer.Valid())
	assert.True(t, RoleLauncher.Valid())
	assert.False(t, Role("admin").Valid())
	assert.False(t, RoleLauncher.Visible())
	assert.True(t, RolePlayer.Visible())
}
