package protocol

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronista/internal/board"
	"cronista/internal/hub"
)

type mockConn struct {
	id       string
	mu       sync.Mutex
	received [][]byte
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) last(t *testing.T) map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.received)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(m.received[len(m.received)-1], &msg))
	return msg
}

func (m *mockConn) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

func newFixture() (*Handler, *hub.Hub, *board.Store) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := hub.New(logger)
	b := board.NewStore(logger)
	return NewHandler(h, b, logger), h, b
}

func TestRequestClients(t *testing.T) {
	handler, h, _ := newFixture()
	dm := &mockConn{id: "dm"}
	h.Connect("sess", dm, hub.RoleDM, "Master")
	h.Connect("sess", &mockConn{id: "probe"}, hub.RoleLauncher, "probe")

	handler.Handle("sess", dm, []byte(`{"type":"request_clients"}`))

	msg := dm.last(t)
	assert.Equal(t, "clients_list", msg["type"])
	assert.Equal(t, float64(1), msg["total"], "launcher must be excluded")
	clients := msg["clients"].([]any)
	require.Len(t, clients, 1)
	assert.Equal(t, "Master", clients[0].(map[string]any)["name"])
}

func TestRequestMapState(t *testing.T) {
	handler, h, b := newFixture()
	c := &mockConn{id: "p"}
	h.Connect("sess", c, hub.RolePlayer, "Alice")
	b.SetBackground("sess", "/maps/cave.png")
	b.AddToken("sess", board.Token{ID: "t1", Name: "Hero", X: 3, Y: 4})

	handler.Handle("sess", c, []byte(`{"type":"request_map_state"}`))

	msg := c.last(t)
	assert.Equal(t, "map_state", msg["type"])
	assert.Equal(t, "/maps/cave.png", msg["background"])
	require.Len(t, msg["tokens"].([]any), 1)
}

func TestTokenMovedBroadcastsToOthers(t *testing.T) {
	handler, h, b := newFixture()
	origin := &mockConn{id: "origin"}
	other := &mockConn{id: "other"}
	h.Connect("sess", origin, hub.RoleLauncher, "origin")
	h.Connect("sess", other, hub.RoleLauncher, "other")
	b.AddToken("sess", board.Token{ID: "t1", X: 0, Y: 0})

	originBefore := origin.count()
	handler.Handle("sess", origin, []byte(`{"type":"token_moved","token_id":"t1","x":96,"y":160}`))

	msg := other.last(t)
	assert.Equal(t, "token_updated", msg["type"])
	assert.Equal(t, "t1", msg["token_id"])
	assert.Equal(t, float64(96), msg["x"])
	assert.Equal(t, originBefore, origin.count(), "origin must not receive its own echo")

	snap := b.Snapshot("sess")
	assert.Equal(t, 96, snap.Tokens[0].X)
	assert.Equal(t, 160, snap.Tokens[0].Y)
}

func TestTokenMovedUnknownTokenIsSilent(t *testing.T) {
	handler, h, _ := newFixture()
	origin := &mockConn{id: "origin"}
	other := &mockConn{id: "other"}
	h.Connect("sess", origin, hub.RoleLauncher, "origin")
	h.Connect("sess", other, hub.RoleLauncher, "other")

	before := other.count()
	handler.Handle("sess", origin, []byte(`{"type":"token_moved","token_id":"ghost","x":1,"y":1}`))

	assert.Equal(t, before, other.count(), "no broadcast for unknown token")
}

func TestSceneRelayedVerbatim(t *testing.T) {
	handler, h, _ := newFixture()
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	h.Connect("sess", a, hub.RoleLauncher, "a")
	h.Connect("sess", b, hub.RoleLauncher, "b")

	raw := `{"type":"scene","title":"The Sunken Keep","img":"/maps/keep.png"}`
	handler.Handle("sess", a, []byte(raw))

	for _, c := range []*mockConn{a, b} {
		msg := c.last(t)
		assert.Equal(t, "scene", msg["type"])
		assert.Equal(t, "The Sunken Keep", msg["title"], "payload fields must survive the relay")
	}
}

func TestUnknownTypeRebroadcast(t *testing.T) {
	handler, h, _ := newFixture()
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	h.Connect("sess", a, hub.RoleLauncher, "a")
	h.Connect("sess", b, hub.RoleLauncher, "b")

	handler.Handle("sess", a, []byte(`{"type":"toggle_party","visible":false}`))

	msg := b.last(t)
	assert.Equal(t, "toggle_party", msg["type"])
	assert.Equal(t, false, msg["visible"])
}

func TestMalformedMessageDropped(t *testing.T) {
	handler, h, _ := newFixture()
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	h.Connect("sess", a, hub.RoleLauncher, "a")
	h.Connect("sess", b, hub.RoleLauncher, "b")

	before := b.count()
	handler.Handle("sess", a, []byte(`{not json`))
	handler.Handle("sess", a, []byte(`{"type":"token_moved"}`))

	assert.Equal(t, before, b.count())
}
