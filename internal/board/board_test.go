package board

import (
	"io"
	"log/slog"
	"testing"
)

func newTestStore() *Store {
	return NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAddTokenLastWriteWins(t *testing.T) {
	s := newTestStore()
	s.AddToken("sess", Token{ID: "t1", Name: "Goblin", X: 10, Y: 20})
	s.AddToken("sess", Token{ID: "t1", Name: "Goblin", X: 50, Y: 60})

	snap := s.Snapshot("sess")
	if len(snap.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(snap.Tokens))
	}
	if snap.Tokens[0].X != 50 || snap.Tokens[0].Y != 60 {
		t.Fatalf("expected second write to win, got (%d,%d)", snap.Tokens[0].X, snap.Tokens[0].Y)
	}
}

func TestUpdatePosition(t *testing.T) {
	s := newTestStore()
	s.AddToken("sess", Token{ID: "t1", X: 0, Y: 0})

	if !s.UpdatePosition("sess", "t1", 128, 256) {
		t.Fatal("expected update to succeed")
	}
	if s.UpdatePosition("sess", "missing", 1, 1) {
		t.Fatal("expected update of unknown token to fail")
	}

	snap := s.Snapshot("sess")
	if snap.Tokens[0].X != 128 || snap.Tokens[0].Y != 256 {
		t.Fatalf("position not updated: (%d,%d)", snap.Tokens[0].X, snap.Tokens[0].Y)
	}
}

func TestRemoveToken(t *testing.T) {
	s := newTestStore()
	s.AddToken("sess", Token{ID: "t1"})

	if !s.RemoveToken("sess", "t1") {
		t.Fatal("expected remove to succeed")
	}
	if s.RemoveToken("sess", "t1") {
		t.Fatal("expected second remove to report not found")
	}
	if got := len(s.Tokens("sess")); got != 0 {
		t.Fatalf("expected no tokens, got %d", got)
	}
}

func TestClearTokensPreservesBackground(t *testing.T) {
	s := newTestStore()
	s.SetBackground("sess", "/maps/cave.png")
	s.AddToken("sess", Token{ID: "t1"})
	s.AddToken("sess", Token{ID: "t2"})

	s.ClearTokens("sess")

	snap := s.Snapshot("sess")
	if len(snap.Tokens) != 0 {
		t.Fatalf("expected no tokens, got %d", len(snap.Tokens))
	}
	if snap.Background != "/maps/cave.png" {
		t.Fatalf("background lost: %q", snap.Background)
	}
	if !snap.GridVisible {
		t.Fatal("grid flag lost")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := newTestStore()
	s.AddToken("a", Token{ID: "t1"})
	s.AddToken("b", Token{ID: "t2"})

	if got := len(s.Tokens("a")); got != 1 {
		t.Fatalf("session a: expected 1 token, got %d", got)
	}
	s.ClearTokens("a")
	if got := len(s.Tokens("b")); got != 1 {
		t.Fatalf("session b affected by clear on a: %d tokens", got)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	s := newTestStore()
	s.SetBackground("sess", "/maps/keep.png")
	s.AddToken("sess", Token{ID: "t1", Name: "Hero", X: 1, Y: 2, Kind: "pj"})
	snap := s.Snapshot("sess")

	other := newTestStore()
	other.Restore("sess", snap)

	got := other.Snapshot("sess")
	if got.Background != snap.Background || len(got.Tokens) != 1 || got.Tokens[0] != snap.Tokens[0] {
		t.Fatalf("restore mismatch: %+v vs %+v", got, snap)
	}
}
