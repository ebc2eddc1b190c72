package session

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"cronista/internal/board"
	"cronista/internal/combat"
)

func newRegistry() *Registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := board.NewStore(logger)
	c := combat.NewEngineWithRoll(logger, func(int) int { return 10 })
	return NewRegistry(b, c)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	src := newRegistry()
	src.board.SetBackground("sess", "/maps/cave.png")
	src.board.AddToken("sess", board.Token{ID: "t1", Name: "Hero", X: 1, Y: 2, Kind: "pj"})
	src.combat.Start("sess",
		[]combat.EnemyGroup{{Enemy: combat.Enemy{Name: "Goblin", HP: 7}}},
		[]combat.PartyMember{{Name: "A"}},
	)

	snap := src.Snapshot("sess")

	// survive a JSON round trip, as the store persists it
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	dst := newRegistry()
	dst.Restore("sess", decoded)

	got := dst.Snapshot("sess")
	if got.Board.Background != "/maps/cave.png" {
		t.Fatalf("background lost: %q", got.Board.Background)
	}
	if len(got.Board.Tokens) != 1 || got.Board.Tokens[0].Name != "Hero" {
		t.Fatalf("tokens lost: %+v", got.Board.Tokens)
	}
	if !got.Combat.Active || len(got.Combat.Combatants) != 2 {
		t.Fatalf("combat lost: %+v", got.Combat)
	}
}

func TestRestoreInactiveCombat(t *testing.T) {
	r := newRegistry()
	r.combat.Start("sess", nil, []combat.PartyMember{{Name: "A"}})

	r.Restore("sess", Snapshot{})

	if r.combat.State("sess").Active {
		t.Fatal("expected combat cleared after restoring inactive snapshot")
	}
}
