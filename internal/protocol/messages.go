package protocol

import (
	"cronista/internal/board"
	"cronista/internal/combat"
	"cronista/internal/hub"
)

// Envelope is the role-agnostic shape of every inbound socket message.
// Unknown types are rebroadcast verbatim for forward compatibility.
type Envelope struct {
	Type string `json:"type"`
}

// TokenMoved is the inbound token drag message.
type TokenMoved struct {
	TokenID string `json:"token_id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

// ClientsList answers a request_clients query.
type ClientsList struct {
	Type    string           `json:"type"`
	Clients []hub.ClientInfo `json:"clients"`
	Total   int              `json:"total"`
}

// MapState answers a request_map_state query.
type MapState struct {
	Type       string        `json:"type"`
	Background string        `json:"background"`
	Tokens     []board.Token `json:"tokens"`
}

// TokenUpdated is broadcast after a successful position change.
type TokenUpdated struct {
	Type    string `json:"type"`
	TokenID string `json:"token_id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

// TokenCreated is broadcast when a token appears on the board.
type TokenCreated struct {
	Type  string      `json:"type"`
	Token board.Token `json:"token"`
}

// TokenRemoved is broadcast when a token is deleted.
type TokenRemoved struct {
	Type    string `json:"type"`
	TokenID string `json:"token_id"`
}

// ClearMap is broadcast when the board's token set is emptied.
type ClearMap struct {
	Type string `json:"type"`
}

// CombatUpdate carries the full combat snapshot after any combat
// mutation.
type CombatUpdate struct {
	Type   string           `json:"type"`
	Combat combat.Encounter `json:"combat"`
}

// Scene is the board/scene projection broadcast.
type Scene struct {
	Type      string `json:"type"`
	ShowVTT   bool   `json:"show_vtt"`
	Image     string `json:"img,omitempty"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Narrative string `json:"narrativa"`
}

// DiceResult carries a dice roll outcome to the whole session.
type DiceResult struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func NewCombatUpdate(enc combat.Encounter) CombatUpdate {
	return CombatUpdate{Type: "combat_update", Combat: enc}
}

func NewTokenCreated(tok board.Token) TokenCreated {
	return TokenCreated{Type: "token_created", Token: tok}
}

func NewTokenRemoved(tokenID string) TokenRemoved {
	return TokenRemoved{Type: "token_removed", TokenID: tokenID}
}

func NewClearMap() ClearMap {
	return ClearMap{Type: "clear_map"}
}

func NewDiceResult(data any) DiceResult {
	return DiceResult{Type: "dice_result", Data: data}
}
