// Package combat implements the per-session turn-based encounter state
// machine: initiative rolls, turn and round tracking, hit point
// bookkeeping and the narrated event log.
package combat

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"cronista/internal/dice"
)

var (
	// ErrNoEncounter reports an operation on a session with no active combat.
	ErrNoEncounter = errors.New("no active encounter")
	// ErrTargetNotFound reports a damage or heal target that matched no combatant.
	ErrTargetNotFound = errors.New("target not found")
)

// Kind distinguishes player characters from enemies.
type Kind string

const (
	KindPlayer Kind = "pj"
	KindEnemy  Kind = "enemigo"
)

// Combatant is one participant in an encounter. Field names follow the
// wire format the table clients consume.
type Combatant struct {
	Name       string   `json:"nombre"`
	Kind       Kind     `json:"tipo"`
	Initiative int      `json:"iniciativa"`
	HP         int      `json:"hp_actual"`
	MaxHP      int      `json:"hp_max"`
	AC         int      `json:"ac"`
	Conditions []string `json:"condiciones"`
	Attack     string   `json:"ataque,omitempty"`
	Damage     string   `json:"dano,omitempty"`
}

// Encounter is the full combat state for one session.
type Encounter struct {
	Active     bool        `json:"activo"`
	Turn       int         `json:"turno_actual"`
	Round      int         `json:"ronda"`
	Combatants []Combatant `json:"combatientes"`
	Log        []string    `json:"log"`
}

func (e Encounter) clone() Encounter {
	out := e
	out.Combatants = make([]Combatant, len(e.Combatants))
	for i, c := range e.Combatants {
		c.Conditions = append([]string(nil), c.Conditions...)
		out.Combatants[i] = c
	}
	out.Log = append([]string(nil), e.Log...)
	return out
}

func (e *Encounter) hasName(name string) bool {
	for _, c := range e.Combatants {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (e *Encounter) sortByInitiative() {
	sort.SliceStable(e.Combatants, func(i, j int) bool {
		return e.Combatants[i].Initiative > e.Combatants[j].Initiative
	})
}

// PartyMember describes a player character entering combat. The
// iniciativa field is the initiative modifier added to the d20 roll.
type PartyMember struct {
	Name          string `json:"nombre"`
	InitiativeMod int    `json:"iniciativa"`
	HP            int    `json:"hp"`
	MaxHP         int    `json:"hp_max"`
	AC            int    `json:"ac"`
}

// Enemy describes one enemy stat block.
type Enemy struct {
	Name   string `json:"nombre"`
	HP     int    `json:"hp"`
	AC     int    `json:"ac"`
	Attack string `json:"ataque"`
	Damage string `json:"dano"`
}

// EnemyGroup is an enemy stat block plus a group size, which may be a
// fixed count or a dice expression resolved at encounter start.
type EnemyGroup struct {
	Enemy
	Count dice.Quantity `json:"cantidad"`
}

type session struct {
	mu  sync.Mutex
	enc *Encounter
}

// Engine tracks at most one active encounter per session. All mutating
// operations on a session are serialized; distinct sessions proceed
// independently.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*session
	roll     func(sides int) int
	logger   *slog.Logger
}

// NewEngine returns an Engine rolling with the default math/rand source.
func NewEngine(logger *slog.Logger) *Engine {
	return NewEngineWithRoll(logger, dice.DefaultRoller)
}

// NewEngineWithRoll returns an Engine using the given roller, which
// lets tests pin initiative and group-size rolls.
func NewEngineWithRoll(logger *slog.Logger, roll func(sides int) int) *Engine {
	return &Engine{
		sessions: make(map[string]*session),
		roll:     roll,
		logger:   logger.With(slog.String("system", "combat")),
	}
}

func (en *Engine) session(id string) *session {
	en.mu.RLock()
	s, ok := en.sessions[id]
	en.mu.RUnlock()
	if ok {
		return s
	}

	en.mu.Lock()
	defer en.mu.Unlock()
	if s, ok = en.sessions[id]; ok {
		return s
	}
	s = &session{}
	en.sessions[id] = s
	return s
}

func defaultEnemy(spec Enemy) Enemy {
	if spec.Name == "" {
		spec.Name = "Desconocido"
	}
	if spec.HP <= 0 {
		spec.HP = 10
	}
	if spec.AC <= 0 {
		spec.AC = 10
	}
	if spec.Attack == "" {
		spec.Attack = "+0"
	}
	if spec.Damage == "" {
		spec.Damage = "1d4"
	}
	return spec
}

// Start builds a fresh encounter for the session, replacing any active
// one. Party members roll d20 plus their modifier; each resolved enemy
// rolls a bare d20. The list is sorted descending by initiative, turn
// index 0, round 1.
func (en *Engine) Start(sessionID string, enemies []EnemyGroup, party []PartyMember) Encounter {
	s := en.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := &Encounter{Active: true, Round: 1, Log: []string{"Inicio de combate"}}

	for _, pj := range party {
		if pj.Name == "" {
			continue
		}
		hp, maxHP := pj.HP, pj.MaxHP
		if maxHP <= 0 {
			maxHP = 20
		}
		if hp <= 0 || hp > maxHP {
			hp = maxHP
		}
		ac := pj.AC
		if ac <= 0 {
			ac = 10
		}
		enc.Combatants = append(enc.Combatants, Combatant{
			Name:       pj.Name,
			Kind:       KindPlayer,
			Initiative: en.roll(20) + pj.InitiativeMod,
			HP:         hp,
			MaxHP:      maxHP,
			AC:         ac,
			Conditions: []string{},
		})
	}

	for _, group := range enemies {
		spec := defaultEnemy(group.Enemy)
		n := group.Count.Resolve(en.roll)
		for i := 0; i < n; i++ {
			name := spec.Name
			if n > 1 {
				name = fmt.Sprintf("%s %d", spec.Name, i+1)
			}
			enc.Combatants = append(enc.Combatants, Combatant{
				Name:       name,
				Kind:       KindEnemy,
				Initiative: en.roll(20),
				HP:         spec.HP,
				MaxHP:      spec.HP,
				AC:         spec.AC,
				Conditions: []string{},
				Attack:     spec.Attack,
				Damage:     spec.Damage,
			})
		}
	}

	enc.sortByInitiative()
	s.enc = enc

	en.logger.Info("combat started",
		slog.String("session", sessionID),
		slog.Int("combatants", len(enc.Combatants)))
	return enc.clone()
}

// NextTurn advances the turn index modulo the combatant count. When the
// index wraps, the round counter increments and a round line is logged.
// Incapacitated combatants are not skipped; that policy belongs to the
// caller.
func (en *Engine) NextTurn(sessionID string) (Encounter, error) {
	s := en.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil || len(s.enc.Combatants) == 0 {
		return Encounter{}, ErrNoEncounter
	}

	s.enc.Turn = (s.enc.Turn + 1) % len(s.enc.Combatants)
	if s.enc.Turn == 0 {
		s.enc.Round++
		s.enc.Log = append(s.enc.Log, fmt.Sprintf("Ronda %d", s.enc.Round))
		en.logger.Info("new round", slog.String("session", sessionID), slog.Int("round", s.enc.Round))
	}
	return s.enc.clone(), nil
}

// AddCombatant inserts an enemy into an active encounter with a fresh
// d20 initiative, disambiguating name collisions with a numeric suffix,
// and re-sorts by initiative. Re-sorting can shift the currently acting
// combatant relative to the turn index; that is accepted tracker
// behaviour.
func (en *Engine) AddCombatant(sessionID string, spec Enemy) (Encounter, error) {
	s := en.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return Encounter{}, ErrNoEncounter
	}

	spec = defaultEnemy(spec)
	name := spec.Name
	for n := 1; s.enc.hasName(name); {
		n++
		name = fmt.Sprintf("%s %d", spec.Name, n)
	}

	init := en.roll(20)
	s.enc.Combatants = append(s.enc.Combatants, Combatant{
		Name:       name,
		Kind:       KindEnemy,
		Initiative: init,
		HP:         spec.HP,
		MaxHP:      spec.HP,
		AC:         spec.AC,
		Conditions: []string{},
		Attack:     spec.Attack,
		Damage:     spec.Damage,
	})
	s.enc.sortByInitiative()
	s.enc.Log = append(s.enc.Log, fmt.Sprintf("%s se une al combate (Iniciativa: %d)", name, init))

	en.logger.Info("combatant added", slog.String("session", sessionID), slog.String("name", name))
	return s.enc.clone(), nil
}

// ApplyDamage subtracts hit points from the named combatant, clamping
// at zero.
func (en *Engine) ApplyDamage(sessionID, target string, amount int) (Encounter, error) {
	s := en.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return Encounter{}, ErrNoEncounter
	}

	for i := range s.enc.Combatants {
		c := &s.enc.Combatants[i]
		if c.Name != target {
			continue
		}
		oldHP := c.HP
		c.HP = max(0, c.HP-amount)
		s.enc.Log = append(s.enc.Log,
			fmt.Sprintf("%s recibe %d daño (%d → %d HP)", target, amount, oldHP, c.HP))
		if c.HP == 0 {
			en.logger.Warn("combatant down", slog.String("session", sessionID), slog.String("name", target))
		}
		return s.enc.clone(), nil
	}

	en.logger.Warn("damage target not found", slog.String("session", sessionID), slog.String("target", target))
	return s.enc.clone(), ErrTargetNotFound
}

// Heal restores hit points to the named combatant, clamping at max HP.
func (en *Engine) Heal(sessionID, target string, amount int) (Encounter, error) {
	s := en.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return Encounter{}, ErrNoEncounter
	}

	for i := range s.enc.Combatants {
		c := &s.enc.Combatants[i]
		if c.Name != target {
			continue
		}
		oldHP := c.HP
		c.HP = min(c.MaxHP, c.HP+amount)
		s.enc.Log = append(s.enc.Log,
			fmt.Sprintf("%s recupera %d HP (%d → %d HP)", target, c.HP-oldHP, oldHP, c.HP))
		return s.enc.clone(), nil
	}

	en.logger.Warn("heal target not found", slog.String("session", sessionID), slog.String("target", target))
	return s.enc.clone(), ErrTargetNotFound
}

// End discards the session's encounter and reports the round count it
// reached, for journal logging.
func (en *Engine) End(sessionID string) (rounds int, err error) {
	s := en.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return 0, ErrNoEncounter
	}
	rounds = s.enc.Round
	s.enc = nil

	en.logger.Info("combat ended", slog.String("session", sessionID), slog.Int("rounds", rounds))
	return rounds, nil
}

// State returns a copy of the session's encounter, or an inactive
// zero state when there is none.
func (en *Engine) State(sessionID string) Encounter {
	s := en.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return Encounter{Active: false}
	}
	return s.enc.clone()
}

// Restore replaces the session's encounter with a saved snapshot. An
// inactive snapshot clears the session.
func (en *Engine) Restore(sessionID string, enc Encounter) {
	s := en.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !enc.Active {
		s.enc = nil
		return
	}
	restored := enc.clone()
	s.enc = &restored
}
