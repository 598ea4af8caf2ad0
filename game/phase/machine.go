// Package phase tracks the battle lifecycle, the global turn counter and
// the battlefield-wide timers.
package phase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// State is a battle lifecycle state.
type State string

const (
	Idle    State = "idle"
	Open    State = "open"
	Started State = "started"
	Ended   State = "ended"
)

const (
	evOpen  = "open"
	evStart = "start"
	evEnd   = "end"
	evReset = "reset"
)

// ErrTransition is returned when an event does not apply to the current state.
var ErrTransition = errors.New("phase: invalid transition")

// BattleType is the kind of battle that was opened.
type BattleType string

const (
	BattleNormal     BattleType = "normal"
	BattleBoss       BattleType = "boss"
	BattleGauntlet   BattleType = "gauntlet"
	BattlePvP        BattleType = "pvp"
	BattleSiege      BattleType = "siege"
	BattleNPCDuel    BattleType = "npc-duel"
	BattleDragonHunt BattleType = "dragonhunt"
	BattleTorment    BattleType = "torment"
)

// ParseBattleType falls back to normal for unrecognized names.
func ParseBattleType(s string) BattleType {
	switch bt := BattleType(strings.ToLower(strings.TrimSpace(s))); bt {
	case BattleBoss, BattleGauntlet, BattlePvP, BattleSiege, BattleNPCDuel, BattleDragonHunt, BattleTorment:
		return bt
	}
	return BattleNormal
}

// Condition is a battlefield rule that disables a class of actions.
type Condition string

const (
	NoTechs        Condition = "no-techs"
	NoSkills       Condition = "no-skills"
	NoItems        Condition = "no-items"
	NoWeaponSwitch Condition = "no-weapon-switch"
)

func ParseCondition(s string) (Condition, bool) {
	switch c := Condition(strings.ToLower(strings.TrimSpace(s))); c {
	case NoTechs, NoSkills, NoItems, NoWeaponSwitch:
		return c, true
	}
	return "", false
}

// Outcome is how a battle concluded.
type Outcome string

const (
	OutcomeVictory   Outcome = "victory"
	OutcomeDefeat    Outcome = "defeat"
	OutcomeDraw      Outcome = "draw"
	OutcomeDarkness  Outcome = "darkness"
	OutcomeAbandoned Outcome = "abandoned"
)

// TurnTick reports what one turn-advanced fact did to the global clock.
type TurnTick struct {
	Seq             uint64
	Turn            int
	GlobalAdvanced  bool
	Darkness        int
	DarknessExpired bool
}

// Snapshot is a read-only view of the machine.
type Snapshot struct {
	State      State       `json:"state"`
	BattleID   string      `json:"battle_id,omitempty"`
	BattleType BattleType  `json:"battle_type,omitempty"`
	Turn       int         `json:"turn"`
	TurnSeq    uint64      `json:"turn_seq"`
	Darkness   int         `json:"darkness"`
	HolyAura   int         `json:"holy_aura"`
	Conditions []Condition `json:"conditions"`
	OpenedAt   time.Time   `json:"opened_at,omitempty"`
	StartedAt  time.Time   `json:"started_at,omitempty"`
	EntryClose time.Time   `json:"entry_close,omitempty"`
	Outcome    Outcome     `json:"outcome,omitempty"`
}

// Machine is the battle phase state machine. It is not safe for concurrent
// use.
type Machine struct {
	fsm *fsm.FSM

	battleID    string
	battleType  BattleType
	openedAt    time.Time
	startedAt   time.Time
	entryWindow time.Duration

	turn     int
	seq      uint64
	darkness int
	holyAura int

	conditions map[Condition]bool
	outcome    Outcome

	logger *zap.Logger
}

// New returns a machine in the idle state.
func New(logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{conditions: map[Condition]bool{}, logger: logger}
	m.fsm = fsm.NewFSM(
		string(Idle),
		fsm.Events{
			{Name: evOpen, Src: []string{string(Idle)}, Dst: string(Open)},
			{Name: evStart, Src: []string{string(Open)}, Dst: string(Started)},
			{Name: evEnd, Src: []string{string(Open), string(Started)}, Dst: string(Ended)},
			{Name: evReset, Src: []string{string(Ended)}, Dst: string(Idle)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.logger.Debug("battle phase changed",
					zap.String("from", e.Src),
					zap.String("to", e.Dst),
					zap.String("battle_id", m.battleID))
			},
		},
	)
	return m
}

func (m *Machine) fire(ctx context.Context, event string) error {
	if err := m.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("%w: %s in %s: %w", ErrTransition, event, m.fsm.Current(), err)
	}
	return nil
}

// State returns the current lifecycle state.
func (m *Machine) State() State { return State(m.fsm.Current()) }

// Is reports whether the machine is in s.
func (m *Machine) Is(s State) bool { return m.fsm.Is(string(s)) }

// Open begins an entry window. darknessTurns of 0 disables the countdown.
func (m *Machine) Open(ctx context.Context, bt BattleType, entryWindow time.Duration, darknessTurns int) error {
	if err := m.fire(ctx, evOpen); err != nil {
		return err
	}
	m.battleID = uuid.NewString()
	m.battleType = bt
	m.openedAt = time.Now()
	m.startedAt = time.Time{}
	m.entryWindow = entryWindow
	m.turn = 0
	m.seq++
	m.darkness = max(darknessTurns, 0)
	m.holyAura = 0
	m.conditions = map[Condition]bool{}
	m.outcome = ""
	return nil
}

// Start closes the entry window; the global turn becomes 1.
func (m *Machine) Start(ctx context.Context) error {
	if err := m.fire(ctx, evStart); err != nil {
		return err
	}
	m.turn = 1
	m.startedAt = time.Now()
	return nil
}

// End concludes the battle with outcome.
func (m *Machine) End(ctx context.Context, outcome Outcome) error {
	if err := m.fire(ctx, evEnd); err != nil {
		return err
	}
	m.outcome = outcome
	m.seq++
	return nil
}

// Reset returns an ended machine to idle.
func (m *Machine) Reset(ctx context.Context) error {
	if err := m.fire(ctx, evReset); err != nil {
		return err
	}
	m.battleID = ""
	m.turn = 0
	m.darkness = 0
	m.holyAura = 0
	m.conditions = map[Condition]bool{}
	return nil
}

// ObserveTurn records one turn-advanced fact for an actor that has now
// taken actorTurns turns. When the actor runs ahead of the global turn the
// global turn advances and the timers tick: holy aura is consumed first and
// pauses the darkness countdown.
func (m *Machine) ObserveTurn(actorTurns int) TurnTick {
	m.seq++
	tick := TurnTick{Seq: m.seq, Turn: m.turn, Darkness: m.darkness}
	if !m.Is(Started) || actorTurns <= m.turn {
		return tick
	}
	m.turn = actorTurns
	tick.Turn = m.turn
	tick.GlobalAdvanced = true
	switch {
	case m.holyAura > 0:
		m.holyAura--
	case m.darkness > 0:
		m.darkness--
		tick.DarknessExpired = m.darkness == 0
	}
	tick.Darkness = m.darkness
	return tick
}

// TurnSeq changes on every turn-advanced fact and lifecycle change; a
// decision is stale once it differs from the value seen at its start.
func (m *Machine) TurnSeq() uint64 { return m.seq }

func (m *Machine) Turn() int { return m.turn }

func (m *Machine) BattleID() string { return m.battleID }

func (m *Machine) BattleType() BattleType { return m.battleType }

// PvP reports whether every other combatant is hostile.
func (m *Machine) PvP() bool { return m.battleType == BattlePvP }

// EntryClose is when the entry window is expected to close.
func (m *Machine) EntryClose() time.Time { return m.openedAt.Add(m.entryWindow) }

// SetHolyAura sets the number of global turns the darkness countdown pauses for.
func (m *Machine) SetHolyAura(turns int) { m.holyAura = max(turns, 0) }

// SetDarkness overrides the remaining darkness turns.
func (m *Machine) SetDarkness(turns int) { m.darkness = max(turns, 0) }

// SetCondition toggles a battlefield condition.
func (m *Machine) SetCondition(c Condition, on bool) {
	if on {
		m.conditions[c] = true
	} else {
		delete(m.conditions, c)
	}
}

// Condition reports whether c is in force.
func (m *Machine) Condition(c Condition) bool { return m.conditions[c] }

// Snapshot copies the machine state.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:      m.State(),
		BattleID:   m.battleID,
		BattleType: m.battleType,
		Turn:       m.turn,
		TurnSeq:    m.seq,
		Darkness:   m.darkness,
		HolyAura:   m.holyAura,
		Conditions: []Condition{},
		Outcome:    m.outcome,
	}
	if !m.Is(Idle) {
		s.OpenedAt = m.openedAt
		s.StartedAt = m.startedAt
		s.EntryClose = m.EntryClose()
	}
	for _, c := range []Condition{NoTechs, NoSkills, NoItems, NoWeaponSwitch} {
		if m.conditions[c] {
			s.Conditions = append(s.Conditions, c)
		}
	}
	return s
}
