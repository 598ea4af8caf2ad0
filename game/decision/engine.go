// Package decision scores every option the controlled entity has on its
// turn and turns the winner into command lines.
package decision

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/kasuganosora/arenabot/game/registry"
)

var (
	ErrNoTargets     = errors.New("decision: no targets")
	ErrUnknownAction = errors.New("decision: unknown action")
)

// Options toggles the optional skills.
type Options struct {
	Taunt      bool
	ShadowCopy bool
	Analysis   bool
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Choice     Candidate `json:"choice"`
	Considered int       `json:"considered"`
	Commands   []Command `json:"commands"`
}

// Engine is not safe for concurrent use; its random source is owned by the
// single decision worker.
type Engine struct {
	opts Options
	rng  *rand.Rand
}

// New creates an Engine. A nil rng is seeded from the clock.
func New(opts Options, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{opts: opts, rng: rng}
}

// Decide picks the best jittered candidate and plans its commands.
func (e *Engine) Decide(s Situation) (Decision, error) {
	cands := e.Candidates(s)
	if len(cands) == 0 {
		return Decision{}, fmt.Errorf("%w for %s", ErrNoTargets, s.Actor.ID)
	}
	best := e.pick(cands)
	cmds, err := Plan(s.Actor, s.Form, best)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Choice: best, Considered: len(cands), Commands: cmds}, nil
}

// pick applies an independent ±5–10% jitter to every score and returns the
// maximum. The returned candidate keeps its jittered score.
func (e *Engine) pick(cands []Candidate) Candidate {
	best := -1
	bestScore := 0.0
	for i := range cands {
		j := jitterMin + e.rng.Float64()*(jitterMax-jitterMin)
		if e.rng.Intn(2) == 0 {
			j = -j
		}
		sc := cands[i].Score * (1 + j)
		if best < 0 || sc > bestScore {
			best, bestScore = i, sc
		}
	}
	c := cands[best]
	c.Score = bestScore
	return c
}

// ThinkTime draws a deliberation delay in [lo, hi].
func (e *Engine) ThinkTime(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.rng.Int63n(int64(hi-lo)+1))
}

// Plan turns a candidate into the commands that carry it out, preceded by
// an equip step when another weapon is needed.
func Plan(actor *registry.Combatant, form Form, c Candidate) ([]Command, error) {
	base := Command{Form: form, Actor: actor.ID}
	var cmds []Command
	if c.Weapon != "" && !strings.EqualFold(c.Weapon, equipped(actor.Character)) {
		eq := base
		eq.Verb, eq.Ability = VerbEquip, c.Weapon
		cmds = append(cmds, eq)
	}

	act := base
	act.Target = c.Target
	switch c.Kind {
	case KindAttack:
		act.Verb = VerbAttack
	case KindTech:
		act.Verb, act.Ability = VerbTech, c.Ability
	case KindTaunt:
		act.Verb = VerbTaunt
	case KindSkill:
		act.Verb, act.Ability = VerbSkill, c.Ability
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownAction, c.Kind)
	}
	cmds = append(cmds, act)

	for _, cmd := range cmds {
		if err := cmd.Validate(); err != nil {
			return nil, err
		}
	}
	return cmds, nil
}
