package identity

import (
	"strings"

	"github.com/kasuganosora/arenabot/game/registry"
	"go.uber.org/zap"
)

// Unmatched is a display name or short identifier waiting for its
// counterpart.
type Unmatched struct {
	Value    string
	Category registry.Category
	Seq      int
}

// Binding pairs a short identifier with the display name it was narrated as.
// NameSeq and IDSeq are the Seq values of the consumed pool entries.
type Binding struct {
	ID       string
	Name     string
	Category registry.Category
	Score    float64
	NameSeq  int
	IDSeq    int
}

type pair struct {
	name, id int
	score    float64
}

// MatchNames assigns names to ids. When both pools are the same size and
// exactly one category-compatible pair exists it is bound outright;
// otherwise the best scoring pair is bound repeatedly until a pool empties
// or no compatible pair remains, even when the best score is zero. Ties go
// to the pair seen first (name order, then id order), which can mis-bind
// symmetric ambiguity.
func MatchNames(names, ids []Unmatched) []Binding {
	names = append([]Unmatched(nil), names...)
	ids = append([]Unmatched(nil), ids...)
	var out []Binding

	for len(names) > 0 && len(ids) > 0 {
		var eligible []pair
		for i, n := range names {
			for j, id := range ids {
				if registry.Overlaps(n.Category, id.Category) {
					eligible = append(eligible, pair{name: i, id: j})
				}
			}
		}
		if len(eligible) == 0 {
			break
		}

		var best pair
		if len(eligible) == 1 && len(names) == len(ids) {
			best = eligible[0]
			best.score = Score(ids[best.id].Value, names[best.name].Value)
		} else {
			best.score = -1
			for _, p := range eligible {
				p.score = Score(ids[p.id].Value, names[p.name].Value)
				if p.score > best.score {
					best = p
				}
			}
		}

		n, id := names[best.name], ids[best.id]
		cat := n.Category
		if cat == registry.CategoryUnknown {
			cat = id.Category
		}
		out = append(out, Binding{
			ID:       id.Value,
			Name:     n.Value,
			Category: cat,
			Score:    best.score,
			NameSeq:  n.Seq,
			IDSeq:    id.Seq,
		})
		names = append(names[:best.name], names[best.name+1:]...)
		ids = append(ids[:best.id], ids[best.id+1:]...)
	}
	return out
}

// Resolver keeps the unmatched pools of the current battle. It is not safe
// for concurrent use.
type Resolver struct {
	names  []Unmatched
	ids    []Unmatched
	seq    int
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// AddName queues a narrated display name.
func (r *Resolver) AddName(name string, cat registry.Category) {
	r.seq++
	r.names = append(r.names, Unmatched{Value: name, Category: cat, Seq: r.seq})
}

// AddID queues a short identifier that has no display name yet. Duplicate
// identifiers are ignored.
func (r *Resolver) AddID(id string, cat registry.Category) {
	for _, u := range r.ids {
		if strings.EqualFold(u.Value, id) {
			return
		}
	}
	r.seq++
	r.ids = append(r.ids, Unmatched{Value: id, Category: cat, Seq: r.seq})
}

// Resolve runs one matching pass and removes bound entries from the pools.
func (r *Resolver) Resolve() []Binding {
	if len(r.names) == 0 || len(r.ids) == 0 {
		return nil
	}
	bindings := MatchNames(r.names, r.ids)
	for _, b := range bindings {
		r.names = removeSeq(r.names, b.NameSeq)
		r.ids = removeSeq(r.ids, b.IDSeq)
		r.logger.Debug("identity bound",
			zap.String("id", b.ID),
			zap.String("name", b.Name),
			zap.Float64("score", b.Score))
	}
	return bindings
}

// DropNames discards names that never found an identifier and returns them.
func (r *Resolver) DropNames() []string {
	dropped := make([]string, 0, len(r.names))
	for _, n := range r.names {
		dropped = append(dropped, n.Value)
	}
	if len(dropped) > 0 {
		r.logger.Info("unresolved names dropped", zap.Strings("names", dropped))
	}
	r.names = nil
	return dropped
}

// Pending returns the current pool sizes.
func (r *Resolver) Pending() (names, ids int) {
	return len(r.names), len(r.ids)
}

// Reset clears both pools.
func (r *Resolver) Reset() {
	r.names = nil
	r.ids = nil
	r.seq = 0
}

func removeSeq(pool []Unmatched, seq int) []Unmatched {
	for i, u := range pool {
		if u.Seq == seq {
			return append(pool[:i], pool[i+1:]...)
		}
	}
	return pool
}
