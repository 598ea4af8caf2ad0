package arena

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/game/decision"
)

// Pub/sub channels observers subscribe to.
const (
	ChannelCommands    = "arena:commands"
	ChannelDiagnostics = "arena:diagnostics"
)

// NoticeKind separates commands from diagnostics.
type NoticeKind string

const (
	NoticeCommand    NoticeKind = "command"
	NoticeDiagnostic NoticeKind = "diagnostic"
)

// Notice is one outgoing line.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Line     string     `json:"line"`
	BattleID string     `json:"battle_id,omitempty"`
	At       time.Time  `json:"at"`
}

// Outbox delivers notices to the transport.
type Outbox interface {
	Deliver(ctx context.Context, n Notice) error
}

// Fanout delivers to every outbox and joins their errors.
type Fanout []Outbox

func (f Fanout) Deliver(ctx context.Context, n Notice) error {
	var errs []error
	for _, o := range f {
		if err := o.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PubSubOutbox publishes notices as JSON on the arena channels.
type PubSubOutbox struct {
	PS cache.PubSub
}

func (p PubSubOutbox) Deliver(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	channel := ChannelCommands
	if n.Kind == NoticeDiagnostic {
		channel = ChannelDiagnostics
	}
	return p.PS.Publish(ctx, channel, string(body))
}

// Emission is the payload of the before/after command hooks. A
// BeforeCommandEmit handler may rewrite Line.
type Emission struct {
	BattleID string
	Command  decision.Command
	Line     string
}
