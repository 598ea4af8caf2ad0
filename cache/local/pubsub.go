package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscription struct {
	ch       chan *LocalMessage
	channels []string
}

// LocalPubSub is an in-process fan-out pub/sub. Slow subscribers lose
// messages instead of blocking publishers.
type LocalPubSub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	bufSize int
}

// NewPubSub creates a LocalPubSub with the given per-subscriber buffer.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{subs: map[string]map[*subscription]struct{}{}, bufSize: bufSize}
}

// Publish delivers message to every current subscriber of channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	// Sends happen under the read lock so cancel cannot close a channel
	// mid-send.
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for s := range ps.subs[channel] {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns one stream for all channels and an idempotent cancel
// that closes it.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	s := &subscription{ch: make(chan *LocalMessage, ps.bufSize), channels: channels}

	ps.mu.Lock()
	for _, c := range channels {
		set, ok := ps.subs[c]
		if !ok {
			set = map[*subscription]struct{}{}
			ps.subs[c] = set
		}
		set[s] = struct{}{}
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			defer ps.mu.Unlock()
			for _, c := range s.channels {
				delete(ps.subs[c], s)
				if len(ps.subs[c]) == 0 {
					delete(ps.subs, c)
				}
			}
			close(s.ch)
		})
	}
	return s.ch, cancel, nil
}
