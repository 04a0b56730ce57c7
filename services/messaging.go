package services

import (
	"context"
	"errors"
)

// ErrNoRecipient means the student has no address on a channel.
var ErrNoRecipient = errors.New("no recipient address on this channel")

// Messenger delivers a plain-text message on one channel.
type Messenger interface {
	Channel() string
	Enabled() bool
	Send(ctx context.Context, to, message string) error
}

// MessengerSet indexes messengers by channel name.
type MessengerSet map[string]Messenger

func NewMessengerSet(ms ...Messenger) MessengerSet {
	set := MessengerSet{}
	for _, m := range ms {
		if m != nil {
			set[m.Channel()] = m
		}
	}
	return set
}

// Active returns the enabled messenger for channel, or nil.
func (s MessengerSet) Active(channel string) Messenger {
	m, ok := s[channel]
	if !ok || !m.Enabled() {
		return nil
	}
	return m
}

// Status reports each known channel as enabled or disabled.
func (s MessengerSet) Status() map[string]bool {
	out := make(map[string]bool, len(s))
	for ch, m := range s {
		out[ch] = m.Enabled()
	}
	return out
}
