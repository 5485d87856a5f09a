package testutil

import (
	"fmt"
	"time"

	"github.com/hupe1980/panelrun/core"
)

// DrainEvents collects every event from a run stream until the channel closes
// or the timeout elapses. The timeout guards against deadlocked runs turning
// into hung tests.
func DrainEvents(ch <-chan core.Event, timeout time.Duration) ([]core.Event, error) {
	var events []core.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events, nil
			}
			events = append(events, ev)
		case <-deadline:
			return events, fmt.Errorf("stream not closed after %s (%d events so far)", timeout, len(events))
		}
	}
}

// FilterByConfig returns the events carrying the given config id, preserving
// stream order.
func FilterByConfig(events []core.Event, configID string) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.ConfigID == configID {
			out = append(out, ev)
		}
	}
	return out
}

// FilterByType returns the events of the given type, preserving stream order.
func FilterByType(events []core.Event, t core.EventType) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// JoinTokens concatenates the token payloads of the panel_token events for a
// config id, in stream order.
func JoinTokens(events []core.Event, configID string) string {
	var s string
	for _, ev := range events {
		if ev.Type == core.EventPanelToken && ev.ConfigID == configID {
			s += ev.Token
		}
	}
	return s
}
