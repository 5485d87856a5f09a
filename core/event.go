package core

import "time"

// EventType discriminates the outbound event variants of a run stream.
type EventType string

const (
	// EventPanelToken carries one incremental text chunk for a panel.
	EventPanelToken EventType = "panel_token"
	// EventPanelFinal carries the authoritative complete text for a panel.
	EventPanelFinal EventType = "panel_final"
	// EventPanelError reports a failure isolated to one panel. It never
	// closes the stream. Precheck skips ride this type with diagnostic
	// token counts attached.
	EventPanelError EventType = "panel_error"
	// EventRunError reports a run-level failure and closes the stream.
	EventRunError EventType = "run_error"
	// EventRunDone is the final event of every non-error-aborted stream and
	// carries the quota snapshot.
	EventRunDone EventType = "run_done"
)

// QuotaSnapshot is the accounting result attached to run_done.
type QuotaSnapshot struct {
	Used         int       `json:"used"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	IsPaid       bool      `json:"is_paid"`
	PeriodEndsAt time.Time `json:"period_ends_at"`
}

// Event is one entry of a run's ordered outbound stream. Events for the same
// config id preserve adapter production order; events across different config
// ids may interleave in any relative order. After emission an event is
// immutable.
//
// Type is framed out of band (the SSE event name); the remaining fields form
// the JSON data payload, with only the fields relevant to the variant set.
type Event struct {
	Type EventType `json:"-"`

	ConfigID     string       `json:"config_id,omitempty"`
	Token        string       `json:"token,omitempty"`
	Final        string       `json:"final,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Error        string       `json:"error,omitempty"`

	// Precheck diagnostics, set only on skip-flavored panel errors.
	EstimatedTokens int `json:"estimated_tokens,omitempty"`
	ContextWindow   int `json:"context_window,omitempty"`

	Quota *QuotaSnapshot `json:"quota,omitempty"`

	Timestamp time.Time `json:"-"`
}

// NewPanelTokenEvent builds an incremental chunk event for a panel.
func NewPanelTokenEvent(configID, token string) Event {
	return Event{Type: EventPanelToken, ConfigID: configID, Token: token, Timestamp: time.Now().UTC()}
}

// NewPanelFinalEvent builds the terminal success event for a panel carrying
// the complete assembled text, not just the last chunk.
func NewPanelFinalEvent(configID, final string, reason FinishReason) Event {
	return Event{Type: EventPanelFinal, ConfigID: configID, Final: final, FinishReason: reason, Timestamp: time.Now().UTC()}
}

// NewPanelErrorEvent builds the terminal failure event for a panel.
func NewPanelErrorEvent(configID, message string) Event {
	return Event{Type: EventPanelError, ConfigID: configID, Error: message, Timestamp: time.Now().UTC()}
}

// NewPanelSkippedEvent builds the terminal event for a panel rejected by the
// context precheck, carrying the estimated and limit counts so the caller can
// explain why without the provider ever having been invoked.
func NewPanelSkippedEvent(configID, message string, estimated, window int) Event {
	return Event{
		Type:            EventPanelError,
		ConfigID:        configID,
		Error:           message,
		EstimatedTokens: estimated,
		ContextWindow:   window,
		Timestamp:       time.Now().UTC(),
	}
}

// NewRunErrorEvent builds the run-level failure event.
func NewRunErrorEvent(message string) Event {
	return Event{Type: EventRunError, Error: message, Timestamp: time.Now().UTC()}
}

// NewRunDoneEvent builds the final event of a settled run.
func NewRunDoneEvent(quota QuotaSnapshot) Event {
	return Event{Type: EventRunDone, Quota: &quota, Timestamp: time.Now().UTC()}
}

// IsPanelTerminal reports whether the event settles a panel (final or error).
func (e Event) IsPanelTerminal() bool {
	return e.Type == EventPanelFinal || e.Type == EventPanelError
}

// IsRunTerminal reports whether the event closes the stream.
func (e Event) IsRunTerminal() bool {
	return e.Type == EventRunDone || e.Type == EventRunError
}
