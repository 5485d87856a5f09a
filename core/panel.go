package core

import "strings"

// PanelState models the lifecycle of one panel task within a run.
type PanelState string

const (
	// PanelStateQueued means the task awaits a scheduler slot.
	PanelStateQueued PanelState = "queued"
	// PanelStateRunning means the task holds a slot and drives an adapter call.
	PanelStateRunning PanelState = "running"
	// PanelStateSucceeded means the adapter delivered a final response.
	PanelStateSucceeded PanelState = "succeeded"
	// PanelStateFailed means the adapter call ended in a classified error.
	PanelStateFailed PanelState = "failed"
	// PanelStateSkipped means the context precheck rejected the panel before
	// dispatch; the task never touched the network and never held a slot.
	PanelStateSkipped PanelState = "skipped"
)

// Terminal reports whether the state is final.
func (s PanelState) Terminal() bool {
	switch s {
	case PanelStateSucceeded, PanelStateFailed, PanelStateSkipped:
		return true
	}
	return false
}

// FinishReason is the normalized classification of why a panel's generation
// stopped. Providers report materially different vocabularies; adapters map
// them onto this shared enum so nothing downstream special-cases a vendor.
type FinishReason string

const (
	// FinishStop is a natural end of generation.
	FinishStop FinishReason = "stop"
	// FinishLength means the output was cut by a token limit; the panel's
	// output is truncated.
	FinishLength FinishReason = "length"
	// FinishError means generation ended due to a provider-side condition.
	FinishError FinishReason = "error"
)

// Truncated reports whether the reason marks the output as cut short.
func (r FinishReason) Truncated() bool { return r == FinishLength }

// NormalizeFinishReason maps a provider-native stop reason onto the shared
// enum. Length-class reasons across the supported providers ("length",
// "max_tokens", "MAX_TOKENS") normalize to FinishLength; recognized natural
// stops to FinishStop; anything else to FinishError.
func NormalizeFinishReason(raw string) FinishReason {
	switch strings.ToLower(raw) {
	case "", "stop", "end_turn", "stop_sequence", "finish_reason_stop":
		return FinishStop
	case "length", "max_tokens", "finish_reason_max_tokens":
		return FinishLength
	default:
		return FinishError
	}
}
