package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestPanelState_Terminal(t *testing.T) {
	for _, s := range []PanelState{PanelStateQueued, PanelStateRunning} {
		if s.Terminal() {
			t.Errorf("state %s must not be terminal", s)
		}
	}
	for _, s := range []PanelState{PanelStateSucceeded, PanelStateFailed, PanelStateSkipped} {
		if !s.Terminal() {
			t.Errorf("state %s must be terminal", s)
		}
	}
}

func TestNormalizeFinishReason(t *testing.T) {
	cases := map[string]FinishReason{
		"":                         FinishStop,
		"stop":                     FinishStop,
		"end_turn":                 FinishStop,
		"stop_sequence":            FinishStop,
		"FINISH_REASON_STOP":       FinishStop,
		"length":                   FinishLength,
		"max_tokens":               FinishLength,
		"MAX_TOKENS":               FinishLength,
		"FINISH_REASON_MAX_TOKENS": FinishLength,
		"content_filter":           FinishError,
		"recitation":               FinishError,
	}
	for raw, want := range cases {
		if got := NormalizeFinishReason(raw); got != want {
			t.Errorf("NormalizeFinishReason(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestFinishReason_Truncated(t *testing.T) {
	if FinishStop.Truncated() || FinishError.Truncated() {
		t.Error("only length-class reasons mark truncation")
	}
	if !FinishLength.Truncated() {
		t.Error("length must mark truncation")
	}
}

func TestProviderError_KindAndUnwrap(t *testing.T) {
	cause := errors.New("401 unauthorized")
	pe := NewProviderError(ErrorKindAuth, "openai", cause)

	if KindOf(pe) != ErrorKindAuth {
		t.Errorf("expected auth kind, got %s", KindOf(pe))
	}
	if !errors.Is(pe, cause) {
		t.Error("wrapped cause must be reachable via errors.Is")
	}

	wrapped := fmt.Errorf("panel dispatch: %w", pe)
	if KindOf(wrapped) != ErrorKindAuth {
		t.Error("kind must survive further wrapping")
	}

	if KindOf(errors.New("plain")) != ErrorKindProvider {
		t.Error("unclassified errors default to provider kind")
	}
}

func TestUsage_RemainingAndSnapshot(t *testing.T) {
	u := Usage{Used: 30, Limit: 100, IsPaid: true}
	if u.Remaining() != 70 {
		t.Errorf("expected remaining 70, got %d", u.Remaining())
	}

	over := Usage{Used: 120, Limit: 100}
	if over.Remaining() != 0 {
		t.Errorf("remaining must floor at zero, got %d", over.Remaining())
	}

	snap := u.Snapshot()
	if snap.Used != 30 || snap.Limit != 100 || snap.Remaining != 70 || !snap.IsPaid {
		t.Errorf("snapshot mismatch: %+v", snap)
	}
}
