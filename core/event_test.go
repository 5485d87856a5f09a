package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// Event constructor & helper method tests
func TestEvent_Constructors(t *testing.T) {
	tok := NewPanelTokenEvent("cfg-1", "hel")
	if tok.Type != EventPanelToken || tok.ConfigID != "cfg-1" || tok.Token != "hel" || tok.Timestamp.IsZero() {
		t.Fatalf("NewPanelTokenEvent did not initialize fields correctly: %+v", tok)
	}

	fin := NewPanelFinalEvent("cfg-1", "hello", FinishLength)
	if fin.Type != EventPanelFinal || fin.Final != "hello" || fin.FinishReason != FinishLength {
		t.Fatalf("NewPanelFinalEvent malformed: %+v", fin)
	}

	perr := NewPanelErrorEvent("cfg-2", "authentication failed: bad key")
	if perr.Type != EventPanelError || perr.Error == "" || perr.EstimatedTokens != 0 {
		t.Fatalf("NewPanelErrorEvent malformed: %+v", perr)
	}

	skip := NewPanelSkippedEvent("cfg-3", "too big", 5000, 4096)
	if skip.Type != EventPanelError || skip.EstimatedTokens != 5000 || skip.ContextWindow != 4096 {
		t.Fatalf("NewPanelSkippedEvent malformed: %+v", skip)
	}

	done := NewRunDoneEvent(QuotaSnapshot{Used: 3, Limit: 100, Remaining: 97})
	if done.Type != EventRunDone || done.Quota == nil || done.Quota.Remaining != 97 {
		t.Fatalf("NewRunDoneEvent malformed: %+v", done)
	}
}

func TestEvent_TerminalClassification(t *testing.T) {
	if NewPanelTokenEvent("a", "x").IsPanelTerminal() {
		t.Error("token event must not be panel terminal")
	}
	if !NewPanelFinalEvent("a", "x", FinishStop).IsPanelTerminal() {
		t.Error("final event must be panel terminal")
	}
	if !NewPanelErrorEvent("a", "boom").IsPanelTerminal() {
		t.Error("panel error must be panel terminal")
	}
	if NewPanelErrorEvent("a", "boom").IsRunTerminal() {
		t.Error("panel error must not close the stream")
	}
	if !NewRunDoneEvent(QuotaSnapshot{}).IsRunTerminal() {
		t.Error("run_done must be run terminal")
	}
	if !NewRunErrorEvent("boom").IsRunTerminal() {
		t.Error("run_error must be run terminal")
	}
}

// The SSE transport frames Type out of band; the JSON payload must not carry
// it, and absent fields must be omitted entirely.
func TestEvent_JSONPayload(t *testing.T) {
	data, err := json.Marshal(NewPanelTokenEvent("cfg-1", "hi"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload := string(data)
	if strings.Contains(payload, "panel_token") {
		t.Errorf("payload must not embed the event type: %s", payload)
	}
	if strings.Contains(payload, "quota") || strings.Contains(payload, "final") {
		t.Errorf("unset fields must be omitted: %s", payload)
	}
	if !strings.Contains(payload, `"config_id":"cfg-1"`) || !strings.Contains(payload, `"token":"hi"`) {
		t.Errorf("payload missing expected fields: %s", payload)
	}

	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	data, err = json.Marshal(NewRunDoneEvent(QuotaSnapshot{Used: 2, Limit: 100, Remaining: 98, IsPaid: true, PeriodEndsAt: end}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"used":2`, `"limit":100`, `"remaining":98`, `"is_paid":true`, `"period_ends_at"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("run_done payload missing %s: %s", key, data)
		}
	}
}

func TestNewID_Uniqueness(t *testing.T) {
	a := NewID()
	b := NewID()
	if a == b {
		t.Error("Expected unique IDs")
	}
}
