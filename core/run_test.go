package core

import (
	"strings"
	"testing"
)

func TestRunState_Terminal(t *testing.T) {
	for _, s := range []RunState{RunStateCreated, RunStateDispatching, RunStateStreaming} {
		if s.Terminal() {
			t.Errorf("state %s must not be terminal", s)
		}
	}
	for _, s := range []RunState{RunStateCompleted, RunStateCancelled, RunStateErrored} {
		if !s.Terminal() {
			t.Errorf("state %s must be terminal", s)
		}
	}
}

func TestNewRun_Initialization(t *testing.T) {
	configs := []PanelConfig{{ConfigID: "a", Provider: "openai", Model: "gpt-4o"}}
	run := NewRun("acct-1", "hello", configs, 2, nil)
	if run.ID == "" || run.State != RunStateCreated || run.CreatedAt.IsZero() {
		t.Fatalf("NewRun did not initialize fields correctly: %+v", run)
	}
	if run.AccountID != "acct-1" || run.MaxParallel != 2 || len(run.Configs) != 1 {
		t.Fatalf("NewRun dropped request fields: %+v", run)
	}
}

func TestValidateConfigs(t *testing.T) {
	valid := []PanelConfig{
		{ConfigID: "a", Provider: "openai", Model: "gpt-4o"},
		{ConfigID: "b", Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"},
	}
	if err := ValidateConfigs(valid); err != nil {
		t.Fatalf("valid configs rejected: %v", err)
	}

	cases := []struct {
		name    string
		configs []PanelConfig
		wantMsg string
	}{
		{"empty list", nil, "at least one"},
		{"empty config id", []PanelConfig{{Provider: "openai", Model: "gpt-4o"}}, "empty config_id"},
		{"duplicate config id", []PanelConfig{
			{ConfigID: "a", Provider: "openai", Model: "gpt-4o"},
			{ConfigID: "a", Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"},
		}, "duplicate"},
		{"missing provider", []PanelConfig{{ConfigID: "a", Model: "gpt-4o"}}, "empty provider"},
		{"missing model", []PanelConfig{{ConfigID: "a", Provider: "openai"}}, "empty model"},
	}
	for _, tc := range cases {
		err := ValidateConfigs(tc.configs)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.wantMsg) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.wantMsg)
		}
	}
}

func TestPanelConfig_UsesPlatformKey(t *testing.T) {
	if (PanelConfig{ProviderKey: "sk-user"}).UsesPlatformKey() {
		t.Error("BYOK panel must not use the platform key")
	}
	if !(PanelConfig{}).UsesPlatformKey() {
		t.Error("panel without key must use the platform key")
	}
}

func TestAttachment_Size(t *testing.T) {
	att := Attachment{Filename: "img.png", MimeType: "image/png", Data: make([]byte, 1024)}
	if att.Size() != 1024 {
		t.Errorf("expected size 1024, got %d", att.Size())
	}
}
