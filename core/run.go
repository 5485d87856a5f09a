package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunState models the lifecycle of a run. Transitions are strictly forward:
// created → dispatching → streaming → one of the terminal states. Terminal
// states are final; a run is never re-entered.
type RunState string

const (
	// RunStateCreated is the initial state after validation succeeded.
	RunStateCreated RunState = "created"
	// RunStateDispatching indicates the scheduler has started admitting panels.
	RunStateDispatching RunState = "dispatching"
	// RunStateStreaming indicates at least one panel task has been admitted.
	RunStateStreaming RunState = "streaming"
	// RunStateCompleted indicates every panel reached a terminal state.
	RunStateCompleted RunState = "completed"
	// RunStateCancelled indicates the client disconnected or explicitly aborted.
	RunStateCancelled RunState = "cancelled"
	// RunStateErrored indicates a run-level failure (not a panel failure).
	RunStateErrored RunState = "errored"
)

// Terminal reports whether the state is final.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateCancelled, RunStateErrored:
		return true
	}
	return false
}

// PanelConfig holds the dispatch parameters for one bot within a run.
//
// ConfigID is caller supplied and correlates every emitted event back to the
// originating bot; it must be unique within a run. A non-empty ProviderKey
// marks the panel as bring-your-own-key: the caller's credential is used and
// the panel never counts against platform quota. The BYOK decision is made
// once per panel and never changes mid-stream.
type PanelConfig struct {
	ConfigID        string `json:"config_id"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	SystemPrompt    string `json:"system_prompt,omitempty"`
	MaxOutputTokens int64  `json:"max_output_tokens,omitempty"`
	ProviderKey     string `json:"provider_key,omitempty"`
}

// UsesPlatformKey reports whether the panel relies on the platform credential
// for its provider (i.e. the caller supplied no key of their own).
func (c PanelConfig) UsesPlatformKey() bool { return c.ProviderKey == "" }

// Attachment is an in-memory binary blob attached to a run. Attachments are
// never persisted; they are owned by the run for its lifetime, shared by
// reference across all panel tasks (read-only) and discarded on eviction.
type Attachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// Size returns the attachment payload size in bytes.
func (a Attachment) Size() int64 { return int64(len(a.Data)) }

// Run is one user message dispatched to one or more bot configurations.
// It is runtime state, not a store of record: the engine evicts it once its
// event stream has been fully consumed or its TTL elapses.
type Run struct {
	ID          string
	AccountID   string
	Message     string
	Attachments []Attachment
	Configs     []PanelConfig
	MaxParallel int
	State       RunState
	CreatedAt   time.Time
}

// NewRun constructs a run in the created state with a fresh opaque id.
func NewRun(accountID, message string, configs []PanelConfig, maxParallel int, attachments []Attachment) *Run {
	return &Run{
		ID:          NewID(),
		AccountID:   accountID,
		Message:     message,
		Attachments: attachments,
		Configs:     configs,
		MaxParallel: maxParallel,
		State:       RunStateCreated,
		CreatedAt:   time.Now().UTC(),
	}
}

// ValidateConfigs checks the structural invariants of a config list: at least
// one entry, and config ids unique within the run (the multiplexer uses them
// as routing keys).
func ValidateConfigs(configs []PanelConfig) error {
	if len(configs) == 0 {
		return fmt.Errorf("at least one panel config is required")
	}
	seen := make(map[string]struct{}, len(configs))
	for i, cfg := range configs {
		if cfg.ConfigID == "" {
			return fmt.Errorf("config at index %d has empty config_id", i)
		}
		if _, dup := seen[cfg.ConfigID]; dup {
			return fmt.Errorf("duplicate config_id %q", cfg.ConfigID)
		}
		seen[cfg.ConfigID] = struct{}{}
		if cfg.Provider == "" {
			return fmt.Errorf("config %q has empty provider", cfg.ConfigID)
		}
		if cfg.Model == "" {
			return fmt.Errorf("config %q has empty model", cfg.ConfigID)
		}
	}
	return nil
}

// NewID generates a new opaque unique identifier for runs.
func NewID() string { return uuid.NewString() }
