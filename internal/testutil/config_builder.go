package testutil

import "github.com/hupe1980/panelrun/core"

// ConfigBuilder provides a fluent helper for constructing panel configs in
// tests. Example:
//
//	cfg := NewConfigBuilder("panel-a").Provider("openai").Model("gpt-4o").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type ConfigBuilder struct {
	cfg core.PanelConfig
}

// NewConfigBuilder creates a builder with default provider "mock" and model
// "mock-model".
func NewConfigBuilder(configID string) *ConfigBuilder {
	return &ConfigBuilder{cfg: core.PanelConfig{
		ConfigID: configID,
		Provider: "mock",
		Model:    "mock-model",
	}}
}

// Provider sets the provider name (chainable).
func (b *ConfigBuilder) Provider(p string) *ConfigBuilder { b.cfg.Provider = p; return b }

// Model sets the model identifier (chainable).
func (b *ConfigBuilder) Model(m string) *ConfigBuilder { b.cfg.Model = m; return b }

// System sets the per-panel system prompt (chainable).
func (b *ConfigBuilder) System(s string) *ConfigBuilder { b.cfg.SystemPrompt = s; return b }

// MaxOutputTokens sets the per-panel output cap (chainable).
func (b *ConfigBuilder) MaxOutputTokens(n int64) *ConfigBuilder {
	b.cfg.MaxOutputTokens = n
	return b
}

// BYOK marks the panel as bring-your-own-key with the given credential
// (chainable).
func (b *ConfigBuilder) BYOK(key string) *ConfigBuilder { b.cfg.ProviderKey = key; return b }

// Build returns the constructed config value.
func (b *ConfigBuilder) Build() core.PanelConfig { return b.cfg }

// Configs is a convenience for building a slice of default configs with the
// given ids.
func Configs(ids ...string) []core.PanelConfig {
	configs := make([]core.PanelConfig, 0, len(ids))
	for _, id := range ids {
		configs = append(configs, NewConfigBuilder(id).Build())
	}
	return configs
}
