// Package precheck implements the pre-dispatch context-window check. It is
// pure and side-effect free: given a panel's prompt material and its model's
// context window it estimates the input token count with a conservative
// 4-bytes-per-token heuristic and decides whether the panel may dispatch at
// all. A failing check means the panel is skipped before any provider call.
package precheck

import (
	"strings"

	"github.com/hupe1980/panelrun/core"
)

// BytesPerToken is the conservative estimation ratio applied to prompt text
// and attachment payloads alike.
const BytesPerToken = 4

// DefaultContextWindow is assumed for models with no known window. Small on
// purpose: an unknown model should fail loudly on oversized input rather
// than slip past the check.
const DefaultContextWindow = 8192

// Result is the outcome of a context precheck.
type Result struct {
	Fits            bool
	EstimatedTokens int
	ContextWindow   int
}

// Check estimates the input token count for one panel and compares it to the
// model's context window. A zero window falls back to the known-model table.
func Check(cfg core.PanelConfig, message string, attachments []core.Attachment, window int) Result {
	if window <= 0 {
		window = Window(cfg.Model)
	}

	bytes := len(message) + len(cfg.SystemPrompt)
	for _, att := range attachments {
		bytes += len(att.Data)
	}
	estimated := bytes / BytesPerToken
	if bytes%BytesPerToken != 0 {
		estimated++
	}

	return Result{
		Fits:            estimated < window,
		EstimatedTokens: estimated,
		ContextWindow:   window,
	}
}

// knownWindows maps model id prefixes to context windows. Longest matching
// prefix wins.
var knownWindows = []struct {
	prefix string
	window int
}{
	{"gpt-4o", 128000},
	{"gpt-4.1", 1047576},
	{"gpt-4-turbo", 128000},
	{"gpt-4", 8192},
	{"gpt-3.5-turbo", 16385},
	{"o1", 200000},
	{"o3", 200000},
	{"claude-3", 200000},
	{"claude-sonnet", 200000},
	{"claude-opus", 200000},
	{"claude-haiku", 200000},
	{"gemini-1.5-pro", 2097152},
	{"gemini-1.5", 1048576},
	{"gemini-2", 1048576},
}

// Window returns the known context window for a model id, or
// DefaultContextWindow when the model is not recognized.
func Window(modelID string) int {
	best := 0
	bestLen := -1
	for _, kw := range knownWindows {
		if strings.HasPrefix(modelID, kw.prefix) && len(kw.prefix) > bestLen {
			best = kw.window
			bestLen = len(kw.prefix)
		}
	}
	if bestLen < 0 {
		return DefaultContextWindow
	}
	return best
}
