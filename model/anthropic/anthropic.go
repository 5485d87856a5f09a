// Package anthropic adapts the Anthropic Messages streaming API (typed
// message-events protocol) to the generic model.Model interface. Content
// block text deltas become partial responses; the accumulated message's stop
// reason is normalized into the shared enum and API failures are classified
// into the core error taxonomy at this boundary.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/model"
)

// Options configures the Anthropic adapter (model id, max tokens, API key).
type Options struct {
	Model           anthropic.Model
	APIKey          string
	MaxOutputTokens int64
	ContextWindow   int
}

// Model wraps the Anthropic Messages API behind model.Model.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// New creates an adapter with its own SDK client.
func New(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:           anthropic.ModelClaude3_5Sonnet20241022,
		MaxOutputTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewFromClient creates an adapter from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:           anthropic.ModelClaude3_5Sonnet20241022,
		MaxOutputTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Factory adapts New to the registry factory signature.
func Factory(cfg model.Config) (model.Model, error) {
	return New(func(o *Options) {
		if cfg.Model != "" {
			o.Model = anthropic.Model(cfg.Model)
		}
		o.APIKey = cfg.APIKey
		if cfg.MaxOutputTokens > 0 {
			o.MaxOutputTokens = cfg.MaxOutputTokens
		}
	}), nil
}

// Stream implements model.Model using the message-events protocol.
func (m *Model) Stream(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:     m.opts.Model,
			MaxTokens: m.opts.MaxOutputTokens,
			Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(buildUserContent(req)...)},
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}

		stream := m.client.Messages.NewStreaming(ctx, params)
		message := anthropic.Message{}
		var textBuilder strings.Builder

		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				_ = stream.Close()
				if ctx.Err() != nil {
					return
				}
				errCh <- core.NewProviderError(core.ErrorKindProvider, "anthropic",
					fmt.Errorf("accumulate stream event: %w", err))
				return
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					textBuilder.WriteString(delta.Text)
					select {
					case <-ctx.Done():
						_ = stream.Close()
						return
					case out <- model.Response{Partial: true, Text: delta.Text}:
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				return
			}
			errCh <- classify(fmt.Errorf("anthropic streaming error: %w", err))
			return
		}

		select {
		case <-ctx.Done():
		case out <- model.Response{
			Partial:      false,
			Text:         textBuilder.String(),
			FinishReason: core.NormalizeFinishReason(string(message.StopReason)),
		}:
		}
	}()

	return out, errCh
}

// buildUserContent assembles the user turn: the prompt text plus any image
// attachments as base64 blocks. Non-image attachments are outside the
// Messages API surface and are skipped.
func buildUserContent(req model.Request) []anthropic.ContentBlockParamUnion {
	content := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Message)}
	for _, att := range req.Attachments {
		if !strings.HasPrefix(att.MimeType, "image/") {
			continue
		}
		content = append(content, anthropic.NewImageBlockBase64(att.MimeType, base64.StdEncoding.EncodeToString(att.Data)))
	}
	return content
}

// classify maps SDK and transport failures onto the shared error taxonomy.
func classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return core.NewProviderError(kindForStatus(apierr.StatusCode), "anthropic", err)
	}
	return core.NewProviderError(core.ErrorKindNetwork, "anthropic", err)
}

func kindForStatus(status int) core.ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.ErrorKindAuth
	case http.StatusTooManyRequests:
		return core.ErrorKindRateLimited
	default:
		return core.ErrorKindProvider
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		ContextWindow: m.opts.ContextWindow,
	}
}
