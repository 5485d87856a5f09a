// Package openai adapts the OpenAI Chat Completions streaming API (SSE
// chunk protocol) to the generic model.Model interface. Delta chunks become
// partial responses; the terminal chunk's finish reason is normalized into
// the shared enum and API failures are classified into the core error
// taxonomy at this boundary.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/model"
)

// Options configure the OpenAI adapter. Fields mirror the subset of Chat
// Completion parameters the orchestrator needs; extend via functional
// options without breaking callers.
type Options struct {
	Model           string
	APIKey          string
	MaxOutputTokens int64
	ContextWindow   int
}

// Model wraps the OpenAI Chat Completions API behind model.Model.
type Model struct {
	client *openai.Client
	opts   Options
}

// New creates an adapter with its own SDK client.
func New(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:           openai.ChatModelGPT4oMini,
		MaxOutputTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewFromClient creates an adapter from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:           openai.ChatModelGPT4oMini,
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
			o.Model = cfg.Model
		}
		o.APIKey = cfg.APIKey
		if cfg.MaxOutputTokens > 0 {
			o.MaxOutputTokens = cfg.MaxOutputTokens
		}
	}), nil
}

// Stream implements model.Model using the SSE chunk protocol.
func (m *Model) Stream(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := openai.ChatCompletionNewParams{
			Messages:            buildMessages(req),
			Model:               m.opts.Model,
			MaxCompletionTokens: openai.Int(m.opts.MaxOutputTokens),
		}

		stream := m.client.Chat.Completions.NewStreaming(ctx, params)
		var textBuilder strings.Builder

		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					textBuilder.WriteString(ch.Delta.Content)
					select {
					case <-ctx.Done():
						_ = stream.Close()
						return
					case out <- model.Response{Partial: true, Text: ch.Delta.Content}:
					}
				}
				if ch.FinishReason != "" {
					_ = stream.Close()
					select {
					case <-ctx.Done():
					case out <- model.Response{
						Partial:      false,
						Text:         textBuilder.String(),
						FinishReason: core.NormalizeFinishReason(ch.FinishReason),
					}:
					}
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				return
			}
			errCh <- classify(fmt.Errorf("openai streaming error: %w", err))
			return
		}
		errCh <- core.NewProviderError(core.ErrorKindProvider, "openai",
			fmt.Errorf("stream ended without finish reason"))
	}()

	return out, errCh
}

// buildMessages converts the normalized request into chat messages. Image
// attachments ride along as data-URL content parts; other attachment types
// are outside the chat-completions surface and are skipped.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	var parts []openai.ChatCompletionContentPartUnionParam
	parts = append(parts, openai.TextContentPart(req.Message))
	for _, att := range req.Attachments {
		if !strings.HasPrefix(att.MimeType, "image/") {
			continue
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", att.MimeType, base64.StdEncoding.EncodeToString(att.Data))
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
	}
	if len(parts) == 1 {
		messages = append(messages, openai.UserMessage(req.Message))
	} else {
		messages = append(messages, openai.UserMessage(parts))
	}
	return messages
}

// classify maps SDK and transport failures onto the shared error taxonomy.
func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return core.NewProviderError(kindForStatus(apierr.StatusCode), "openai", err)
	}
	return core.NewProviderError(core.ErrorKindNetwork, "openai", err)
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

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		ContextWindow: m.opts.ContextWindow,
	}
}
