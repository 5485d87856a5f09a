// Package gemini adapts the Google Gemini content-streaming API to the
// generic model.Model interface. Candidate content parts become partial
// responses as the iterator advances; the last candidate's finish reason is
// normalized into the shared enum and API failures are classified into the
// core error taxonomy at this boundary.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/model"
)

// Options configures the Gemini adapter (model id, max tokens, API key).
type Options struct {
	Model           string
	APIKey          string
	MaxOutputTokens int64
	ContextWindow   int
}

// Model wraps the Gemini GenerateContentStream API behind model.Model.
// The SDK client is created per stream because it is bound to a context and
// must be closed when the call ends.
type Model struct {
	opts Options
}

// New creates a Gemini adapter.
func New(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:           "gemini-1.5-flash",
		MaxOutputTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{opts: opts}
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

// Stream implements model.Model using the content-streaming protocol.
func (m *Model) Stream(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		client, err := genai.NewClient(ctx, option.WithAPIKey(m.opts.APIKey))
		if err != nil {
			errCh <- classify(fmt.Errorf("create gemini client: %w", err))
			return
		}
		defer client.Close()

		gm := client.GenerativeModel(m.opts.Model)
		gm.SetMaxOutputTokens(int32(m.opts.MaxOutputTokens))
		if req.System != "" {
			gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
		}

		iter := gm.GenerateContentStream(ctx, buildParts(req)...)
		var textBuilder strings.Builder
		finish := core.FinishStop

		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errCh <- classify(fmt.Errorf("gemini streaming error: %w", err))
				return
			}

			for _, cand := range resp.Candidates {
				if cand.Content != nil {
					for _, part := range cand.Content.Parts {
						text, ok := part.(genai.Text)
						if !ok || text == "" {
							continue
						}
						textBuilder.WriteString(string(text))
						select {
						case <-ctx.Done():
							return
						case out <- model.Response{Partial: true, Text: string(text)}:
						}
					}
				}
				switch cand.FinishReason {
				case genai.FinishReasonMaxTokens:
					finish = core.FinishLength
				case genai.FinishReasonStop, genai.FinishReasonUnspecified:
					// keep stop
				default:
					finish = core.FinishError
				}
			}
		}

		select {
		case <-ctx.Done():
		case out <- model.Response{
			Partial:      false,
			Text:         textBuilder.String(),
			FinishReason: finish,
		}:
		}
	}()

	return out, errCh
}

// buildParts assembles the prompt text plus binary attachments as inline
// blobs (the content API accepts arbitrary mime types).
func buildParts(req model.Request) []genai.Part {
	parts := []genai.Part{genai.Text(req.Message)}
	for _, att := range req.Attachments {
		if len(att.Data) == 0 {
			continue
		}
		parts = append(parts, genai.Blob{MIMEType: att.MimeType, Data: att.Data})
	}
	return parts
}

// classify maps SDK and transport failures onto the shared error taxonomy.
func classify(err error) error {
	var apierr *googleapi.Error
	if errors.As(err, &apierr) {
		return core.NewProviderError(kindForStatus(apierr.Code), "gemini", err)
	}
	return core.NewProviderError(core.ErrorKindNetwork, "gemini", err)
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

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		ContextWindow: m.opts.ContextWindow,
	}
}
