package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/engine"
)

// createRunForm is the decoded multipart payload of POST /v1/runs.
type createRunForm struct {
	Message     string
	Configs     []core.PanelConfig
	MaxParallel int
	Attachments []core.Attachment
}

// handleCreateRun accepts a multipart request with the text fields "message",
// "configs" (JSON array) and optional "max_parallel", plus any number of file
// parts named "attachment". Attachments are read straight into memory; they
// never touch disk.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.Resolve(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxRequestBytes)

	form, err := s.parseCreateRunForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := s.engine.CreateRun(r.Context(), engine.CreateRunRequest{
		AccountID:   account,
		Message:     form.Message,
		Configs:     form.Configs,
		MaxParallel: form.MaxParallel,
		Attachments: form.Attachments,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"run_id": runID})
}

// parseCreateRunForm streams the multipart body part by part. The streaming
// reader is deliberate: ParseMultipartForm spools large parts to temp files,
// and attachments must stay in memory for their whole lifetime.
func (s *Server) parseCreateRunForm(r *http.Request) (*createRunForm, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, errors.New("expected a multipart/form-data request")
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("read multipart body: %w", err)
	}

	form := &createRunForm{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart body: %w", err)
		}

		switch part.FormName() {
		case "message":
			data, err := io.ReadAll(part)
			if err != nil {
				return nil, fmt.Errorf("read message field: %w", err)
			}
			form.Message = string(data)

		case "configs":
			if err := json.NewDecoder(part).Decode(&form.Configs); err != nil {
				return nil, fmt.Errorf("decode configs field: %w", err)
			}

		case "max_parallel":
			data, err := io.ReadAll(part)
			if err != nil {
				return nil, fmt.Errorf("read max_parallel field: %w", err)
			}
			n, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("max_parallel must be a non-negative integer")
			}
			form.MaxParallel = n

		case "attachment":
			att, err := readAttachment(part, part.FileName(), part.Header.Get("Content-Type"))
			if err != nil {
				return nil, err
			}
			form.Attachments = append(form.Attachments, att)
		}

		_ = part.Close()
	}

	if strings.TrimSpace(form.Message) == "" {
		return nil, errors.New("message is required")
	}
	if len(form.Configs) == 0 {
		return nil, errors.New("configs is required and must contain at least one entry")
	}

	return form, nil
}

func readAttachment(r io.Reader, filename, mimeType string) (core.Attachment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Attachment{}, fmt.Errorf("read attachment %q: %w", filename, err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return core.Attachment{Filename: filename, MimeType: mimeType, Data: data}, nil
}

// handleEvents attaches to a run's event stream and relays it as SSE until
// the run settles or the client disconnects. A disconnect cancels the run;
// settled panel results already in the buffer are still flushed first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, err := s.accounts.Resolve(r); err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	runID := chi.URLParam(r, "runID")
	events, err := s.engine.Events(runID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrRunNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, core.ErrStreamConsumed):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported by connection")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	defer s.engine.Release(runID)

	for {
		select {
		case <-r.Context().Done():
			// Client gone: cancel the run, then drain whatever the engine
			// still delivers so settled results are not silently dropped.
			_ = s.engine.Cancel(runID)
			for range events {
			}
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				_ = s.engine.Cancel(runID)
				for range events {
				}
				return
			}
			flusher.Flush()
		}
	}
}

// handleCancel requests cooperative termination of an in-flight run.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if _, err := s.accounts.Resolve(r); err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	runID := chi.URLParam(r, "runID")
	if err := s.engine.Cancel(runID); err != nil {
		if errors.Is(err, core.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
