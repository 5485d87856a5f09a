package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/engine"
	"github.com/hupe1980/panelrun/model"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()

	registry := model.NewRegistry()
	registry.Register("mock", func(cfg model.Config) (model.Model, error) {
		m := model.NewMockModel(cfg.Model, "mock")
		m.SetChunks("scripted ", "reply")
		// Slow-prefixed models keep their stream open long enough for tests
		// that need an in-flight run.
		if strings.HasPrefix(cfg.Model, "slow") {
			m.SetChunks("tick ", "tick ", "tick ", "tick ", "tick ", "tick ", "tick ", "tick ")
			m.SetChunkDelay(100 * time.Millisecond)
		}
		return m, nil
	})

	e := engine.New(func(o *engine.Options) {
		o.Registry = registry
		o.Credentials = engine.StaticCredentials{"mock": "platform-key"}
	})
	t.Cleanup(e.Close)

	srv := New(e)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, e
}

// buildRunRequest assembles a multipart run creation request.
func buildRunRequest(t *testing.T, url string, configs []core.PanelConfig, attachments map[string][]byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("message", "hello panel"))

	if configs != nil {
		data, err := json.Marshal(configs)
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("configs", string(data)))
	}
	for name, data := range attachments {
		fw, err := mw.CreateFormFile("attachment", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/v1/runs", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Account-ID", "acct-test")
	return req
}

func createRun(t *testing.T, ts *httptest.Server, configs []core.PanelConfig) string {
	t.Helper()
	resp, err := http.DefaultClient.Do(buildRunRequest(t, ts.URL, configs, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.RunID)
	return body.RunID
}

// sseEvent is one parsed frame of an SSE stream.
type sseEvent struct {
	name string
	data map[string]any
}

func readSSE(t *testing.T, r io.Reader) []sseEvent {
	t.Helper()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)

	var events []sseEvent
	for _, block := range strings.Split(string(raw), "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.data))
			}
		}
		events = append(events, ev)
	}
	return events
}

func TestServer_CreateRunAndStream(t *testing.T) {
	ts, _ := newTestServer(t)
	configs := []core.PanelConfig{
		{ConfigID: "a", Provider: "mock", Model: "bot-a"},
		{ConfigID: "b", Provider: "mock", Model: "bot-b"},
	}
	runID := createRun(t, ts, configs)

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/v1/runs/%s/events", ts.URL, runID), nil)
	require.NoError(t, err)
	req.Header.Set("X-Account-ID", "acct-test")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, resp.Body)
	require.NotEmpty(t, events)

	finals := 0
	for _, ev := range events {
		if ev.name == "panel_final" {
			finals++
			assert.Equal(t, "scripted reply", ev.data["final"])
		}
	}
	assert.Equal(t, 2, finals)

	last := events[len(events)-1]
	assert.Equal(t, "run_done", last.name)
	quota, ok := last.data["quota"].(map[string]any)
	require.True(t, ok, "run_done must carry the quota snapshot")
	assert.Equal(t, float64(2), quota["used"])
}

func TestServer_CreateRunWithAttachment(t *testing.T) {
	ts, _ := newTestServer(t)
	configs := []core.PanelConfig{{ConfigID: "a", Provider: "mock", Model: "bot-a"}}

	req := buildRunRequest(t, ts.URL, configs, map[string][]byte{"notes.txt": []byte("context material")})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestServer_CreateRunRejections(t *testing.T) {
	ts, _ := newTestServer(t)

	// Missing account header.
	req := buildRunRequest(t, ts.URL, []core.PanelConfig{{ConfigID: "a", Provider: "mock", Model: "m"}}, nil)
	req.Header.Del("X-Account-ID")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Missing configs field.
	resp, err = http.DefaultClient.Do(buildRunRequest(t, ts.URL, nil, nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Duplicate config ids are rejected by validation.
	resp, err = http.DefaultClient.Do(buildRunRequest(t, ts.URL, []core.PanelConfig{
		{ConfigID: "a", Provider: "mock", Model: "m"},
		{ConfigID: "a", Provider: "mock", Model: "m"},
	}, nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Non-multipart body.
	plain, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/runs", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	plain.Header.Set("Content-Type", "application/json")
	plain.Header.Set("X-Account-ID", "acct-test")
	resp, err = http.DefaultClient.Do(plain)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_StreamErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/runs/does-not-exist/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-Account-ID", "acct-test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A stream can only be claimed once.
	runID := createRun(t, ts, []core.PanelConfig{{ConfigID: "a", Provider: "mock", Model: "slow-bot"}})
	first, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/v1/runs/%s/events", ts.URL, runID), nil)
	require.NoError(t, err)
	first.Header.Set("X-Account-ID", "acct-test")
	resp1, err := http.DefaultClient.Do(first)
	require.NoError(t, err)
	defer resp1.Body.Close()
	require.Equal(t, http.StatusOK, resp1.StatusCode)

	second, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/v1/runs/%s/events", ts.URL, runID), nil)
	require.NoError(t, err)
	second.Header.Set("X-Account-ID", "acct-test")
	resp2, err := http.DefaultClient.Do(second)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)

	io.Copy(io.Discard, resp1.Body)
}

func TestServer_Cancel(t *testing.T) {
	ts, _ := newTestServer(t)
	runID := createRun(t, ts, []core.PanelConfig{{ConfigID: "a", Provider: "mock", Model: "m"}})

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/v1/runs/%s/cancel", ts.URL, runID), nil)
	require.NoError(t, err)
	req.Header.Set("X-Account-ID", "acct-test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, ts.URL+"/v1/runs/does-not-exist/cancel", nil)
	require.NoError(t, err)
	req.Header.Set("X-Account-ID", "acct-test")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHeaderAccountResolver(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := HeaderAccountResolver{}.Resolve(r)
	assert.Error(t, err)

	r.Header.Set("X-Account-ID", "acct-1")
	account, err := HeaderAccountResolver{}.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", account)
}
