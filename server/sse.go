package server

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hupe1980/panelrun/core"
)

// writeSSE frames one run event as a Server-Sent-Events message: the variant
// becomes the SSE event name and the payload fields the JSON data line.
func writeSSE(w io.Writer, ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
