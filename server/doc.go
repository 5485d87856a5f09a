// Package server exposes the run orchestrator over HTTP. It is a thin
// boundary adapter: run creation is a multipart POST, the event feed is one
// long-lived Server-Sent-Events connection per run, and the SSE text framing
// lives in exactly one place so the engine stays transport agnostic.
//
// Authentication is a collaborator concern: an AccountResolver extracts the
// verified account identity from the request; the server never manages
// credential storage.
package server
