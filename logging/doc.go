// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug
// any structured logger. It also offers a richer PanelRunLogger with
// contextual helpers (component, run, panel) and domain specific logging
// helpers for panel adapter calls and run execution.
package logging
