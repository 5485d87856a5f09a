// Package core defines the shared vocabulary of PanelRun: runs, panel
// configurations, panel lifecycle states, normalized finish reasons, the
// outbound event variants and the provider error taxonomy.
//
// Everything here is transport independent. The engine produces core.Event
// values on an ordered channel; boundary adapters (e.g. the SSE server)
// serialize them for a concrete wire format. Provider SDK specifics never
// leak into this package: adapters normalize their protocols into the
// types declared here.
package core
