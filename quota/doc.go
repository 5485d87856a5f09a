// Package quota implements the accountant that gates and reports
// platform-credential usage.
//
// The accountant deliberately splits its two duties across the run
// lifecycle: before dispatch it performs only an optimistic, advisory read
// (platform-key panels are allowed to start even when the local count looks
// exhausted, since the authoritative accounting happens later anyway); at
// run completion it commits an atomic
// increment-by-N for the panels that actually consumed the platform
// credential and returns the fresh snapshot that rides on run_done.
// Bring-your-own-key panels never touch the counters.
//
// Counter persistence lives behind core.UsageStore: an in-memory store for
// tests and single-process deployments, and a sqlite-backed store (package
// quota/sqlite) when counters must survive restarts.
package quota
