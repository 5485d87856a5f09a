// Package engine implements the run orchestrator at the heart of PanelRun.
//
// The Engine accepts one user message plus N heterogeneous panel configs,
// dispatches each panel to its provider adapter under a bounded concurrency
// limit, and multiplexes the resulting per-provider token streams into one
// ordered event feed per run.
//
// # Core responsibilities
//
// Scheduling:
//   - Bounded admission per run (maxParallel) via a counting semaphore, with
//     an optional process-wide ceiling on top
//   - Admission strictly in config order, no priority reordering, no retries
//   - Context-window precheck before admission; rejected panels are skipped
//     without ever holding a slot or touching the network
//
// Multiplexing:
//   - One ordered event channel per run; panel tasks are the only writers,
//     channel sends serialize them
//   - Per-panel FIFO token order; cross-panel interleaving unspecified
//   - Exactly one terminal event per panel and one run-level terminal event
//
// Failure isolation:
//   - Adapter failures are classified and reported per config id; siblings
//     and the run continue
//   - Run-level faults (validation, settlement failures, dispatch panics)
//     abort the run with run_error and no run_done
//
// Cancellation:
//   - Explicit Cancel or client disconnect cancels the run context; running
//     adapter calls stop promptly, no new panels are admitted, and events of
//     already-settled panels remain delivered
//
// Settlement:
//   - When every panel reached a terminal state the engine commits platform
//     credential usage to the quota accountant exactly once and emits
//     run_done carrying the fresh snapshot as the stream's last event
//
// Runs are runtime state only: a janitor evicts them after their stream has
// been consumed or a TTL elapses.
package engine
