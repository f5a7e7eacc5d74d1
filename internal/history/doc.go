// Package history keeps a SQLite ledger of pipeline runs: when each run
// started and finished, its terminal state, and how every stage ended. The
// `runs` command reads it; the pipeline writes one record per run.
package history
