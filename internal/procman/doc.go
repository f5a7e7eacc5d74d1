// Package procman starts and supervises a pipeline run on behalf of the CLI.
//
// Detach re-executes the current binary without the background flag in a new
// session, with output appended to the log file and the parent's run context
// passed through the environment, and returns the child PID at once. Run
// installs signal handling around a foreground run and maps its outcome to a
// process exit code.
package procman
