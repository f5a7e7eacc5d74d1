// Package experience holds the data passed between pipeline stages and the
// assembler: the per-run context, the weather payload, the narration audio,
// and the visual artifacts.
//
// A RunContext is built once per run from an immutable config value and is
// JSON-encodable so a detached child process receives an identical copy
// through the MIRAGE_RUN_CONTEXT environment variable.
package experience
