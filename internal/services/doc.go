// Package services defines shared utilities consumed by the pipeline stages
// and the external tool adapters.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and per-attempt
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify tool
//     failures into the kinds the fallback resolver understands (missing
//     binary, timeout, non-zero exit, malformed output, rate limit).
//
// Tool adapters live in subpackages (atmos, gentts, lumina, vidius,
// imagemagick) and share the subprocess runner in toolrun.
package services
