// Package stage defines pipeline stage identifiers, their dependency graph,
// the immutable per-stage Result record, and Invoke, the wrapper every tool
// adapter call runs through.
package stage
