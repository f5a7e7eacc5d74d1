// Package preflight provides readiness checks for the filesystem paths and
// services Mirage depends on.
//
// The weather command runs CheckDirectories before any stage: an unusable output,
// state, or log directory is a configuration error. The doctor command shows
// the same checks next to tool availability from CheckSystemDeps.
package preflight
