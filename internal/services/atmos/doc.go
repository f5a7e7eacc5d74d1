// Package atmos wraps the atmos CLI, which prints weather alerts, current
// conditions, astronomy, and forecasts for a free-text location.
//
// Gather calls atmos once per section in a fixed order and concatenates the
// output into context.txt, the narration source for every later stage.
package atmos
