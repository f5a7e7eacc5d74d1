// Package pipeline runs one weather experience from location to bundle.
//
// The Orchestrator advances a fixed state machine:
//
//	init -> data_gathering -> audio_synthesis -> visual_generation
//	     -> [motion_synthesis] -> assembly -> done
//
// with failed reachable from every non-terminal state. Audio and visual
// generation run concurrently once weather data is in hand; the machine
// enters visual_generation after narration settles and leaves it after the
// backdrop settles. Each adapter call goes through stage.Invoke, and every
// failed attempt is handed to the Resolver, which retries transient
// failures with incremental backoff and otherwise substitutes a fallback or
// aborts the run.
package pipeline
