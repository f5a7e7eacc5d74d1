// Package main hosts the Mirage CLI entrypoint and command graph.
//
// `mirage weather` builds one narrated weather experience, in the foreground
// or detached into the background. The remaining commands inspect the run
// history, check tool availability, exercise notifications, and scaffold
// configuration. Behaviour lives in the internal packages; commands here only
// resolve configuration, wire loggers and stores, and render output.
package main
