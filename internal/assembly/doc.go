// Package assembly turns the outputs of a finished run into a relocatable
// bundle: index.html driven by the narration clock, experience.json with the
// cue timeline, and the media files it references by relative path.
//
// Cue timing is keyed to the authoritative narration duration, never to
// render time. BuildTimeline either honours explicit cue boundaries from the
// audio stage or splits the duration into equal scroll segments.
package assembly
