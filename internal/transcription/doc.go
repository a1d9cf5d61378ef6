// Package transcription implements the response-assembly core: per-window
// prompt construction, concurrent dispatch to the inference engine, decoding
// of timestamp-delimited token streams into time-aligned segments, and
// merging of all windows into one coherent transcript.
package transcription
