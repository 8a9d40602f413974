// Package speechlen estimates how long a piece of text takes to speak and
// trims text that would run past a maximum spoken duration.
//
// Duration is a heuristic: the number of whitespace-separated words divided
// by a fixed words-per-second rate. No audio is analyzed.
//
// Trimming keeps a centered window of words so that both the lead-in and the
// wrap-up of a long reply survive:
//
//	est, _ := speechlen.New(speechlen.DefaultConfig())
//	secs := est.Estimate("one two three") // 1.5
//	short := est.Trim(longReply)           // at most 120 words
//
// All functions are pure and safe for concurrent use.
package speechlen
