// Package categorizer buckets free-text prompts into a small, bounded set
// of labels so they can be used as metric labels without blowing up
// cardinality.
//
// Labels come from three sources, checked in order:
//
//  1. "empty" for blank prompts
//  2. ordered keyword rules ("summarize", "translate", "explain", ...)
//  3. a first-word fingerprint table capped at a configurable ceiling,
//     with a shared overflow label once the ceiling is reached
package categorizer
