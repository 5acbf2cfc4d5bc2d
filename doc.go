// Package mprompt implements multi-prompt delimited control: a program enters
// a scoped computation on a fresh, independently growable stack (a "prompt"),
// may yield from any descendant frame up to a named ancestor prompt
// (capturing the intervening computation as a first-class resumption), and
// later resume that resumption zero, one, or many times.
//
// It is a substrate for effect handlers, generators, and other non-local
// control operators built on top of an ordinary call stack, adapted from the
// register-level stack-switching primitive of libmprompt to Go's memory-safe
// goroutine model: a "stack" is a pooled goroutine, a "context switch" is a
// guarded channel handoff, and a multi-shot resumption is a replay log rather
// than a byte-exact copy of machine stack memory. See SPEC_FULL.md and
// DESIGN.md for the full mapping.
package mprompt
