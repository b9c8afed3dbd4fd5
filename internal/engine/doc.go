// Package engine executes linked banish programs.
//
// The engine is the heart of banish: it drives state entry, per-pass rule
// evaluation, fixed-point detection, transitions and early return.
//
// ARCHITECTURE:
//
// Bind, then run:
// New binds every host fragment (conditions, statements, return values)
// through the Host interface before anything executes. A fragment that
// fails to compile is a *BindError; no side effect has happened yet.
//
// Explicit driver loop:
// Run is a state machine over Running(state, firstPass), Transitioning,
// Returned and Exhausted. Rule dispatch returns an outcome (continue,
// jump or return) to the driver. Nothing unwinds the Go stack.
//
// Per-state fixed point:
//  1. On entry firstPass is true
//  2. Each pass resets interaction and walks rules in declaration order
//  3. A conditioned rule whose condition holds sets interaction and runs
//     its body; otherwise its else-clause runs (without setting interaction)
//  4. A conditionless rule runs only on the first pass and sets interaction
//  5. A pass without interaction is the fixed point: fall through
//
// CRITICAL PATTERNS:
//
// Per-run execution context:
// firstPass, interaction, the pass counter and the logical clock live in
// an execution value created by each Run call. Independent engines may run
// concurrently; a single Engine is safe for concurrent Run calls only when
// its Host is.
//
// Logical clock:
// All trace events are stamped with a monotonic seq from Clock.Next().
// NEVER use wall-clock timestamps for ordering.
package engine
