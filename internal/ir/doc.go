// Package ir provides the validated program representation for banish.
//
// A Program is produced by the compiler (lex, parse, validate, link) and
// consumed by the engine. It is never mutated after linking.
//
// This package contains type definitions and serialization helpers only.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - State order is significant: a state's index is its jump target
//   - Host fragments (conditions, statements, return values) are opaque Source text
//   - Trace events carry a logical seq, never wall-clock timestamps
//   - All JSON tags use snake_case
package ir
