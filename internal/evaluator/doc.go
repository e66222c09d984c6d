// Package evaluator classifies a temperature/humidity pair against a
// storage profile.
//
// Everything here is a pure function of its inputs: no clocks, no I/O,
// no package state beyond the read-only profile table. Callers may
// evaluate from any goroutine.
package evaluator
