// Package liveness turns link events and periodic checks into a health
// state for the sensor link and decides when to reconnect.
//
// The Supervisor is a plain state machine. It owns no goroutines and no
// timers: every method returns an Action describing what the caller
// should do (publish a transition, start or stop the reconnect timer,
// call Connect). This keeps retry policy testable without a clock.
//
// Retries are fixed-interval and bounded. Once the attempt ceiling is
// passed the Supervisor stays in ReconnectFailed until Restart.
package liveness
