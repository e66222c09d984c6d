// Package journal persists operator-relevant transitions of the monitor
// to SQLite: link health changes, link errors, reconnect exhaustion,
// profile changes and tier changes. Raw readings are never stored.
//
// A Recorder consumes a monitor subscription on its own goroutine and
// writes through a Repository. The API lists entries most recent first.
package journal
