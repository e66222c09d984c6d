// Package monitor runs the foreground loop that ties the telemetry link,
// the liveness supervisor, the reading history and the status evaluator
// together.
//
// All core state is owned by the goroutine running Monitor.Run. Other
// goroutines reach it only through the request methods (SelectProfile,
// Restart, SendCommand), which are queued into the loop, and observe it
// only through the Event channels returned by Subscribe.
//
// Presentation consumers (the terminal dashboard, the HTTP/WebSocket
// feed, the journal) are renderers of these events. A slow consumer
// loses events; it never stalls the loop.
package monitor
