// Package telemetry owns the broker connection to the sensor device and
// turns transport callbacks into an ordered stream of events.
//
// Paho invokes callbacks on its own goroutines. The Link never touches
// caller state from those goroutines: it only enqueues Events on a
// buffered channel that the foreground loop drains.
//
//	link, _ := telemetry.NewLink(client, telemetry.Config{Namespace: "climatizador"})
//	link.Connect()
//	for ev := range link.Events() {
//	    switch ev.Kind { ... }
//	}
//
// # Thread Safety
//
// All Link methods are safe for concurrent use.
package telemetry
