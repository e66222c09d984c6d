// Package mqtt provides MQTT client connectivity for medwatch.
//
// This package manages:
//   - Non-blocking, idempotent connection attempts over TLS
//   - Categorisation of broker refusals (CONNACK codes 1-5)
//   - Topic subscriptions restored on every connect
//   - Fire-and-forget and acknowledged publishing
//   - Topic naming for the monitored device
//
// # Architecture
//
// A remote climate controller publishes decimal readings on
// <namespace>/temperatura and <namespace>/umidade and listens for
// commands on <namespace>/comando:
//
//	Sensor device → MQTT Broker (TLS) → medwatch
//
// Paho's automatic reconnect is disabled. The liveness supervisor decides
// when to call Connect again, so retry policy lives in one place.
//
// # Security Considerations
//
//   - TLS is the default (cfg.Broker.TLS=true)
//   - Certificate verification can be disabled per deployment with
//     insecure_skip_verify; leave it off wherever possible
//   - Credentials are passed through to the broker, nothing more
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetOnConnect(func() { log.Println("connected") })
//	client.SetOnConnectFailed(func(err error) {
//	    if errors.Is(err, mqtt.ErrBadCredentials) { ... }
//	})
//	_ = client.AddSubscription(topics.Temperature(), 0, handler)
//	client.Connect()
//	defer client.Close()
package mqtt
