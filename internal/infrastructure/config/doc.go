// Package config handles loading and validating medwatch configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials should be set via MEDWATCH_MQTT_USERNAME and
//     MEDWATCH_MQTT_PASSWORD rather than committed to the config file
//   - The config file should have restricted permissions (0600)
//   - mqtt.broker.insecure_skip_verify must stay false unless the broker
//     endpoint cannot present a matching certificate
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Namespace)
package config
