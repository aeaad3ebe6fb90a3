// Package config loads and validates Pulse Core configuration.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// PULSE_* environment variables. Validate reports every problem at once.
//
// Secrets (MQTT password, InfluxDB token) should come from the environment
// rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Radio.Driver)
package config
