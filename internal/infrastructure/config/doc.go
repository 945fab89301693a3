// Package config loads and validates the SystemAir bridge configuration.
//
// Values are resolved in three layers: built-in defaults, the YAML file,
// then SYSTEMAIR_* environment variables. Validate collects every problem
// and reports them together so a bad file can be fixed in one pass.
//
// Credentials (MQTT password, InfluxDB token) should come from the
// environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Unit.Host)
package config
