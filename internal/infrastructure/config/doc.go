// Package config handles loading and validating the pool bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYLOGIC_* environment variables
//   - Validation of every section, reported together
//
// Security Considerations:
//   - The gateway and MQTT passwords should be set via environment variables
//   - Use Redacted before logging or dumping a Config
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.Address())
package config
