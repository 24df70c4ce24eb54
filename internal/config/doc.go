// Package config provides configuration management for switchboard.
//
// # Overview
//
// The config package uses Viper to load configuration from a YAML file and
// environment variables. The file lives at ~/.switchboard/config.yaml and is
// created with default values on first use.
//
// # Environment Variables
//
// Every value can be overridden with a SWITCHBOARD_ prefixed variable.
// Nested fields are separated by underscores.
//
// Examples:
//   - SWITCHBOARD_DISPATCH_TIMEOUT=10s
//   - SWITCHBOARD_HANDLERS_LLM_API_KEY=sk-ant-...
//   - SWITCHBOARD_PERSISTENCE_BACKEND=redis
//   - SWITCHBOARD_LOGGING_LEVEL=debug
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	d := dispatch.New(cfg.Dispatch.Options()...)
package config
