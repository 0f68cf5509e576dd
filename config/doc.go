// Package config loads bridge configuration from YAML.
//
// LoadConfig reads a file, fills defaults and validates it.
// LoadConfigWithEnvOverrides additionally applies environment variables
// named JSBRIDGE_SECTION_FIELD, for example JSBRIDGE_ENGINE_WORKERS or
// JSBRIDGE_LOGGING_LEVEL, which win over the file. FromEnv is what the
// native library uses: the file named by JSBRIDGE_CONFIG if set,
// defaults otherwise, then overrides.
//
// Example file:
//
//	engine:
//	  packages_dir: node_modules
//	  main_fields: [module]
//	  workers: 8
//	  argument_policy: lenient
//	fetch:
//	  timeout: 30s
//	logging:
//	  level: info
//	  format: json
//	metrics:
//	  enabled: true
//	watch:
//	  enabled: false
//	  debounce: 200ms
package config
