// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
//
//	instance:
//	  id: tail-1
//	provider:
//	  base_url: https://host.example.com/api
//	connection:
//	  stale_after: 8m
//	logging:
//	  level: info
//	  format: json
//	metrics:
//	  enabled: true
//	  port: 9090
package config
