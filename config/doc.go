// Package config loads service configuration from defaults, a YAML
// file, and FLOWMIGRATE_* environment variables, in that precedence
// order.
package config
