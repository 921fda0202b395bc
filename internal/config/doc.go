// Package config loads, validates, and defaults the vidpress TOML
// configuration.
package config
