// Package config provides environment-based configuration loading and
// the operator-editable YAML lookup tables for role resolution and
// organization assignment, with optional hot reload.
package config
