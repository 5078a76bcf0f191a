// Package config handles YAML configuration loading and validation.
// Each configuration section has its own struct and validation rules,
// with defaults applied before the file contents are merged in.
package config
