// Package config loads the YAML configuration shared by the llmflow CLI and
// server: model provider settings, task store backend, weather endpoints,
// inbound queue and logging. Relative paths are resolved against the
// directory holding the configuration file.
package config
