// Package config provides configuration management for the Ollama proxy.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From an optional YAML file, a .env file and the environment:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variables
//
// The proxy honours the variables it has always been deployed with:
//
//   - OLLAMA_HOST or OLLAMA_BACKEND_PORT select the upstream daemon
//   - PROXY_PORT sets the listen port
//   - ANALYTICS_BACKEND, ANALYTICS_DIR and ANALYTICS_RETENTION_DAYS
//     configure persistence
//   - CATEGORY_CEILING bounds fingerprint categories
//
// Environment variables always take precedence over file-based configuration.
//
// # Hot Reload
//
// Watcher observes the configuration file with fsnotify and swaps the
// global configuration when the file changes. Only settings that are safe
// to change at runtime (log level) are re-applied by the caller; backend
// kind and ports stay fixed for the process lifetime.
package config
