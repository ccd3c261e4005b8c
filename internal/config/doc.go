// Package config loads and validates the watcher configuration.
//
// Configuration is YAML with ${VAR} environment expansion. Load reads the
// raw file, LoadWithDefaults fills unset fields, LoadAndValidate additionally
// rejects invalid values. Mains should use LoadAndValidate.
package config
