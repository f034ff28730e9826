package config

import (
	"os"
	"strings"
)

// Store flat key to value lookup of secrets and endpoint overrides
// Snapshot of the process environment taken once at startup; read-only afterwards
type Store struct {
	values map[string]string
}

// NewStore builds a store from explicit values, mainly for tests
func NewStore(values map[string]string) *Store {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = strings.TrimSpace(v)
	}
	return &Store{values: copied}
}

// NewEnvStore snapshots the process environment
// Call after Load so that .env values are included
func NewEnvStore() *Store {
	values := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			values[kv[:idx]] = strings.TrimSpace(kv[idx+1:])
		}
	}
	return &Store{values: values}
}

// Get returns the trimmed value for key, "" when unset
func (s *Store) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.values[key]
}

// Has reports whether key holds a non-blank value
func (s *Store) Has(key string) bool {
	return s.Get(key) != ""
}

// FirstOf returns the first non-blank value among keys and the key that held it
func (s *Store) FirstOf(keys ...string) (string, string) {
	for _, key := range keys {
		if value := s.Get(key); value != "" {
			return value, key
		}
	}
	return "", ""
}
