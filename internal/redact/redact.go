// Package redact keeps configured API keys out of log output. The
// server knows its secrets up front (the keys in server.keys), so
// redaction works on literal values rather than format patterns.
package redact

import (
	"strings"
	"sync"
)

// Placeholder is the replacement string for redacted secrets.
const Placeholder = "***REDACTED***"

// Redactor replaces known secret values in strings. Safe for
// concurrent use.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string
}

// New returns a Redactor holding the given secrets. Empty strings are
// dropped.
func New(secrets ...string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		r.Add(s)
	}
	return r
}

// Add registers another secret value. Empty strings are ignored.
func (r *Redactor) Add(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets = append(r.secrets, secret)
}

// Redact replaces every occurrence of every known secret in s with
// Placeholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	secrets := r.secrets
	r.mu.RUnlock()

	for _, sec := range secrets {
		if strings.Contains(s, sec) {
			s = strings.ReplaceAll(s, sec, Placeholder)
		}
	}
	return s
}
