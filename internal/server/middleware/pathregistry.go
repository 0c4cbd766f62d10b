// Package middleware holds the gin middleware for the account service. The
// token validation filter here is the single entry point for session-token
// checks; handlers behind it can trust the User-Token request header.
package middleware

import (
	"strings"
	"sync"
)

// PathRegistry is the set of URL path prefixes the token validation filter
// covers. The server wiring owns and mutates it; the filter only reads.
// Safe for concurrent use.
type PathRegistry struct {
	mu       sync.RWMutex
	prefixes []string
}

// NewPathRegistry returns a registry seeded with the given prefixes.
func NewPathRegistry(prefixes ...string) *PathRegistry {
	r := &PathRegistry{}
	r.Add(prefixes...)
	return r
}

// Add registers additional protected prefixes. Empty strings are ignored.
func (r *PathRegistry) Add(prefixes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range prefixes {
		if p != "" {
			r.prefixes = append(r.prefixes, p)
		}
	}
}

// Covers reports whether the path starts with any registered prefix.
func (r *PathRegistry) Covers(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the registered prefixes.
func (r *PathRegistry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.prefixes))
	copy(out, r.prefixes)
	return out
}
