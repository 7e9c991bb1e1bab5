// Package extract turns raw page content into normalized product snapshots
// via per-domain adapters.
package extract

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopassist/watchd/internal/watcher"
)

// Adapter parses one site's page structure into a ProductSnapshot. Parse
// must never panic on malformed input; failures are reported as a snapshot
// with OK=false and an error message.
type Adapter interface {
	Parse(content []byte, pageURL string) watcher.ProductSnapshot
}

// Registry resolves the adapter for a domain: exact match first, then the
// longest matching "*.suffix" wildcard, then the generic fallback.
type Registry struct {
	mu        sync.RWMutex
	exact     map[string]Adapter
	wildcards []wildcard
	fallback  Adapter
}

type wildcard struct {
	suffix  string
	adapter Adapter
}

// NewRegistry builds a Registry around the given fallback adapter.
func NewRegistry(fallback Adapter) *Registry {
	return &Registry{
		exact:    make(map[string]Adapter),
		fallback: fallback,
	}
}

// Register binds an adapter to a domain pattern. Patterns are either an
// exact domain ("shop.example.com") or a wildcard ("*.example.com").
func (r *Registry) Register(pattern string, a Adapter) {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" || a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*")
		r.wildcards = append(r.wildcards, wildcard{suffix: suffix, adapter: a})
		// Longest suffix wins when several wildcards match.
		sort.SliceStable(r.wildcards, func(i, j int) bool {
			return len(r.wildcards[i].suffix) > len(r.wildcards[j].suffix)
		})
		return
	}
	r.exact[pattern] = a
}

// Resolve returns the adapter for a domain, falling back to the generic
// adapter when nothing is registered.
func (r *Registry) Resolve(domain string) Adapter {
	domain = strings.ToLower(domain)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.exact[domain]; ok {
		return a
	}
	for _, w := range r.wildcards {
		if strings.HasSuffix(domain, w.suffix) {
			return w.adapter
		}
	}
	return r.fallback
}
