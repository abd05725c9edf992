package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mux dispatches fetches to a Fetcher registered for the URL scheme.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Fetcher
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Fetcher)}
}

// Handle registers f for each scheme, replacing earlier registrations.
// Schemes are matched case-insensitively.
func (m *Mux) Handle(f Fetcher, schemes ...string) *Mux {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, scheme := range schemes {
		m.handlers[strings.ToLower(scheme)] = f
	}
	return m
}

// Schemes returns the registered schemes.
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for scheme := range m.handlers {
		out = append(out, scheme)
	}
	return out
}

var _ Fetcher = (*Mux)(nil)

// Fetch routes url to the fetcher registered for its scheme.
func (m *Mux) Fetch(ctx context.Context, url string) (*Response, error) {
	scheme, _, ok := strings.Cut(url, ":")
	if !ok || scheme == "" {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedScheme, url)
	}

	m.mu.RLock()
	f, ok := m.handlers[strings.ToLower(scheme)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	return f.Fetch(ctx, url)
}
