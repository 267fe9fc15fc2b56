// Package session maintains the browser-like cookie and header state the
// catalog site expects before it will serve API requests.
package session

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mhorvath/vintedwatch/internal/clock"
)

// userAgents is the pool a session picks from at construction. The chosen
// string stays fixed for the session's lifetime so the traffic looks like
// one browser, not a rotating set.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/119.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
}

// Manager owns the HTTP client, cookie jar, and header set shared by all
// catalog requests. Refreshes are serialized: callers that lose the race
// reuse the cookies the winner fetched instead of refreshing again.
type Manager struct {
	baseURL   string
	rootURL   *url.URL
	client    *http.Client
	clock     clock.Clock
	logger    *zap.Logger
	userAgent string

	mu          sync.Mutex
	lastRefresh time.Time
}

// New builds a Manager for the given site root, e.g. "https://www.vinted.hu".
func New(baseURL string, c clock.Clock, logger *zap.Logger) (*Manager, error) {
	root, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("build cookie jar: %w", err)
	}
	if c == nil {
		c = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		baseURL: baseURL,
		rootURL: root,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		clock:     c,
		logger:    logger,
		userAgent: userAgents[rand.Intn(len(userAgents))],
	}, nil
}

// Client returns the shared HTTP client. Callers use it directly so every
// request carries the session's cookies.
func (m *Manager) Client() *http.Client {
	return m.client
}

// Headers builds the per-request header set: the session's fixed user
// agent, content negotiation, and the caller-supplied referer.
func (m *Manager) Headers(referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", m.userAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// LastRefresh returns when cookies were last fetched. Zero means never.
func (m *Manager) LastRefresh() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRefresh
}

// RefreshIfStale refreshes the cookies when they are older than maxAge.
func (m *Manager) RefreshIfStale(ctx context.Context, maxAge time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastRefresh.IsZero() && m.clock.Now().Sub(m.lastRefresh) < maxAge {
		return nil
	}
	return m.refreshLocked(ctx)
}

// ForceRefresh refreshes the cookies unconditionally, typically after the
// API rejected a request. Concurrent callers collapse into one refresh:
// the entry time is read before contending for the lock, so a caller that
// waited behind an in-flight refresh sees a newer lastRefresh and returns
// without fetching again.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	entered := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRefresh.After(entered) {
		return nil
	}
	return m.refreshLocked(ctx)
}

// refreshLocked fetches the site root so the server sets fresh cookies in
// the jar. Callers must hold m.mu.
func (m *Manager) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL, nil)
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header = m.Headers("")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.logger.Warn("session refresh rejected", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("refresh session: unexpected status %d", resp.StatusCode)
	}

	m.lastRefresh = m.clock.Now()
	m.logger.Debug("session refreshed",
		zap.Int("cookies", len(m.client.Jar.Cookies(m.rootURL))))
	return nil
}

// Close releases the connection pool. In-flight requests may fail after
// this; callers treat that as a normal transport error.
func (m *Manager) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
