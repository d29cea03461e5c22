package proxy

import (
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

// Manager handles the rotation of proxies and user agents for side data
// requests.
type Manager struct {
	proxies    []*url.URL
	userAgents []string
	mu         sync.Mutex
	proxyIndex int
}

// NewManager parses the proxy list. An empty userAgents list falls back to a
// small set of desktop Chrome agents.
func NewManager(proxies, userAgents []string) (*Manager, error) {
	m := &Manager{userAgents: userAgents}
	if len(m.userAgents) == 0 {
		m.userAgents = defaultUserAgents
	}
	for _, p := range proxies {
		u, err := url.Parse(p)
		if err != nil {
			return nil, err
		}
		m.proxies = append(m.proxies, u)
	}
	return m, nil
}

// GetProxy returns the next proxy, rotating sequentially. It returns nil when
// no proxy is configured.
func (m *Manager) GetProxy() *url.URL {
	if len(m.proxies) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return p
}

// ProxyFunc adapts the rotation to http.Transport.Proxy.
func (m *Manager) ProxyFunc(*http.Request) (*url.URL, error) {
	return m.GetProxy(), nil
}

// GetUserAgent returns a random user agent string.
func (m *Manager) GetUserAgent() string {
	return m.userAgents[rand.IntN(len(m.userAgents))]
}
