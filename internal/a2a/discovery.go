package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// SecurityError reports a discovery target that violates transport
// policy: plaintext where TLS is required, or an SSRF-protected
// address.
type SecurityError struct {
	URL    string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("a2a: security: %s: %s", e.URL, e.Reason)
}

// DiscoveryConfig tunes the discovery client.
type DiscoveryConfig struct {
	RequireTLS     bool
	SSRFProtection bool
	Timeout        time.Duration
	CardTTL        time.Duration
}

// Discovery fetches agent cards and caches them by base URL with a
// TTL.
type Discovery struct {
	cfg    DiscoveryConfig
	client *http.Client

	mu    sync.Mutex
	cache map[string]cachedCard
}

type cachedCard struct {
	card    AgentCard
	fetched time.Time
}

// NewDiscovery creates the client.
func NewDiscovery(cfg DiscoveryConfig) *Discovery {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CardTTL <= 0 {
		cfg.CardTTL = 5 * time.Minute
	}
	return &Discovery{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  make(map[string]cachedCard),
	}
}

// Fetch returns the agent card at baseURL, from cache when fresh.
func (d *Discovery) Fetch(ctx context.Context, baseURL string) (AgentCard, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	d.mu.Lock()
	if entry, ok := d.cache[baseURL]; ok && time.Since(entry.fetched) < d.cfg.CardTTL {
		d.mu.Unlock()
		return entry.card, nil
	}
	d.mu.Unlock()

	if err := d.checkTarget(baseURL); err != nil {
		return AgentCard{}, err
	}

	card, err := d.fetchCard(ctx, baseURL+"/.well-known/agent.json")
	if err != nil {
		// Fall back to the alternate discovery path.
		card, err = d.fetchCard(ctx, baseURL+"/agent-card.json")
		if err != nil {
			return AgentCard{}, err
		}
	}

	d.mu.Lock()
	d.cache[baseURL] = cachedCard{card: card, fetched: time.Now()}
	d.mu.Unlock()
	return card, nil
}

func (d *Discovery) fetchCard(ctx context.Context, cardURL string) (AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return AgentCard{}, fmt.Errorf("a2a: discovery %s: %w", cardURL, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return AgentCard{}, fmt.Errorf("a2a: discovery %s: %w", cardURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return AgentCard{}, fmt.Errorf("a2a: discovery %s: HTTP %d", cardURL, resp.StatusCode)
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return AgentCard{}, fmt.Errorf("a2a: discovery %s: decode: %w", cardURL, err)
	}
	return card, nil
}

// checkTarget enforces TLS and SSRF policy on the discovery target.
func (d *Discovery) checkTarget(baseURL string) error {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return &SecurityError{URL: baseURL, Reason: "unparsable url"}
	}

	if d.cfg.RequireTLS && parsed.Scheme != "https" {
		return &SecurityError{URL: baseURL, Reason: "TLS required but endpoint is plaintext"}
	}

	if d.cfg.SSRFProtection {
		host := parsed.Hostname()
		if ip := net.ParseIP(host); ip != nil {
			if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
				return &SecurityError{URL: baseURL, Reason: "address blocked by SSRF protection"}
			}
		} else if host == "localhost" {
			return &SecurityError{URL: baseURL, Reason: "address blocked by SSRF protection"}
		}
	}
	return nil
}

// Invalidate drops the cached card for baseURL.
func (d *Discovery) Invalidate(baseURL string) {
	d.mu.Lock()
	delete(d.cache, strings.TrimRight(baseURL, "/"))
	d.mu.Unlock()
}
