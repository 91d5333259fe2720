package signal

import (
	"fmt"
	"net/url"
	"path"
	"sync"
)

// Dialer hands out one Channel per namespace against a single relay
// endpoint. Channel is idempotent per namespace: repeated calls return the
// same long-lived channel rather than reconnecting.
type Dialer struct {
	baseURL string

	mu       sync.Mutex
	channels map[string]*Channel
}

// NewDialer creates a dialer for the given relay base URL (ws:// or wss://).
func NewDialer(baseURL string) *Dialer {
	return &Dialer{
		baseURL:  baseURL,
		channels: make(map[string]*Channel),
	}
}

// Channel returns the channel bound to namespace, dialing it on first use.
func (d *Dialer) Channel(namespace string) (*Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch, ok := d.channels[namespace]; ok {
		return ch, nil
	}

	u, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay URL: %w", err)
	}
	u.Path = path.Join(u.Path, namespace)

	ch := newChannel(u.String(), namespace)
	d.channels[namespace] = ch
	return ch, nil
}

// Close shuts down every channel the dialer handed out.
func (d *Dialer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.channels {
		ch.Close()
	}
}
