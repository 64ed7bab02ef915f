package sync

import (
	"context"
	"net"
	"net/url"
	"time"
)

// Connectivity gates sync passes: offline means "return empty, no error".
type Connectivity interface {
	Online(ctx context.Context) bool
}

// DialProbe checks reachability of the backend host with a short TCP dial.
type DialProbe struct {
	addr    string
	timeout time.Duration
}

// NewDialProbe builds a probe against the backend base URL's host.
func NewDialProbe(baseURL string, timeout time.Duration) (*DialProbe, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DialProbe{addr: host, timeout: timeout}, nil
}

// Online reports whether the backend host accepts a TCP connection.
func (p *DialProbe) Online(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Offline is the connectivity used when no backend is configured: every sync
// pass short-circuits to the empty result.
type Offline struct{}

// Online always reports false.
func (Offline) Online(ctx context.Context) bool { return false }
