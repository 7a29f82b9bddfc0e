package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
)

var (
	ErrProxyNotFound       = errors.New("proxy not found")
	ErrProxyNotActive      = errors.New("proxy not active")
	ErrUnsupportedProtocol = errors.New("unsupported proxy protocol")
)

// Store is the persistence the resolver needs
type Store interface {
	GetProxyByID(ctx context.Context, id uint) (*models.Proxy, error)
}

// Ref points at a proxy either by an already loaded record or by id
type Ref struct {
	Proxy *models.Proxy
	ID    uint
}

// ByRecord references a loaded proxy
func ByRecord(p *models.Proxy) Ref { return Ref{Proxy: p} }

// ByID references a proxy to be loaded from storage
func ByID(id uint) Ref { return Ref{ID: id} }

// Resolver turns proxy references into HTTP transports
type Resolver struct {
	store Store
}

// NewResolver creates a new proxy resolver
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve loads the referenced proxy and ensures it is usable
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (*models.Proxy, error) {
	p := ref.Proxy
	if p == nil {
		if ref.ID == 0 {
			return nil, ErrProxyNotFound
		}
		var err error
		p, err = r.store.GetProxyByID(ctx, ref.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: id %d", ErrProxyNotFound, ref.ID)
			}
			return nil, fmt.Errorf("failed to load proxy: %w", err)
		}
	}

	if !p.IsActive() {
		return nil, fmt.Errorf("%w: proxy is %s", ErrProxyNotActive, p.Status)
	}
	return p, nil
}

// Transport resolves the reference and builds a transport routed through it
func (r *Resolver) Transport(ctx context.Context, ref Ref) (*http.Transport, error) {
	p, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return NewTransport(p)
}

// URL builds the connection URL of a proxy.
// Credentials are embedded only when both username and password are set.
func URL(p *models.Proxy) (*url.URL, error) {
	switch p.Protocol {
	case models.ProxyProtocolHTTP, models.ProxyProtocolHTTPS, models.ProxyProtocolSOCKS5:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, p.Protocol)
	}

	u := &url.URL{
		Scheme: string(p.Protocol),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	if p.Username != "" && p.Password != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u, nil
}

// NewTransport builds a transport for the proxy without checking its status
func NewTransport(p *models.Proxy) (*http.Transport, error) {
	u, err := URL(p)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	switch p.Protocol {
	case models.ProxyProtocolSOCKS5:
		dialer, err := xproxy.FromURL(u, &net.Dialer{Timeout: 30 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
		}
		contextDialer, ok := dialer.(xproxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer does not support contexts")
		}
		transport.Proxy = nil
		transport.DialContext = contextDialer.DialContext
	default:
		transport.Proxy = http.ProxyURL(u)
	}

	return transport, nil
}
