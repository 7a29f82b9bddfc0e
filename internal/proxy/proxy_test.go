package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
	"github.com/youtube-agent/pkg/logger"
	"github.com/youtube-agent/pkg/ratelimit"
)

type fakeStore struct {
	proxies map[uint]*models.Proxy
	checks  []models.ProxyStatus
}

func (f *fakeStore) GetProxyByID(_ context.Context, id uint) (*models.Proxy, error) {
	p, ok := f.proxies[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) RecordProxyCheck(_ context.Context, _ uint, status models.ProxyStatus, _ time.Time, _ time.Duration) error {
	f.checks = append(f.checks, status)
	return nil
}

func TestURL(t *testing.T) {
	tests := []struct {
		name  string
		proxy models.Proxy
		want  string
	}{
		{
			name:  "http with credentials",
			proxy: models.Proxy{Host: "10.0.0.1", Port: 8080, Protocol: models.ProxyProtocolHTTP, Username: "u", Password: "p"},
			want:  "http://u:p@10.0.0.1:8080",
		},
		{
			name:  "username without password is dropped",
			proxy: models.Proxy{Host: "10.0.0.1", Port: 8080, Protocol: models.ProxyProtocolHTTPS, Username: "u"},
			want:  "https://10.0.0.1:8080",
		},
		{
			name:  "socks5",
			proxy: models.Proxy{Host: "proxy.local", Port: 1080, Protocol: models.ProxyProtocolSOCKS5, Username: "u", Password: "p"},
			want:  "socks5://u:p@proxy.local:1080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := URL(&tt.proxy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}

	_, err := URL(&models.Proxy{Host: "h", Port: 1, Protocol: "ftp"})
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
}

func TestResolver_Transport(t *testing.T) {
	store := &fakeStore{proxies: map[uint]*models.Proxy{
		1: {ID: 1, Host: "10.0.0.1", Port: 8080, Protocol: models.ProxyProtocolHTTP, Status: models.ProxyStatusActive},
		2: {ID: 2, Host: "10.0.0.2", Port: 8080, Protocol: models.ProxyProtocolHTTP, Status: models.ProxyStatusBanned},
		3: {ID: 3, Host: "10.0.0.3", Port: 8080, Protocol: "ftp", Status: models.ProxyStatusActive},
		4: {ID: 4, Host: "10.0.0.4", Port: 1080, Protocol: models.ProxyProtocolSOCKS5, Status: models.ProxyStatusActive},
	}}
	r := NewResolver(store)
	ctx := context.Background()

	transport, err := r.Transport(ctx, ByID(1))
	require.NoError(t, err)
	require.NotNil(t, transport.Proxy)
	proxyURL, err := transport.Proxy(httptest.NewRequest(http.MethodGet, "https://www.googleapis.com", nil))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", proxyURL.Host)

	_, err = r.Transport(ctx, ByID(99))
	assert.ErrorIs(t, err, ErrProxyNotFound)

	_, err = r.Transport(ctx, ByID(2))
	assert.ErrorIs(t, err, ErrProxyNotActive)

	_, err = r.Transport(ctx, ByRecord(store.proxies[3]))
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)

	transport, err = r.Transport(ctx, ByRecord(store.proxies[4]))
	require.NoError(t, err)
	assert.Nil(t, transport.Proxy)
	assert.NotNil(t, transport.DialContext)
}

func TestChecker_Check(t *testing.T) {
	var hits atomic.Int32
	// Plain HTTP proxies receive absolute-form requests, so a regular handler can play the proxy.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	store := &fakeStore{}
	checker := NewChecker(store, ratelimit.Unlimited(), "http://example.invalid/", 5*time.Second, logger.Nop())

	good := &models.Proxy{ID: 1, Host: u.Hostname(), Port: port, Protocol: models.ProxyProtocolHTTP, Status: models.ProxyStatusInactive}
	res, err := checker.Check(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, models.ProxyStatusActive, res.Status)
	assert.Equal(t, models.ProxyStatusActive, good.Status)
	assert.NotNil(t, good.LastChecked)
	assert.EqualValues(t, 1, hits.Load())

	upstream.Close()
	res, err = checker.Check(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, models.ProxyStatusInactive, res.Status)
	assert.NotEmpty(t, res.Error)

	assert.Equal(t, []models.ProxyStatus{models.ProxyStatusActive, models.ProxyStatusInactive}, store.checks)
}
