package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/proxy"
	"github.com/youtube-agent/internal/storage"
	"github.com/youtube-agent/pkg/logger"
	"github.com/youtube-agent/pkg/ratelimit"
)

type fakeExchanger struct {
	token *oauth2.Token
	err   error
	calls int
}

func (f *fakeExchanger) Refresh(_ context.Context, _ string) (*oauth2.Token, error) {
	f.calls++
	return f.token, f.err
}

type fakeTokenStore struct {
	tokens   map[uint]string
	statuses map[uint]models.AccountStatus
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: map[uint]string{}, statuses: map[uint]models.AccountStatus{}}
}

func (f *fakeTokenStore) UpdateAccountToken(_ context.Context, id uint, accessToken string, _ time.Time) error {
	f.tokens[id] = accessToken
	return nil
}

func (f *fakeTokenStore) UpdateAccountStatus(_ context.Context, id uint, status models.AccountStatus) error {
	f.statuses[id] = status
	return nil
}

type proxyStore map[uint]*models.Proxy

func (s proxyStore) GetProxyByID(_ context.Context, id uint) (*models.Proxy, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, storage.ErrNotFound
}

func expiredAccount() *models.Account {
	past := time.Now().Add(-time.Hour)
	return &models.Account{
		ID:     1,
		Status: models.AccountStatusActive,
		Google: models.GoogleCredentials{
			AccessToken:  "old-token",
			RefreshToken: "refresh",
			TokenExpiry:  &past,
		},
	}
}

func TestTokenRefresher_StillValid(t *testing.T) {
	exchanger := &fakeExchanger{}
	r := NewTokenRefresher(exchanger, newFakeTokenStore(), logger.Nop())

	future := time.Now().Add(time.Hour)
	acc := &models.Account{ID: 1, Google: models.GoogleCredentials{AccessToken: "t", TokenExpiry: &future}}

	refreshed, err := r.RefreshIfNeeded(context.Background(), acc, false)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Zero(t, exchanger.calls)
}

func TestTokenRefresher_NoRefreshToken(t *testing.T) {
	exchanger := &fakeExchanger{}
	store := newFakeTokenStore()
	r := NewTokenRefresher(exchanger, store, logger.Nop())

	for _, force := range []bool{false, true} {
		acc := expiredAccount()
		acc.Google.RefreshToken = ""

		_, err := r.RefreshIfNeeded(context.Background(), acc, force)
		assert.ErrorIs(t, err, ErrNoRefreshToken)
		assert.Equal(t, "old-token", acc.Google.AccessToken)
	}
	assert.Zero(t, exchanger.calls)
	assert.Empty(t, store.tokens)
}

func TestTokenRefresher_FailedRefreshMarksInactive(t *testing.T) {
	exchanger := &fakeExchanger{err: errors.New("invalid_grant: Token has been expired or revoked.")}
	store := newFakeTokenStore()
	r := NewTokenRefresher(exchanger, store, logger.Nop())

	acc := expiredAccount()
	_, err := r.RefreshIfNeeded(context.Background(), acc, false)

	require.ErrorIs(t, err, ErrAuthFailure)
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Equal(t, models.AccountStatusInactive, acc.Status)
	assert.Equal(t, models.AccountStatusInactive, store.statuses[acc.ID])
}

func TestTokenRefresher_Success(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	exchanger := &fakeExchanger{token: &oauth2.Token{AccessToken: "new-token", Expiry: expiry}}
	store := newFakeTokenStore()
	r := NewTokenRefresher(exchanger, store, logger.Nop())

	future := time.Now().Add(time.Hour)
	acc := expiredAccount()
	acc.Google.TokenExpiry = &future

	// forced refresh ignores the still valid expiry
	refreshed, err := r.RefreshIfNeeded(context.Background(), acc, true)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "new-token", acc.Google.AccessToken)
	assert.Equal(t, expiry, *acc.Google.TokenExpiry)
	assert.Equal(t, "new-token", store.tokens[acc.ID])
}

func TestIsQuotaError(t *testing.T) {
	apiErr := &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}

	assert.True(t, IsQuotaError(apiErr))
	assert.True(t, IsQuotaError(errors.New("googleapi: Error 403: dailyLimitExceeded")))
	assert.True(t, IsQuotaError(ErrQuotaExceeded))
	assert.False(t, IsQuotaError(errors.New("commentsDisabled")))
	assert.False(t, IsQuotaError(nil))
}

func newTestFactory(t *testing.T, handler http.HandlerFunc, allowUnproxied bool, proxies proxyStore) *ClientFactory {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.YouTubeConfig{UserAgent: "youtube-agent/test", RequestTimeout: 5 * time.Second, AllowUnproxied: allowUnproxied}
	return NewClientFactory(proxy.NewResolver(proxies), ratelimit.Unlimited(), cfg, logger.Nop(), WithEndpoint(srv.URL+"/"))
}

func TestClient_InsertComment(t *testing.T) {
	var paths []string
	var auth, ua string
	factory := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		auth = r.Header.Get("Authorization")
		ua = r.Header.Get("User-Agent")

		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/comments") {
			_, _ = w.Write([]byte(`{"id":"reply-1"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"thread-1"}`))
	}, true, proxyStore{})

	client, err := factory.New(context.Background(), &models.Account{ID: 1, Google: models.GoogleCredentials{AccessToken: "access"}})
	require.NoError(t, err)

	id, err := client.InsertComment(context.Background(), "video-1", "", "great video")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", id)
	assert.Equal(t, "Bearer access", auth)
	assert.Contains(t, ua, "youtube-agent/test")

	id, err = client.InsertComment(context.Background(), "video-1", "parent-1", "agreed")
	require.NoError(t, err)
	assert.Equal(t, "reply-1", id)

	assert.Equal(t, []string{"/youtube/v3/commentThreads", "/youtube/v3/comments"}, paths)
}

func TestClient_QuotaError(t *testing.T) {
	factory := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded","domain":"youtube.quota"}]}}`))
	}, true, proxyStore{})

	client, err := factory.New(context.Background(), &models.Account{ID: 1})
	require.NoError(t, err)

	_, err = client.InsertComment(context.Background(), "video-1", "", "hello")
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
}

func TestClientFactory_ProxyPolicy(t *testing.T) {
	banned := &models.Proxy{ID: 7, Host: "10.0.0.1", Port: 8080, Protocol: models.ProxyProtocolHTTP, Status: models.ProxyStatusBanned}
	proxies := proxyStore{7: banned}
	proxyID := uint(7)
	acc := &models.Account{ID: 1, ProxyID: &proxyID}

	strict := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {}, false, proxies)
	_, err := strict.New(context.Background(), acc)
	assert.ErrorIs(t, err, ErrProxyUnavailable)
	assert.ErrorIs(t, err, proxy.ErrProxyNotActive)

	lenient := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {}, true, proxies)
	client, err := lenient.New(context.Background(), acc)
	require.NoError(t, err)
	assert.NotNil(t, client)
}
