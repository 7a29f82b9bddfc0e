package youtube

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/proxy"
	"github.com/youtube-agent/pkg/logger"
	"github.com/youtube-agent/pkg/ratelimit"
)

// ClientFactory builds per-account YouTube clients
type ClientFactory struct {
	resolver       *proxy.Resolver
	rateLimiter    *ratelimit.MultiLimiter
	userAgent      string
	timeout        time.Duration
	allowUnproxied bool
	endpoint       string
	log            *logger.Logger
}

// FactoryOption customizes a ClientFactory
type FactoryOption func(*ClientFactory)

// WithEndpoint points clients at a different API base URL
func WithEndpoint(endpoint string) FactoryOption {
	return func(f *ClientFactory) {
		f.endpoint = endpoint
	}
}

// NewClientFactory creates a new client factory
func NewClientFactory(resolver *proxy.Resolver, limiter *ratelimit.MultiLimiter, cfg config.YouTubeConfig, log *logger.Logger, opts ...FactoryOption) *ClientFactory {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	f := &ClientFactory{
		resolver:       resolver,
		rateLimiter:    limiter,
		userAgent:      cfg.UserAgent,
		timeout:        timeout,
		allowUnproxied: cfg.AllowUnproxied,
		log:            log.WithComponent("youtube"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New builds an authenticated client for the account, routed through its proxy when one is assigned.
// A proxy that cannot be used yields ErrProxyUnavailable unless unproxied posting is allowed.
func (f *ClientFactory) New(ctx context.Context, account *models.Account) (*Client, error) {
	base, err := f.baseTransport(ctx, account)
	if err != nil {
		if !f.allowUnproxied {
			return nil, err
		}
		f.log.Warn().Err(err).Uint("account_id", account.ID).Msg("Proxy unavailable, continuing without proxy")
		base = http.DefaultTransport
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(account.OAuth2Token()),
			Base:   base,
		},
		Timeout: f.timeout,
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	service.UserAgent = f.userAgent

	return &Client{
		service:     service,
		rateLimiter: f.rateLimiter,
		log:         f.log.WithAccountID(account.ID),
	}, nil
}

func (f *ClientFactory) baseTransport(ctx context.Context, account *models.Account) (http.RoundTripper, error) {
	if account.ProxyID == nil {
		return http.DefaultTransport, nil
	}

	ref := proxy.ByID(*account.ProxyID)
	if account.Proxy != nil {
		ref = proxy.ByRecord(account.Proxy)
	}

	transport, err := f.resolver.Transport(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProxyUnavailable, err)
	}
	return transport, nil
}

// Client handles YouTube Data API requests for one account
type Client struct {
	service     *youtube.Service
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// Channel is the subset of channel data the service keeps
type Channel struct {
	ID           string `json:"channel_id"`
	Title        string `json:"channel_title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// InsertComment posts a top-level comment, or a reply when parentID is set.
// It returns the YouTube ID of the new comment.
func (c *Client) InsertComment(ctx context.Context, videoID, parentID, text string) (string, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterYouTube); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	if parentID != "" {
		c.log.Debug().Str("parent_id", parentID).Msg("Posting reply")

		reply, err := c.service.Comments.Insert([]string{"snippet"}, &youtube.Comment{
			Snippet: &youtube.CommentSnippet{
				ParentId:     parentID,
				TextOriginal: text,
			},
		}).Context(ctx).Do()
		if err != nil {
			return "", err
		}
		return reply.Id, nil
	}

	c.log.Debug().Str("video_id", videoID).Msg("Posting comment")

	thread, err := c.service.CommentThreads.Insert([]string{"snippet"}, &youtube.CommentThread{
		Snippet: &youtube.CommentThreadSnippet{
			VideoId: videoID,
			TopLevelComment: &youtube.Comment{
				Snippet: &youtube.CommentSnippet{
					TextOriginal: text,
				},
			},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return thread.Id, nil
}

// MyChannel returns the channel owned by the authenticated account
func (c *Client) MyChannel(ctx context.Context) (*Channel, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterYouTube); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}
	return myChannel(ctx, c.service)
}

func myChannel(ctx context.Context, service *youtube.Service) (*Channel, error) {
	resp, err := service.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("no YouTube channel found for account")
	}

	item := resp.Items[0]
	ch := &Channel{ID: item.Id}
	if item.Snippet != nil {
		ch.Title = item.Snippet.Title
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Default != nil {
			ch.ThumbnailURL = item.Snippet.Thumbnails.Default.Url
		}
	}
	return ch, nil
}
