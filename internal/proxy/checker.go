package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/pkg/logger"
	"github.com/youtube-agent/pkg/ratelimit"
)

// CheckStore is the persistence the checker needs
type CheckStore interface {
	RecordProxyCheck(ctx context.Context, id uint, status models.ProxyStatus, checkedAt time.Time, speed time.Duration) error
}

// CheckResult contains the outcome of a health check
type CheckResult struct {
	ProxyID   uint               `json:"proxy_id"`
	Status    models.ProxyStatus `json:"status"`
	Speed     int64              `json:"connection_speed"` // milliseconds
	CheckedAt time.Time          `json:"last_checked"`
	Error     string             `json:"error,omitempty"`
}

// Checker probes proxies and records their health
type Checker struct {
	store       CheckStore
	rateLimiter *ratelimit.MultiLimiter
	checkURL    string
	timeout     time.Duration
	concurrency int
	log         *logger.Logger
}

// NewChecker creates a new proxy health checker
func NewChecker(store CheckStore, rateLimiter *ratelimit.MultiLimiter, checkURL string, timeout time.Duration, log *logger.Logger) *Checker {
	return &Checker{
		store:       store,
		rateLimiter: rateLimiter,
		checkURL:    checkURL,
		timeout:     timeout,
		concurrency: 5,
		log:         log.WithComponent("proxy_checker"),
	}
}

// Check requests the check URL through the proxy and persists the outcome
func (c *Checker) Check(ctx context.Context, p *models.Proxy) (*CheckResult, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterProxyCheck); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result := &CheckResult{ProxyID: p.ID, Status: models.ProxyStatusActive}
	elapsed, err := c.probe(ctx, p)
	result.CheckedAt = time.Now()
	if err != nil {
		result.Status = models.ProxyStatusInactive
		result.Error = err.Error()
		c.log.Warn().Err(err).Uint("proxy_id", p.ID).Msg("Proxy check failed")
	} else {
		result.Speed = elapsed.Milliseconds()
		c.log.Debug().Uint("proxy_id", p.ID).Int64("speed_ms", result.Speed).Msg("Proxy check passed")
	}

	if err := c.store.RecordProxyCheck(ctx, p.ID, result.Status, result.CheckedAt, time.Duration(result.Speed)*time.Millisecond); err != nil {
		return nil, fmt.Errorf("failed to record proxy check: %w", err)
	}

	p.Status = result.Status
	p.LastChecked = &result.CheckedAt
	p.ConnectionSpeed = result.Speed
	return result, nil
}

// CheckAll checks proxies concurrently, returning results in input order
func (c *Checker) CheckAll(ctx context.Context, proxies []*models.Proxy) ([]*CheckResult, error) {
	results := make([]*CheckResult, len(proxies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, p := range proxies {
		i, p := i, p
		g.Go(func() error {
			res, err := c.Check(gctx, p)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (c *Checker) probe(ctx context.Context, p *models.Proxy) (time.Duration, error) {
	transport, err := NewTransport(p)
	if err != nil {
		return 0, err
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport, Timeout: c.timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.checkURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request through proxy failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("check url returned status %d", resp.StatusCode)
	}
	return time.Since(start), nil
}
