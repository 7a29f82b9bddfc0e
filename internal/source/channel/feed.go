package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/pkg/logger"
	"github.com/youtube-agent/pkg/ratelimit"
)

// Video is one upload listed in a channel feed
type Video struct {
	VideoID      string     `json:"video_id"`
	ChannelID    string     `json:"channel_id"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

// Feed looks up recent uploads through a channel's public feed
type Feed struct {
	urlTemplate string
	maxItems    int
	parser      *gofeed.Parser
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewFeed creates a new channel feed reader
func NewFeed(cfg config.ChannelsConfig, limiter *ratelimit.MultiLimiter, userAgent string, log *logger.Logger) *Feed {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: 30 * time.Second}

	return &Feed{
		urlTemplate: cfg.FeedURL,
		maxItems:    cfg.MaxItems,
		parser:      parser,
		rateLimiter: limiter,
		log:         log.WithComponent("channel_feed"),
	}
}

// LatestVideos returns the newest uploads of a channel, newest first as the feed lists them
func (f *Feed) LatestVideos(ctx context.Context, channelID string) ([]Video, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("channel id is required")
	}

	if err := f.rateLimiter.Wait(ctx, ratelimit.LimiterFeed); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	feedURL := fmt.Sprintf(f.urlTemplate, url.QueryEscape(channelID))
	f.log.Debug().Str("url", feedURL).Msg("Fetching channel feed")

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed for channel %s: %w", channelID, err)
	}

	videos := make([]Video, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := videoID(item)
		if id == "" {
			continue
		}

		videos = append(videos, Video{
			VideoID:      id,
			ChannelID:    channelID,
			Title:        strings.TrimSpace(item.Title),
			URL:          item.Link,
			ThumbnailURL: thumbnail(item),
			PublishedAt:  item.PublishedParsed,
		})

		if f.maxItems > 0 && len(videos) >= f.maxItems {
			break
		}
	}

	f.log.Info().
		Int("count", len(videos)).
		Str("channel_id", channelID).
		Msg("Fetched channel videos")

	return videos, nil
}

// videoID reads yt:videoId, falling back to the v parameter of the watch link
func videoID(item *gofeed.Item) string {
	if v := extensionValue(item.Extensions, "yt", "videoId"); v != "" {
		return v
	}

	u, err := url.Parse(item.Link)
	if err != nil {
		return ""
	}
	return u.Query().Get("v")
}

func thumbnail(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}
	for _, group := range media["group"] {
		for _, t := range group.Children["thumbnail"] {
			if u := t.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	return ""
}

func extensionValue(exts ext.Extensions, prefix, name string) string {
	values, ok := exts[prefix]
	if !ok {
		return ""
	}
	for _, e := range values[name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}
