package capability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// RSSFeed fetches and parses an RSS/Atom feed.
type RSSFeed struct {
	client *http.Client
}

func NewRSSFeed() *RSSFeed {
	return &RSSFeed{client: &http.Client{Timeout: 30 * time.Second}}
}

func (r *RSSFeed) Metadata() Metadata {
	return Metadata{
		Type:        "rss_feed",
		Name:        "RSS Feed",
		Description: "Fetches an RSS/Atom feed and returns its items.",
		Inputs: []Port{
			{ID: "url", Name: "Feed URL", Type: "url"},
		},
		Outputs: []Port{
			{ID: "items", Name: "Items", Type: "array"},
			{ID: "title", Name: "Feed Title", Type: "string"},
		},
		Config: []ConfigField{
			{Name: "url", Type: "string", Description: "Feed URL; an incoming url input takes precedence"},
			{Name: "limit", Type: "number", Default: 20, Description: "Maximum items to return"},
		},
	}
}

func (r *RSSFeed) Invoke(ctx context.Context, inputs, config map[string]any) (map[string]any, error) {
	url, _ := inputs["url"].(string)
	if url == "" {
		url, _ = config["url"].(string)
	}
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	fp := gofeed.NewParser()
	fp.Client = r.client
	feed, err := fp.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("RSS parse failed: %w", err)
	}

	limit := intConfig(config, "limit", 20)
	var items []any
	for _, item := range feed.Items {
		if len(items) >= limit {
			break
		}
		published := ""
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.Format("2006-01-02")
		} else if item.Published != "" {
			published = item.Published
		}
		items = append(items, map[string]any{
			"title":       item.Title,
			"link":        item.Link,
			"published":   published,
			"description": item.Description,
		})
	}

	return map[string]any{
		"items": items,
		"title": feed.Title,
	}, nil
}

// intConfig reads a numeric config value, tolerating the float64 that JSON
// decoding produces.
func intConfig(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}
