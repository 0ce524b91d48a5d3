package capability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Webpage fetches a page and extracts elements with a CSS selector.
type Webpage struct {
	client *http.Client
}

func NewWebpage() *Webpage {
	return &Webpage{client: &http.Client{Timeout: 30 * time.Second}}
}

func (w *Webpage) Metadata() Metadata {
	return Metadata{
		Type:        "webpage",
		Name:        "Webpage",
		Description: "Fetches a webpage and extracts elements matching a CSS selector.",
		Inputs: []Port{
			{ID: "url", Name: "URL", Type: "url"},
		},
		Outputs: []Port{
			{ID: "elements", Name: "Elements", Type: "array"},
			{ID: "text", Name: "Text", Type: "text"},
		},
		Config: []ConfigField{
			{Name: "url", Type: "string", Description: "Page URL; an incoming url input takes precedence"},
			{Name: "selector", Type: "string", Default: "body", Description: "CSS selector"},
			{Name: "attribute", Type: "string", Description: "Attribute to extract instead of text"},
			{Name: "limit", Type: "number", Default: 30, Description: "Maximum elements to return"},
		},
	}
}

func (w *Webpage) Invoke(ctx context.Context, inputs, config map[string]any) (map[string]any, error) {
	url, _ := inputs["url"].(string)
	if url == "" {
		url, _ = config["url"].(string)
	}
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("request build failed: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; FlowlineBot/1.0)")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("HTML parse failed: %w", err)
	}

	selector, _ := config["selector"].(string)
	if selector == "" {
		selector = "body"
	}
	attribute, _ := config["attribute"].(string)
	limit := intConfig(config, "limit", 30)

	var elements []any
	var parts []string
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var value string
		if attribute != "" {
			value, _ = sel.Attr(attribute)
		} else {
			value = strings.TrimSpace(sel.Text())
		}
		if value != "" {
			elements = append(elements, value)
			parts = append(parts, value)
		}
		return len(elements) < limit
	})

	return map[string]any{
		"elements": elements,
		"text":     strings.Join(parts, "\n"),
	}, nil
}
