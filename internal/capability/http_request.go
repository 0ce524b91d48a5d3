package capability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBody caps how much of an HTTP response body is returned
// downstream.
const maxResponseBody = 100 * 1024 // 100 KB

// allowedMethods is the set of HTTP methods this capability supports.
var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

// HTTPRequest calls external APIs and URLs.
type HTTPRequest struct {
	client *http.Client
}

func NewHTTPRequest() *HTTPRequest {
	return &HTTPRequest{client: &http.Client{Timeout: 30 * time.Second}}
}

func (h *HTTPRequest) Metadata() Metadata {
	return Metadata{
		Type:        "http_request",
		Name:        "HTTP Request",
		Description: "Makes an HTTP request and returns status, headers, and body.",
		Inputs: []Port{
			{ID: "url", Name: "URL", Type: "url"},
			{ID: "body", Name: "Body", Type: "string"},
		},
		Outputs: []Port{
			{ID: "status", Name: "Status", Type: "number"},
			{ID: "body", Name: "Body", Type: "string"},
			{ID: "headers", Name: "Headers", Type: "object"},
		},
		Config: []ConfigField{
			{Name: "method", Type: "string", Default: "GET", Description: "GET, POST, PUT, PATCH, DELETE, or HEAD"},
			{Name: "url", Type: "string", Description: "Request URL; an incoming url input takes precedence"},
			{Name: "headers", Type: "object", Description: "Request headers as key-value pairs"},
			{Name: "body", Type: "string", Description: "Request body for POST, PUT, PATCH"},
		},
	}
}

func (h *HTTPRequest) Invoke(ctx context.Context, inputs, config map[string]any) (map[string]any, error) {
	method, _ := config["method"].(string)
	if method == "" {
		method = "GET"
	}
	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return nil, fmt.Errorf("unsupported HTTP method: %q", method)
	}

	url, _ := inputs["url"].(string)
	if url == "" {
		url, _ = config["url"].(string)
	}
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	var bodyReader io.Reader
	if body, ok := inputs["body"].(string); ok && body != "" {
		bodyReader = strings.NewReader(body)
	} else if body, ok := config["body"].(string); ok && body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if hdrs, ok := config["headers"].(map[string]any); ok {
		for k, v := range hdrs {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBody+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > maxResponseBody {
		data = data[:maxResponseBody]
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return map[string]any{
		"status":  float64(resp.StatusCode),
		"body":    string(data),
		"headers": headers,
	}, nil
}
