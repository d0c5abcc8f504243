// Package catalog fetches workflow definitions from an external workflow
// host's REST API. It implements core.Catalog; classification of the raw
// entries into capability types is the registry's job.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/logging"
)

// DefaultBaseURL targets a workflow host running on the conventional
// local port.
const DefaultBaseURL = "http://localhost:5678"

// Options configures an HTTPCatalog.
type Options struct {
	// APIKey is sent as the X-N8N-API-KEY header when non-empty.
	APIKey string
	// HTTPClient performs catalog requests. Defaults to a client with a
	// 10s timeout.
	HTTPClient *http.Client
	// Logger receives fetch diagnostics.
	Logger logging.Logger
}

// HTTPCatalog lists workflows from a workflow host's management API.
type HTTPCatalog struct {
	core.LoggerAdapter
	baseURL string
	opts    Options
}

var _ core.Catalog = (*HTTPCatalog)(nil)

// New creates an HTTPCatalog for the given base URL. An empty baseURL
// selects DefaultBaseURL.
func New(baseURL string, optFns ...func(o *Options)) *HTTPCatalog {
	opts := Options{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPCatalog{
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
		baseURL:       baseURL,
		opts:          opts,
	}
}

// List implements core.Catalog. It GETs /api/v1/workflows and maps each
// row of the response's data array to a CatalogEntry, preserving the raw
// row for downstream webhook path extraction.
func (c *HTTPCatalog) List(ctx context.Context, limit int) ([]core.CatalogEntry, error) {
	url := c.baseURL + "/api/v1/workflows"
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("X-N8N-API-KEY", c.opts.APIKey)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch workflow catalog: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("workflow catalog returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}

	rows := gjson.GetBytes(body, "data")
	if !rows.Exists() {
		// Some hosts return a bare array instead of a data envelope.
		rows = gjson.ParseBytes(body)
	}
	if !rows.IsArray() {
		return nil, fmt.Errorf("unexpected catalog response shape")
	}

	var entries []core.CatalogEntry
	rows.ForEach(func(_, row gjson.Result) bool {
		entries = append(entries, core.CatalogEntry{
			ID:            row.Get("id").String(),
			Name:          row.Get("name").String(),
			Active:        row.Get("active").Bool(),
			Description:   row.Get("description").String(),
			RawDefinition: []byte(row.Raw),
		})
		return true
	})

	c.LogDebug("workflow catalog fetched", "count", len(entries))

	return entries, nil
}
