package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pulsestack/pulse-monitor/internal/models"
)

// ErrStoreUnavailable marks transport-level failures reaching the store, as
// opposed to the store rejecting an individual request. The dispatcher uses
// the distinction to abort a batch instead of burning through it.
var ErrStoreUnavailable = errors.New("log store unreachable")

// LogStoreClient talks to an Elasticsearch-compatible log/event store: it
// queries raw request records over a time range and writes alert documents.
type LogStoreClient struct {
	baseURL     string
	indices     []string
	alertsIndex string
	pageSize    int
	httpClient  *http.Client
}

// NewLogStoreClient constructs a client for the configured store.
func NewLogStoreClient(baseURL string, indices []string, alertsIndex string, pageSize int, timeout time.Duration) *LogStoreClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if pageSize <= 0 {
		pageSize = 10000
	}
	return &LogStoreClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		indices:     indices,
		alertsIndex: alertsIndex,
		pageSize:    pageSize,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// PageSize returns the bounded query page size.
func (c *LogStoreClient) PageSize() int { return c.pageSize }

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// FetchRecords queries raw documents whose @timestamp falls in [from, to).
// It returns the page of source documents and the total hit count; a total
// larger than the page means records were left behind, which the caller
// surfaces as an accepted overflow rather than hiding.
func (c *LogStoreClient) FetchRecords(ctx context.Context, from, to time.Time) ([]map[string]any, int, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, fmt.Errorf("log store client not configured")
	}

	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"range": map[string]any{
							"@timestamp": map[string]any{
								"gte": from.UTC().Format(time.RFC3339Nano),
								"lt":  to.UTC().Format(time.RFC3339Nano),
							},
						},
					},
				},
			},
		},
		"size": c.pageSize,
	}

	endpoint := fmt.Sprintf("%s/%s/_search", c.baseURL, url.PathEscape(strings.Join(c.indices, ",")))

	var response searchResponse
	if err := c.doJSON(ctx, http.MethodPost, endpoint, query, &response); err != nil {
		return nil, 0, fmt.Errorf("search records: %w", err)
	}

	sources := make([]map[string]any, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		if hit.Source != nil {
			sources = append(sources, hit.Source)
		}
	}
	return sources, response.Hits.Total.Value, nil
}

// WriteAlert persists one alert document under its deterministic ID, making
// the write idempotent per anomaly: a retry overwrites the same document.
func (c *LogStoreClient) WriteAlert(ctx context.Context, alert models.Alert) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("log store client not configured")
	}
	if alert.ID == "" {
		return fmt.Errorf("alert has no ID")
	}

	endpoint := fmt.Sprintf("%s/%s/_doc/%s",
		c.baseURL, url.PathEscape(c.alertsIndex), url.PathEscape(alert.ID))
	if err := c.doJSON(ctx, http.MethodPut, endpoint, alert, nil); err != nil {
		return fmt.Errorf("write alert %s: %w", alert.ID, err)
	}
	return nil
}

func (c *LogStoreClient) doJSON(ctx context.Context, method, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("store returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
