package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/infrastructure/resilience"
)

// Client sends index actions to an Elasticsearch compatible _bulk endpoint.
type Client struct {
	baseURL    string
	index      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, index string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		index:      index,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string          `json:"_id"`
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error,omitempty"`
	} `json:"items"`
}

func (c *Client) Bulk(ctx context.Context, actions []domain.IndexAction) error {
	if len(actions) == 0 {
		return nil
	}
	body, err := c.encode(actions)
	if err != nil {
		return err
	}

	call := func(ctx context.Context) error {
		return c.send(ctx, body)
	}
	if c.executor != nil {
		err = c.executor.Execute(ctx, resilience.OpSearchBulk, call, resilience.ClassifyTransport)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if resilience.ClassifyTransport(err).Retryable || resilience.IsCircuitOpen(err) {
			return domain.WrapError(domain.ErrTemporary, "search bulk", err)
		}
		return err
	}
	return nil
}

func (c *Client) encode(actions []domain.IndexAction) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, action := range actions {
		meta := map[string]bulkMeta{string(action.Op): {Index: c.index, ID: action.ID}}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("marshal bulk action: %w", err)
		}
		if action.Op == domain.IndexOpDelete {
			continue
		}
		if err := enc.Encode(action.Body); err != nil {
			return nil, fmt.Errorf("marshal bulk document %s: %w", action.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func (c *Client) send(ctx context.Context, body []byte) error {
	url := fmt.Sprintf("%s/_bulk", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("search bulk request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read bulk response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &resilience.HTTPStatusError{Operation: "search bulk", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed bulkResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}
	for _, item := range parsed.Items {
		for op, result := range item {
			// A delete of a missing document is not a failure.
			if op == string(domain.IndexOpDelete) && result.Status == http.StatusNotFound {
				continue
			}
			if result.Status >= 300 {
				return fmt.Errorf("search bulk %s %s: status %d: %s", op, result.ID, result.Status, string(result.Error))
			}
		}
	}
	return nil
}

// Nop discards index actions when no search backend is configured.
type Nop struct{}

func (Nop) Bulk(context.Context, []domain.IndexAction) error { return nil }
