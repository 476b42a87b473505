package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient abstracts the transport for tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &http.Client{Timeout: timeout}
}

// HTTPProvider reads tabular rows from the sheet gateway:
// GET {base}/sheets/{id}/values/{tab}?range=... -> JSON array of rows.
type HTTPProvider struct {
	c     HTTPClient
	base  string
	token string
}

func NewHTTPProvider(c HTTPClient, base, token string) *HTTPProvider {
	return &HTTPProvider{c: c, base: base, token: token}
}

func (p *HTTPProvider) Read(ctx context.Context, loc Locator, rangeSpec string) ([][]string, error) {
	u := fmt.Sprintf("%s/sheets/%s/values/%s", p.base, url.PathEscape(loc.SpreadsheetID), url.PathEscape(loc.Tab))
	if rangeSpec != "" {
		u += "?range=" + url.QueryEscape(rangeSpec)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.c.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &TransientError{Err: fmt.Errorf("status %d body=%s", resp.StatusCode, string(b))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("source: unexpected status %d", resp.StatusCode)
	}

	var rows [][]string
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("source: decode rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyResult
	}
	return rows, nil
}
