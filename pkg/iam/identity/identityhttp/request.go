package identityhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Abraxas-365/facilitydir/pkg/asyncx"
)

// requestConfig contains parameters for an HTTP request.
type requestConfig struct {
	method      string
	path        string     // URL path template, e.g. "/admin/users/%s"
	pathParams  []string   // substituted into path, URL-escaped
	query       url.Values // query parameters
	body        any        // JSON-encoded when non-nil
	bearer      string     // Authorization bearer token
	expectCodes []int      // default: 200
	// idempotent requests are retried with backoff on transient failures.
	idempotent bool
}

func (p *Provider) doJSON(ctx context.Context, cfg requestConfig, result any) error {
	body, err := p.doRequest(ctx, cfg)
	if err != nil {
		return err
	}
	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func (p *Provider) doRequest(ctx context.Context, cfg requestConfig) ([]byte, error) {
	if !cfg.idempotent {
		return p.doOnce(ctx, cfg)
	}
	backoff := p.opts.retry
	backoff.Retryable = retryable
	return asyncx.RetryWithBackoff(ctx, backoff, func(ctx context.Context) ([]byte, error) {
		return p.doOnce(ctx, cfg)
	})
}

func (p *Provider) doOnce(ctx context.Context, cfg requestConfig) ([]byte, error) {
	var bodyReader io.Reader
	if cfg.body != nil {
		raw, err := json.Marshal(cfg.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.method, p.buildURL(cfg.path, cfg.pathParams, cfg.query), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if cfg.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.opts.apiKey != "" {
		req.Header.Set("apikey", p.opts.apiKey)
	}
	if cfg.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.bearer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if !isExpectedStatus(resp.StatusCode, cfg.expectCodes) {
		return nil, newAPIErrorFromResponse(resp.StatusCode, respBody, resp.Header.Get("X-Request-Id"))
	}
	return respBody, nil
}

func (p *Provider) buildURL(pathTemplate string, pathParams []string, query url.Values) string {
	path := pathTemplate
	if len(pathParams) > 0 {
		escaped := make([]any, len(pathParams))
		for i, v := range pathParams {
			escaped[i] = url.PathEscape(v)
		}
		path = fmt.Sprintf(pathTemplate, escaped...)
	}

	result := p.endpoint + path
	if len(query) > 0 {
		result += "?" + query.Encode()
	}
	return result
}

func isExpectedStatus(status int, expected []int) bool {
	if len(expected) == 0 {
		return status == http.StatusOK
	}
	for _, code := range expected {
		if status == code {
			return true
		}
	}
	return false
}
