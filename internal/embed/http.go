package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP pool sizing shared by the HTTP providers.
const (
	httpPoolSize    = 4
	httpIdleTimeout = 10 * time.Second
	maxErrorBody    = 512
)

// newHTTPClient returns a pooled client without a client-level timeout;
// deadlines come from the request context.
func newHTTPClient() (*http.Client, *http.Transport) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        httpPoolSize,
		MaxIdleConnsPerHost: httpPoolSize,
		MaxConnsPerHost:     httpPoolSize * 2,
		IdleConnTimeout:     httpIdleTimeout,
	}
	return &http.Client{Transport: transport}, transport
}

// postJSON sends body as JSON and decodes a 200 response into out.
// Non-200 statuses and undecodable bodies become EmbeddingFailures.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return classify(provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return classify(provider, ctx.Err())
		}
		return classify(provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		reason := ReasonUnavailable
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusPaymentRequired:
			reason = ReasonQuota
		case http.StatusGatewayTimeout, http.StatusRequestTimeout:
			reason = ReasonTimeout
		}
		return failure(reason,
			fmt.Sprintf("%s embedding failed with status %d", provider, resp.StatusCode), nil).
			WithDetail("provider", provider).
			WithDetail("status", fmt.Sprint(resp.StatusCode)).
			WithDetail("body", string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return failure(ReasonMalformed, fmt.Sprintf("%s returned an undecodable response", provider), err).
			WithDetail("provider", provider)
	}
	return nil
}
