package httpkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// GetJSON issues a GET for endpoint with params appended and decodes a
// 2xx JSON body into out. Non-2xx responses return a *StatusError.
func GetJSON(ctx context.Context, c *http.Client, endpoint string, params url.Values, header http.Header, out any) error {
	target := endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := CheckStatus(resp); err != nil {
		return err
	}
	defer DrainAndClose(resp.Body, 4096)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Retryable reports whether err is a response status worth trying
// elsewhere: rate limiting or a server-side failure.
func Retryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
}
