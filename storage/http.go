package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// HttpTransportWithBearer wraps a RoundTripper to add the Authorization header.
type HttpTransportWithBearer struct {
	BaseTransport http.RoundTripper
	Token         string
}

// RoundTrip clones the request and sets the bearer token on the clone.
func (t *HttpTransportWithBearer) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.Token))
	return t.BaseTransport.RoundTrip(reqClone)
}

// HTTPStore reads files from a remote file gateway at <base>/files/<id>.
// Requests are retried on connection errors and 5xx responses.
type HTTPStore struct {
	baseURL     string
	httpClient  *retryablehttp.Client
	rateLimiter *rate.Limiter
}

func newHTTPStore(config Config) *HTTPStore {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	if config.GatewayMaxRetries > 0 {
		client.RetryMax = config.GatewayMaxRetries
	}
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = log

	if config.GatewayToken != "" {
		base := client.HTTPClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client.HTTPClient.Transport = &HttpTransportWithBearer{
			BaseTransport: base,
			Token:         config.GatewayToken,
		}
	}

	var limiter *rate.Limiter
	if config.GatewayRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.GatewayRequestsPerSecond), 1)
	}

	return &HTTPStore{
		baseURL:     strings.TrimRight(config.GatewayURL, "/"),
		httpClient:  client,
		rateLimiter: limiter,
	}
}

func (s *HTTPStore) fileURL(fileID string) string {
	return fmt.Sprintf("%s/files/%s", s.baseURL, url.PathEscape(fileID))
}

func (s *HTTPStore) do(ctx context.Context, method, fileID string, body []byte) (*http.Response, error) {
	if err := validateFileID(fileID); err != nil {
		return nil, err
	}
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	var reqBody interface{}
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, s.fileURL(fileID), reqBody)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Driver: "http", FileID: fileID, Err: err}
	}
	return resp, nil
}

func (s *HTTPStore) Get(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, fileID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	case resp.StatusCode != http.StatusOK:
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &UnavailableError{
			Driver: "http",
			FileID: fileID,
			Err:    fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Driver: "http", FileID: fileID, Err: err}
	}
	return data, nil
}

func (s *HTTPStore) Put(ctx context.Context, fileID string, data []byte) error {
	resp, err := s.do(ctx, http.MethodPut, fileID, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return &UnavailableError{Driver: "http", FileID: fileID, Err: fmt.Errorf("unexpected status code %d", resp.StatusCode)}
	}
	return nil
}

func (s *HTTPStore) Delete(ctx context.Context, fileID string) error {
	resp, err := s.do(ctx, http.MethodDelete, fileID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode/100 == 2 {
		return nil
	}
	return &UnavailableError{Driver: "http", FileID: fileID, Err: fmt.Errorf("unexpected status code %d", resp.StatusCode)}
}
