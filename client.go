package xtdb

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
)

// HTTPClient is the interface for HTTP client.
type HTTPClient interface {
	// Get sends a GET request to the XTDB node.
	Get(context.Context, *url.URL, http.Header) (*http.Response, error)
	// Post sends a POST request to the XTDB node.
	Post(context.Context, *url.URL, http.Header, []byte) (*http.Response, error)
	// Close releases idle connections held by the client.
	Close()
}

type httpClient struct {
	client *http.Client
}

// NewHTTPClient creates a new internal HTTP client.
//
// A nil client falls back to http.DefaultClient.
func NewHTTPClient(client *http.Client) HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClient{
		client: client,
	}
}

// Ensure httpClient implements HTTPClient.
var _ HTTPClient = (*httpClient)(nil)

func (c *httpClient) Get(ctx context.Context, u *url.URL, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, header)
	return c.client.Do(req)
}

func (c *httpClient) Post(ctx context.Context, u *url.URL, header http.Header, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, header)
	return c.client.Do(req)
}

func (c *httpClient) Close() {
	c.client.CloseIdleConnections()
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
