/*
 * Copyright 2024 ScopeDB, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package xtdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Client is the entrance for interacting with an XTDB node over its HTTP API.
//
// A Client holds no per-call state and may be shared by goroutines. Queries and
// transactions built from it are not safe for concurrent use.
type Client struct {
	config *Config
	http   HTTPClient

	logger  *zap.Logger
	metrics *clientMetrics
	tracer  trace.Tracer
}

// NewClient creates a new client. A nil config is treated as an empty one.
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	cfg := *config
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:  &cfg,
		http:    httpClient,
		logger:  logger,
		metrics: newClientMetrics(cfg.Registerer),
		tracer:  newTracer(cfg.TracerProvider),
	}
}

// Close releases the resources of the underlying HTTP client.
//
// You don't typically need to call this as the garbage collector will release
// the resources when the client is no longer referenced. However, it can be
// useful to call this if you want to release the resources immediately.
func (c *Client) Close() {
	c.http.Close()
}

// Endpoint returns the base URL of the node.
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// Query creates an empty query bound to this client.
func (c *Client) Query() *Query {
	return NewQuery(c)
}

// Find creates a query bound to this client with the given find terms.
func (c *Client) Find(terms ...any) *Query {
	return NewQuery(c).Find(terms...)
}

// FindEDN creates a query bound to this client with the find terms parsed from fragment.
func (c *Client) FindEDN(fragment string) *Query {
	return NewQuery(c).FindEDN(fragment)
}

// Tx creates an empty transaction bound to this client.
func (c *Client) Tx() *Transaction {
	return NewTransaction(c)
}

// Put starts a transaction with a put operation.
func (c *Client) Put(doc Document, valid ...Valid) *Transaction {
	return c.Tx().Put(doc, valid...)
}

// PutAll starts a transaction with one put operation per document.
func (c *Client) PutAll(docs []Document, valid ...Valid) *Transaction {
	return c.Tx().PutAll(docs, valid...)
}

// Delete starts a transaction with a delete operation.
func (c *Client) Delete(id any, valid ...Valid) *Transaction {
	return c.Tx().Delete(id, valid...)
}

// DeleteAll starts a transaction with one delete operation per entity.
func (c *Client) DeleteAll(ids []any, valid ...Valid) *Transaction {
	return c.Tx().DeleteAll(ids, valid...)
}

// Evict starts a transaction with an evict operation.
func (c *Client) Evict(id any) *Transaction {
	return c.Tx().Evict(id)
}

// EvictAll starts a transaction with one evict operation per entity.
func (c *Client) EvictAll(ids []any) *Transaction {
	return c.Tx().EvictAll(ids)
}

// Match starts a transaction guarded by a match operation.
func (c *Client) Match(id any, expected Document, validTime ...time.Time) *Transaction {
	return c.Tx().Match(id, expected, validTime...)
}

// exchange describes one request/response round trip with the node.
type exchange struct {
	action    string
	method    string
	url       *url.URL
	header    http.Header
	body      []byte
	requestID string
}

func (c *Client) newExchange(method string, action string, query url.Values) (*exchange, error) {
	u, err := url.Parse(c.config.Endpoint + "/_xtdb/" + action)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	requestID := uuid.NewString()
	header := make(http.Header)
	header.Set("Accept", "application/json")
	header.Set("X-Request-Id", requestID)
	return &exchange{
		action:    action,
		method:    method,
		url:       u,
		header:    header,
		requestID: requestID,
	}, nil
}

// roundTrip sends the exchange and returns the response payload of a successful status.
func (c *Client) roundTrip(ctx context.Context, ex *exchange) ([]byte, error) {
	ctx, span := c.traceExchange(ctx, ex)
	defer span.End()

	start := time.Now()
	var resp *http.Response
	var err error
	switch ex.method {
	case http.MethodPost:
		resp, err = c.http.Post(ctx, ex.url, ex.header, ex.body)
	default:
		resp, err = c.http.Get(ctx, ex.url, ex.header)
	}
	if err != nil {
		c.finishExchange(span, ex, 0, time.Since(start), err)
		return nil, err
	}
	defer sneakyBodyClose(resp.Body)

	if err := checkStatusCode(resp, ex.url); err != nil {
		c.finishExchange(span, ex, resp.StatusCode, time.Since(start), err)
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	c.finishExchange(span, ex, resp.StatusCode, time.Since(start), err)
	return data, err
}

// getJSON runs a GET exchange for action and decodes the JSON response into T.
func getJSON[T any](ctx context.Context, c *Client, action string, known []ParamSpec, args Params, extra url.Values) (T, error) {
	var out T

	params, err := EncodeParams(known, args)
	if err != nil {
		return out, err
	}
	query := params.Values()
	for k, vs := range extra {
		query[k] = vs
	}

	ex, err := c.newExchange(http.MethodGet, action, query)
	if err != nil {
		return out, err
	}
	data, err := c.roundTrip(ctx, ex)
	if err != nil {
		return out, err
	}
	if err := decodeJSON(data, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", action, err)
	}
	return out, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
