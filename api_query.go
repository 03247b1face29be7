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
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// queryAPI defines interfaces under /_xtdb/query.
type queryAPI interface {
	// RunQuery evaluates a Datalog query on the node.
	RunQuery(ctx context.Context, req QueryRequest) (*QueryResult, error)
}

var _ queryAPI = (*Client)(nil)

var queryParams = []ParamSpec{
	Plain("valid-time"),
	Plain("tx-time"),
	Plain("tx-id"),
}

type QueryRequest struct {
	// Query is either a *QueryDocument or a string holding an EDN query map, such as
	// `{:find [?e] :where [[?e :xt/id]]}`.
	Query any
	// InArgs binds the :in clause of the query. It is either an EDN string holding a
	// vector or any value the EDN writer can serialize. Nil sends no :in-args.
	InArgs any
	// Params accepts valid-time, tx-time and tx-id.
	Params Params
}

// QueryResult is the outcome of a query evaluated by the node: the result tuples, or the
// error payload the node answered with instead.
type QueryResult struct {
	Tuples []Tuple
	// Failure is non-nil when the node returned an error map rather than a result sequence.
	Failure map[string]any
}

func (c *Client) RunQuery(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	body, err := queryBody(req)
	if err != nil {
		return nil, err
	}
	params, err := EncodeParams(queryParams, req.Params)
	if err != nil {
		return nil, err
	}

	ex, err := c.newExchange(http.MethodPost, "query", params.Values())
	if err != nil {
		return nil, err
	}
	ex.header.Set("Content-Type", "application/edn")
	ex.body = []byte(body)

	data, err := c.roundTrip(ctx, ex)
	if err != nil {
		return nil, err
	}
	return decodeQueryResult(data)
}

// queryBody renders the EDN request map {:query <doc> [:in-args <args>]}.
func queryBody(req QueryRequest) (string, error) {
	query, err := ednArgument(req.Query)
	if err != nil {
		return "", err
	}
	if query == "" {
		return "", fmt.Errorf("%w: empty query", ErrMalformedQuery)
	}
	inArgs, err := ednArgument(req.InArgs)
	if err != nil {
		return "", err
	}

	if inArgs == "" {
		return fmt.Sprintf("{:query %s}", query), nil
	}
	return fmt.Sprintf("{:query %s :in-args %s}", query, inArgs), nil
}

// ednArgument validates a string as a single EDN value and serializes anything else.
func ednArgument(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		lit, err := readLiteral(strings.TrimSpace(v))
		if err != nil {
			return "", err
		}
		return string(lit), nil
	default:
		return marshalEDN(v)
	}
}

func decodeQueryResult(data []byte) (*QueryResult, error) {
	var payload any
	if err := decodeJSON(data, &payload); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	switch payload := payload.(type) {
	case map[string]any:
		return &QueryResult{Failure: payload}, nil
	case []any:
		tuples := make([]Tuple, 0, len(payload))
		for _, row := range payload {
			if values, ok := row.([]any); ok {
				tuples = append(tuples, values)
			} else {
				tuples = append(tuples, Tuple{row})
			}
		}
		return &QueryResult{Tuples: tuples}, nil
	case nil:
		return &QueryResult{Tuples: []Tuple{}}, nil
	default:
		return nil, errors.New("unexpected query response: " + string(truncate(data, 128)))
	}
}

func truncate(data []byte, n int) []byte {
	if len(data) <= n {
		return data
	}
	return data[:n]
}

