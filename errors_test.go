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

package xtdb_test

import (
	"context"
	"errors"
	"testing"

	xtdb "github.com/pyxtdb/xtdb-sdk/go"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	err := xtdb.Classify(404, "Not Found", "http://localhost:3000/_xtdb/entity")
	require.ErrorIs(t, err, xtdb.ErrClientError)
	require.NotErrorIs(t, err, xtdb.ErrServerError)
	require.EqualError(t, err, "xtdb(404): Client Error: Not Found for url: http://localhost:3000/_xtdb/entity")

	err = xtdb.Classify(503, "Service Unavailable", "http://localhost:3000/_xtdb/status")
	require.ErrorIs(t, err, xtdb.ErrServerError)
	var xe *xtdb.Error
	require.True(t, errors.As(err, &xe))
	require.Equal(t, xtdb.ServerErrorKind, xe.Kind)
	require.Equal(t, 503, xe.StatusCode)
	require.Equal(t, "Service Unavailable", xe.Reason)

	for _, status := range []int{200, 202, 204, 302, 399, 600} {
		require.NoError(t, xtdb.Classify(status, "", ""), status)
	}
	require.Error(t, xtdb.Classify(400, "", ""))
	require.Error(t, xtdb.Classify(599, "", ""))
}

func TestClassifiedExchange(t *testing.T) {
	n := newFakeNode(t)
	c := n.client(t)
	ctx := context.Background()

	_, err := c.Entity(ctx, xtdb.Params{"eid": "nobody"})
	require.ErrorIs(t, err, xtdb.ErrClientError)
	var xe *xtdb.Error
	require.True(t, errors.As(err, &xe))
	require.Equal(t, 404, xe.StatusCode)
	require.Equal(t, "Not Found", xe.Reason)
	require.Equal(t, "entity not found", xe.Body)
	require.Contains(t, xe.URL, "/_xtdb/entity?eid=nobody")

	_, err = c.Entity(ctx, xtdb.Params{"eid": "nobody", "history": true})
	require.ErrorIs(t, err, xtdb.ErrUnknownParameter)
	require.Equal(t, 1, n.count("GET", "/_xtdb/entity"))
}
