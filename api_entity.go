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
	"net/url"
)

// entityAPI defines interfaces under /_xtdb/entity and /_xtdb/entity-tx.
type entityAPI interface {
	// Entity returns the document of an entity as of the given times.
	Entity(ctx context.Context, args Params) (Document, error)
	// EntityHistory returns the history entries of an entity.
	EntityHistory(ctx context.Context, args Params) ([]Object, error)
	// EntityTx returns the transaction details of the current version of an entity.
	EntityTx(ctx context.Context, args Params) (Object, error)
}

var _ entityAPI = (*Client)(nil)

// Object is a JSON object returned by an introspection call.
type Object = map[string]any

// The entity id is given by exactly one of eid (a string id), eid-json or eid-edn.
var entityParams = []ParamSpec{
	Plain("eid"),
	JSON("eid-json"),
	EDN("eid-edn"),
	Plain("valid-time"),
	Plain("tx-time"),
	Plain("tx-id"),
}

var entityHistoryParams = []ParamSpec{
	Plain("eid"),
	JSON("eid-json"),
	EDN("eid-edn"),
	Plain("sort-order"),
	Plain("with-corrections"),
	Plain("with-docs"),
	Plain("start-valid-time"),
	Plain("start-tx-time"),
	Plain("start-tx-id"),
	Plain("end-valid-time"),
	Plain("end-tx-time"),
	Plain("end-tx-id"),
}

func (c *Client) Entity(ctx context.Context, args Params) (Document, error) {
	return getJSON[Document](ctx, c, "entity", entityParams, args, nil)
}

// EntityHistory lists the versions of an entity. The sort-order parameter ("asc" or
// "desc") is required by the node.
func (c *Client) EntityHistory(ctx context.Context, args Params) ([]Object, error) {
	return getJSON[[]Object](ctx, c, "entity", entityHistoryParams, args, url.Values{"history": {"true"}})
}

func (c *Client) EntityTx(ctx context.Context, args Params) (Object, error) {
	return getJSON[Object](ctx, c, "entity-tx", entityParams, args, nil)
}
