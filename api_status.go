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
	"fmt"
)

// nodeAPI defines the status and transaction log interfaces under /_xtdb.
type nodeAPI interface {
	Status(ctx context.Context) (Object, error)
	AttributeStats(ctx context.Context) (Object, error)
	Sync(ctx context.Context, args Params) (*TxReceipt, error)
	AwaitTx(ctx context.Context, args Params) (*TxReceipt, error)
	AwaitTxTime(ctx context.Context, args Params) (*TxReceipt, error)
	TxLog(ctx context.Context, args Params) ([]Object, error)
	TxCommitted(ctx context.Context, args Params) (bool, error)
	LatestCompletedTx(ctx context.Context) (*TxReceipt, error)
	LatestSubmittedTx(ctx context.Context) (*TxReceipt, error)
	ActiveQueries(ctx context.Context) ([]Object, error)
	RecentQueries(ctx context.Context) ([]Object, error)
	SlowestQueries(ctx context.Context) ([]Object, error)
}

var _ nodeAPI = (*Client)(nil)

var (
	syncParams        = []ParamSpec{Plain("timeout")}
	awaitTxParams     = []ParamSpec{Plain("tx-id"), Plain("timeout")}
	awaitTxTimeParams = []ParamSpec{Plain("tx-time"), Plain("timeout")}
	txLogParams       = []ParamSpec{Plain("after-tx-id"), Plain("with-ops?")}
	txCommittedParams = []ParamSpec{Plain("tx-id")}
)

// Status returns the node status: version, index version, kv store and so on.
func (c *Client) Status(ctx context.Context) (Object, error) {
	return getJSON[Object](ctx, c, "status", nil, nil, nil)
}

func (c *Client) AttributeStats(ctx context.Context) (Object, error) {
	return getJSON[Object](ctx, c, "attribute-stats", nil, nil, nil)
}

// Sync waits until the node has indexed every submitted transaction, up to timeout.
// Only TxTime is set on the returned receipt.
func (c *Client) Sync(ctx context.Context, args Params) (*TxReceipt, error) {
	return getJSON[*TxReceipt](ctx, c, "sync", syncParams, args, nil)
}

// AwaitTx waits until the node has indexed the transaction tx-id.
func (c *Client) AwaitTx(ctx context.Context, args Params) (*TxReceipt, error) {
	return getJSON[*TxReceipt](ctx, c, "await-tx", awaitTxParams, args, nil)
}

// AwaitTxTime waits until the node has indexed the transactions up to tx-time.
// Only TxTime is set on the returned receipt.
func (c *Client) AwaitTxTime(ctx context.Context, args Params) (*TxReceipt, error) {
	return getJSON[*TxReceipt](ctx, c, "await-tx-time", awaitTxTimeParams, args, nil)
}

// TxLog lists the transactions after after-tx-id, including their operations when
// with-ops? is true.
func (c *Client) TxLog(ctx context.Context, args Params) ([]Object, error) {
	return getJSON[[]Object](ctx, c, "tx-log", txLogParams, args, nil)
}

// TxCommitted reports whether the transaction tx-id was committed. The node answers
// with a client error for a transaction it has not indexed yet.
func (c *Client) TxCommitted(ctx context.Context, args Params) (bool, error) {
	resp, err := getJSON[map[string]any](ctx, c, "tx-committed", txCommittedParams, args, nil)
	if err != nil {
		return false, err
	}
	committed, ok := resp["tx-committed?"].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected tx-committed response: %v", resp)
	}
	return committed, nil
}

// LatestCompletedTx returns the latest transaction indexed by the node, or nil if none.
func (c *Client) LatestCompletedTx(ctx context.Context) (*TxReceipt, error) {
	return getJSON[*TxReceipt](ctx, c, "latest-completed-tx", nil, nil, nil)
}

// LatestSubmittedTx returns the latest transaction submitted to the node, or nil if none.
func (c *Client) LatestSubmittedTx(ctx context.Context) (*TxReceipt, error) {
	return getJSON[*TxReceipt](ctx, c, "latest-submitted-tx", nil, nil, nil)
}

func (c *Client) ActiveQueries(ctx context.Context) ([]Object, error) {
	return getJSON[[]Object](ctx, c, "active-queries", nil, nil, nil)
}

func (c *Client) RecentQueries(ctx context.Context) ([]Object, error) {
	return getJSON[[]Object](ctx, c, "recent-queries", nil, nil, nil)
}

func (c *Client) SlowestQueries(ctx context.Context) ([]Object, error) {
	return getJSON[[]Object](ctx, c, "slowest-queries", nil, nil, nil)
}
