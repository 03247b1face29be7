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
	"encoding/json"
	"net/http"
)

// txAPI defines interfaces under /_xtdb/submit-tx.
type txAPI interface {
	// SubmitTx submits a transaction to the node, at most once per transaction.
	SubmitTx(ctx context.Context, tx *Transaction) (*TxReceipt, error)
}

var _ txAPI = (*Client)(nil)

// SubmitTx submits tx through this client. Like Transaction.Submit, a transaction is sent
// at most once and later calls return the outcome of the first submission.
func (c *Client) SubmitTx(ctx context.Context, tx *Transaction) (*TxReceipt, error) {
	return tx.submitVia(ctx, c)
}

func (c *Client) submitTx(ctx context.Context, payload TxPayload) (*TxReceipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	ex, err := c.newExchange(http.MethodPost, "submit-tx", nil)
	if err != nil {
		return nil, err
	}
	ex.header.Set("Content-Type", "application/json; charset=utf-8")
	ex.body = body

	data, err := c.roundTrip(ctx, ex)
	if err != nil {
		return nil, err
	}
	var receipt TxReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}
