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
	"errors"
	"time"

	"go.uber.org/zap"
)

// Document is an XTDB document. It must carry its entity id under "xt/id".
type Document map[string]any

// TxOpKind names a transaction operation on the wire.
type TxOpKind string

const (
	TxPut    TxOpKind = "put"
	TxDelete TxOpKind = "delete"
	TxEvict  TxOpKind = "evict"
	TxMatch  TxOpKind = "match"
)

// Valid is the valid time range of a put or delete. A zero From means "now".
//
// Until is only honoured together with From: an Until given alone is dropped from the
// operation, as the node would otherwise read it as the start of the range.
type Valid struct {
	From  time.Time
	Until time.Time
}

// TxOp is a single operation of a transaction.
type TxOp struct {
	Kind TxOpKind

	// Document is the document written by a put.
	Document Document
	// ID is the entity targeted by delete, evict and match.
	ID any
	// Expected is the document a match compares against; nil asserts the entity is absent.
	Expected Document
	// Valid is the valid time range of put and delete, or the valid time of a match in From.
	Valid Valid
}

// MarshalJSON renders the operation in the tx-ops vector form, e.g. ["put", {...}, t0, t1].
func (op TxOp) MarshalJSON() ([]byte, error) {
	var wire []any
	switch op.Kind {
	case TxPut:
		wire = append([]any{op.Kind, op.Document}, op.Valid.times()...)
	case TxDelete:
		wire = append([]any{op.Kind, op.ID}, op.Valid.times()...)
	case TxEvict:
		wire = []any{op.Kind, op.ID}
	case TxMatch:
		var expected any
		if op.Expected != nil {
			expected = op.Expected
		}
		wire = []any{op.Kind, op.ID, expected}
		if !op.Valid.From.IsZero() {
			wire = append(wire, op.Valid.From)
		}
	default:
		return nil, errors.New("xtdb: unknown tx op kind " + string(op.Kind))
	}
	return json.Marshal(wire)
}

func (v Valid) times() []any {
	if v.From.IsZero() {
		return nil
	}
	if v.Until.IsZero() {
		return []any{v.From}
	}
	return []any{v.From, v.Until}
}

// TxReceipt acknowledges a submitted transaction.
type TxReceipt struct {
	TxID   int64     `json:"xtdb.api/tx-id"`
	TxTime time.Time `json:"xtdb.api/tx-time"`
}

// TxPayload is the body of a submit-tx request.
type TxPayload struct {
	TxOps []TxOp `json:"tx-ops"`
}

// Transaction batches operations and submits them at most once.
//
// Operations are sent in the order they were added. After Submit the transaction is
// frozen: further operations are rejected with ErrAlreadySubmitted and Submit returns
// the first outcome again. A Transaction is not safe for concurrent use.
type Transaction struct {
	client *Client
	ops    []TxOp
	err    error

	submitted bool
	receipt   *TxReceipt
	submitErr error
}

// NewTransaction creates an empty transaction submitted through client.
func NewTransaction(client *Client) *Transaction {
	return &Transaction{client: client}
}

func (tx *Transaction) add(op TxOp) {
	if tx.err != nil {
		return
	}
	if tx.submitted {
		tx.err = ErrAlreadySubmitted
		return
	}
	tx.ops = append(tx.ops, op)
}

func (tx *Transaction) valid(kind TxOpKind, valid []Valid) Valid {
	if len(valid) == 0 {
		return Valid{}
	}
	v := valid[len(valid)-1]
	if v.From.IsZero() && !v.Until.IsZero() && tx.client != nil {
		tx.client.logger.Warn("end valid time without start valid time is dropped",
			zap.String("op", string(kind)),
			zap.Time("until", v.Until))
	}
	return v
}

// Put writes doc, optionally within a valid time range.
func (tx *Transaction) Put(doc Document, valid ...Valid) *Transaction {
	tx.add(TxOp{Kind: TxPut, Document: doc, Valid: tx.valid(TxPut, valid)})
	return tx
}

// PutAll writes every document of docs in order, all within the same valid time range.
func (tx *Transaction) PutAll(docs []Document, valid ...Valid) *Transaction {
	v := tx.valid(TxPut, valid)
	for _, doc := range docs {
		tx.add(TxOp{Kind: TxPut, Document: doc, Valid: v})
	}
	return tx
}

// Delete deletes the entity id, optionally within a valid time range.
func (tx *Transaction) Delete(id any, valid ...Valid) *Transaction {
	tx.add(TxOp{Kind: TxDelete, ID: id, Valid: tx.valid(TxDelete, valid)})
	return tx
}

// DeleteAll deletes every entity of ids in order, all within the same valid time range.
func (tx *Transaction) DeleteAll(ids []any, valid ...Valid) *Transaction {
	v := tx.valid(TxDelete, valid)
	for _, id := range ids {
		tx.add(TxOp{Kind: TxDelete, ID: id, Valid: v})
	}
	return tx
}

// Evict removes the entity id and its whole history.
func (tx *Transaction) Evict(id any) *Transaction {
	tx.add(TxOp{Kind: TxEvict, ID: id})
	return tx
}

func (tx *Transaction) EvictAll(ids []any) *Transaction {
	for _, id := range ids {
		tx.add(TxOp{Kind: TxEvict, ID: id})
	}
	return tx
}

// Match guards the rest of the transaction: it only applies if the entity id currently
// holds expected, or is absent when expected is nil. The check happens at validTime
// when one is given.
func (tx *Transaction) Match(id any, expected Document, validTime ...time.Time) *Transaction {
	op := TxOp{Kind: TxMatch, ID: id, Expected: expected}
	if len(validTime) > 0 {
		op.Valid.From = validTime[len(validTime)-1]
	}
	tx.add(op)
	return tx
}

// Ops returns a copy of the operations added so far.
func (tx *Transaction) Ops() []TxOp {
	return append([]TxOp(nil), tx.ops...)
}

// Payload returns the submit-tx body of the transaction.
func (tx *Transaction) Payload() TxPayload {
	ops := tx.ops
	if ops == nil {
		ops = []TxOp{}
	}
	return TxPayload{TxOps: ops}
}

// Err returns the first error recorded while adding operations.
func (tx *Transaction) Err() error {
	return tx.err
}

// Submit sends the transaction to the node unless it was sent before, in which case the
// outcome of that first submission is returned. An empty transaction is not sent and
// yields a nil receipt.
func (tx *Transaction) Submit(ctx context.Context) (*TxReceipt, error) {
	if tx.client == nil {
		return nil, errors.New("xtdb: transaction is not bound to a client")
	}
	return tx.submitVia(ctx, tx.client)
}

func (tx *Transaction) submitVia(ctx context.Context, c *Client) (*TxReceipt, error) {
	if tx.submitted {
		return tx.receipt, tx.submitErr
	}
	if tx.err != nil {
		return nil, tx.err
	}
	if len(tx.ops) == 0 {
		return nil, nil
	}

	tx.submitted = true
	tx.receipt, tx.submitErr = c.submitTx(ctx, tx.Payload())
	return tx.receipt, tx.submitErr
}
