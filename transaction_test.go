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
	"encoding/json"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	xtdb "github.com/pyxtdb/xtdb-sdk/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

func payloadJSON(t *testing.T, tx *xtdb.Transaction) string {
	b, err := json.Marshal(tx.Payload())
	require.NoError(t, err)
	return string(b)
}

func TestTxOpEncoding(t *testing.T) {
	doc := xtdb.Document{"xt/id": "billy"}
	tx := xtdb.NewTransaction(nil).
		Put(doc).
		Put(doc, xtdb.Valid{From: t0}).
		Put(doc, xtdb.Valid{From: t0, Until: t1}).
		Put(doc, xtdb.Valid{Until: t1}).
		Delete("billy", xtdb.Valid{From: t0, Until: t1}).
		Delete("billy", xtdb.Valid{Until: t1}).
		Evict("billy").
		Match("billy", nil).
		Match("billy", doc, t0)
	require.NoError(t, tx.Err())
	require.Len(t, tx.Ops(), 9)

	require.JSONEq(t, `{"tx-ops": [
		["put", {"xt/id": "billy"}],
		["put", {"xt/id": "billy"}, "2024-01-01T00:00:00Z"],
		["put", {"xt/id": "billy"}, "2024-01-01T00:00:00Z", "2025-01-01T00:00:00Z"],
		["put", {"xt/id": "billy"}],
		["delete", "billy", "2024-01-01T00:00:00Z", "2025-01-01T00:00:00Z"],
		["delete", "billy"],
		["evict", "billy"],
		["match", "billy", null],
		["match", "billy", {"xt/id": "billy"}, "2024-01-01T00:00:00Z"]
	]}`, payloadJSON(t, tx))
}

func TestTxExpansion(t *testing.T) {
	docs := make([]xtdb.Document, 0, 5)
	ids := make([]any, 0, 5)
	for i := 0; i < 5; i++ {
		id := gofakeit.UUID()
		docs = append(docs, xtdb.Document{"xt/id": id, "name": gofakeit.Name(), "email": gofakeit.Email()})
		ids = append(ids, id)
	}

	tx := xtdb.NewTransaction(nil).
		PutAll(docs, xtdb.Valid{From: t0, Until: t1}).
		DeleteAll(ids, xtdb.Valid{Until: t1}).
		EvictAll(ids)
	ops := tx.Ops()
	require.Len(t, ops, 15)
	for i := range docs {
		require.Equal(t, xtdb.TxPut, ops[i].Kind)
		require.Equal(t, docs[i], ops[i].Document)
		require.Equal(t, xtdb.Valid{From: t0, Until: t1}, ops[i].Valid)

		require.Equal(t, xtdb.TxDelete, ops[5+i].Kind)
		require.Equal(t, ids[i], ops[5+i].ID)
		require.Equal(t, xtdb.TxEvict, ops[10+i].Kind)
		require.Equal(t, ids[i], ops[10+i].ID)
	}

	var payload struct {
		TxOps [][]any `json:"tx-ops"`
	}
	require.NoError(t, json.Unmarshal([]byte(payloadJSON(t, tx)), &payload))
	require.Len(t, payload.TxOps[0], 4)
	require.Len(t, payload.TxOps[5], 2)
}

func TestTxEmptyPayload(t *testing.T) {
	require.JSONEq(t, `{"tx-ops": []}`, payloadJSON(t, xtdb.NewTransaction(nil)))
}

func TestTxDroppedUntilIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n := newFakeNode(t)
	c := n.client(t, func(config *xtdb.Config) {
		config.Logger = zap.New(core)
	})

	c.Put(xtdb.Document{"xt/id": "billy"}, xtdb.Valid{From: t0, Until: t1})
	require.Equal(t, 0, logs.Len())

	c.Delete("billy", xtdb.Valid{Until: t1})
	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, "delete", entries[0].ContextMap()["op"])
}

func TestTxSubmitOnce(t *testing.T) {
	n := newFakeNode(t)
	c := n.client(t)
	ctx := context.Background()

	empty := c.Tx()
	receipt, err := empty.Submit(ctx)
	require.NoError(t, err)
	require.Nil(t, receipt)
	require.Equal(t, 0, n.count("POST", "/_xtdb/submit-tx"))

	tx := c.Put(xtdb.Document{"xt/id": "billy", "name": "Billy"})
	first, err := tx.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, int64(0), first.TxID)
	require.Equal(t, t0, first.TxTime)
	require.Equal(t, "application/json; charset=utf-8", n.last().Header.Get("Content-Type"))

	second, err := tx.Submit(ctx)
	require.NoError(t, err)
	require.Same(t, first, second)
	third, err := c.SubmitTx(ctx, tx)
	require.NoError(t, err)
	require.Same(t, first, third)
	require.Equal(t, 1, n.count("POST", "/_xtdb/submit-tx"))

	tx.Evict("billy")
	require.ErrorIs(t, tx.Err(), xtdb.ErrAlreadySubmitted)
	require.Len(t, tx.Ops(), 1)
	again, err := tx.Submit(ctx)
	require.NoError(t, err)
	require.Same(t, first, again)
}

func TestTxSubmitErrorIsCached(t *testing.T) {
	c := xtdb.NewClient(&xtdb.Config{Endpoint: newFakeNode(t).srv.URL + "/missing"})
	defer c.Close()
	ctx := context.Background()

	tx := c.Evict("billy")
	_, err := tx.Submit(ctx)
	require.ErrorIs(t, err, xtdb.ErrClientError)
	_, again := tx.Submit(ctx)
	require.Same(t, err, again)
}

func TestTxUnbound(t *testing.T) {
	_, err := xtdb.NewTransaction(nil).Evict("billy").Submit(context.Background())
	require.Error(t, err)
}
