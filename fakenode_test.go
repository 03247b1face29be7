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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	xtdb "github.com/pyxtdb/xtdb-sdk/go"
	"github.com/stretchr/testify/require"
	"olympos.io/encoding/edn"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   string
}

// fakeNode is an in-memory stand-in for the XTDB HTTP API. Its query engine only
// understands a single find variable and conjunctive [?e attr value?] clauses.
type fakeNode struct {
	t   testing.TB
	srv *httptest.Server

	mu       sync.Mutex
	docs     map[string]map[string]any
	history  map[string][]map[string]any
	txID     int64
	requests []recordedRequest

	// queryFailure, if set, is returned by the query endpoint instead of a result.
	queryFailure map[string]any
}

func newFakeNode(t testing.TB) *fakeNode {
	n := &fakeNode{
		t:       t,
		docs:    make(map[string]map[string]any),
		history: make(map[string][]map[string]any),
		txID:    -1,
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNode) client(t testing.TB, opts ...func(*xtdb.Config)) *xtdb.Client {
	config := &xtdb.Config{Endpoint: n.srv.URL + "/"}
	for _, opt := range opts {
		opt(config)
	}
	c := xtdb.NewClient(config)
	t.Cleanup(c.Close)
	return c
}

func (n *fakeNode) count(method string, path string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, r := range n.requests {
		if r.Method == method && r.Path == path {
			count++
		}
	}
	return count
}

// lastParam returns the value of param in the last request sent to path.
func (n *fakeNode) lastParam(path string, param string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.requests) - 1; i >= 0; i-- {
		if n.requests[i].Path == path {
			return n.requests[i].Query.Get(param)
		}
	}
	return ""
}

func (n *fakeNode) last() recordedRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(n.t, n.requests)
	return n.requests[len(n.requests)-1]
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   string(body),
	})

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/_xtdb/submit-tx":
		n.submitTx(w, body)
	case r.Method == http.MethodPost && r.URL.Path == "/_xtdb/query":
		n.query(w, body)
	case r.Method == http.MethodGet && r.URL.Path == "/_xtdb/status":
		writeJSON(w, http.StatusOK, map[string]any{"version": "1.24.4", "kvStore": "xtdb.mem_kv.MemKv"})
	case r.Method == http.MethodGet && r.URL.Path == "/_xtdb/entity":
		n.entity(w, r.URL.Query())
	case r.Method == http.MethodGet && r.URL.Path == "/_xtdb/tx-committed":
		id, err := strconv.ParseInt(r.URL.Query().Get("tx-id"), 10, 64)
		if err != nil || id > n.txID {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no such transaction"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tx-committed?": true})
	case r.Method == http.MethodGet && (r.URL.Path == "/_xtdb/latest-completed-tx" || r.URL.Path == "/_xtdb/await-tx"):
		if n.txID < 0 {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeJSON(w, http.StatusOK, n.receipt())
	case r.Method == http.MethodGet && r.URL.Path == "/_xtdb/boom":
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "boom"})
	default:
		http.NotFound(w, r)
	}
}

func (n *fakeNode) receipt() map[string]any {
	return map[string]any{
		"xtdb.api/tx-id":   n.txID,
		"xtdb.api/tx-time": time.Date(2024, 1, 1, 0, 0, int(n.txID), 0, time.UTC).Format(time.RFC3339),
	}
}

func (n *fakeNode) submitTx(w http.ResponseWriter, body []byte) {
	var payload struct {
		TxOps [][]any `json:"tx-ops"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	docs := make(map[string]map[string]any, len(n.docs))
	for k, v := range n.docs {
		docs[k] = v
	}
	aborted := false
	for _, op := range payload.TxOps {
		switch op[0] {
		case "put":
			doc := op[1].(map[string]any)
			docs[entityKey(doc["xt/id"])] = doc
		case "delete":
			delete(docs, entityKey(op[1]))
		case "evict":
			delete(docs, entityKey(op[1]))
		case "match":
			current, ok := docs[entityKey(op[1])]
			if op[2] == nil {
				aborted = aborted || ok
			} else {
				aborted = aborted || !ok || canonical(current) != canonical(op[2])
			}
		}
	}

	n.txID++
	if !aborted {
		for k, doc := range docs {
			if _, ok := n.docs[k]; !ok || canonical(n.docs[k]) != canonical(doc) {
				n.history[k] = append(n.history[k], doc)
			}
		}
		n.docs = docs
	}
	writeJSON(w, http.StatusAccepted, n.receipt())
}

func (n *fakeNode) query(w http.ResponseWriter, body []byte) {
	if n.queryFailure != nil {
		writeJSON(w, http.StatusOK, n.queryFailure)
		return
	}

	var req map[any]any
	if err := edn.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	q, _ := req[edn.Keyword("query")].(map[any]any)
	where, _ := q[edn.Keyword("where")].([]any)

	var tuples [][]any
	for _, doc := range n.docs {
		if matches(doc, where) {
			tuples = append(tuples, []any{doc["xt/id"]})
		}
	}
	sort.Slice(tuples, func(i, j int) bool {
		return entityKey(tuples[i][0]) < entityKey(tuples[j][0])
	})
	if tuples == nil {
		tuples = [][]any{}
	}
	writeJSON(w, http.StatusOK, tuples)
}

func matches(doc map[string]any, where []any) bool {
	for _, clause := range where {
		terms, _ := clause.([]any)
		if len(terms) < 2 {
			return false
		}
		attr, _ := terms[1].(edn.Keyword)
		v, ok := doc[string(attr)]
		if !ok {
			return false
		}
		if len(terms) > 2 {
			if _, isVar := terms[2].(edn.Symbol); !isVar && fmt.Sprint(v) != fmt.Sprint(terms[2]) {
				return false
			}
		}
	}
	return true
}

func (n *fakeNode) entity(w http.ResponseWriter, query url.Values) {
	key := query.Get("eid")
	if query.Get("history") == "true" {
		entries := make([]map[string]any, 0)
		for i, doc := range n.history[key] {
			entries = append(entries, map[string]any{"xtdb.api/tx-id": i, "xtdb.api/doc": doc})
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	doc, ok := n.docs[key]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "entity not found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func entityKey(id any) string {
	return fmt.Sprint(id)
}

func canonical(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
