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
	"fmt"
	"strings"
	"time"

	"olympos.io/encoding/edn"
)

type queryState int

const (
	stateBuilding queryState = iota
	stateFrozen
)

// Tuple is one row of a query result, holding one value per find term.
//
// Numbers are decoded as json.Number so that entity ids and counts keep their precision.
type Tuple []any

// QueryDocument is the EDN map sent as the :query of a query request. Its fields are
// written in declaration order and optional fields are omitted when unset.
type QueryDocument struct {
	Find    any   `edn:"find"`
	Where   []any `edn:"where"`
	In      any   `edn:"in,omitempty"`
	Rules   []any `edn:"rules,omitempty"`
	OrderBy []any `edn:"order-by,omitempty"`
	Limit   int   `edn:"limit,omitempty"`
	Offset  int   `edn:"offset,omitempty"`
	Timeout int64 `edn:"timeout,omitempty"`
}

// Query accumulates the clauses of a Datalog query and evaluates it once.
//
// Clause methods come in two flavours: structured ones take Go values (use Sym, Kw and
// List for symbols, keywords and lists), the EDN ones take a raw fragment such as
// "?e :name ?name" which is parsed before it is stored. Every method returns the query
// for chaining; the first failure is kept and reported by Err and by evaluation.
//
// Once evaluated, a query is frozen and rejects further mutation with ErrAlreadySubmitted.
// A Query is not safe for concurrent use.
type Query struct {
	client *Client
	state  queryState
	err    error

	find    any
	in      any
	where   []any
	rules   []any
	orderBy []any
	limit   int
	offset  int
	timeout time.Duration

	validTime *time.Time
	txTime    *time.Time
	txID      *int64
	inArgs    any

	tuples      []Tuple
	current     Tuple
	evalErr     error
	remoteError string
}

// NewQuery creates an empty query evaluated through client.
func NewQuery(client *Client) *Query {
	return &Query{client: client}
}

// mutable reports whether the query still accepts changes, recording why not otherwise.
func (q *Query) mutable() bool {
	if q.err != nil {
		return false
	}
	if q.state != stateBuilding {
		q.err = ErrAlreadySubmitted
		return false
	}
	q.evalErr = nil
	return true
}

func (q *Query) terms(clause string, terms []any) ([]any, bool) {
	if len(terms) == 0 {
		q.err = fmt.Errorf("%w: missing %s arguments", ErrMalformedQuery, clause)
		return nil, false
	}
	return terms, true
}

// fragment parses fragment as the terms of clause. A clause fragment must hold at
// least one term; an empty clause name accepts an empty fragment.
func (q *Query) fragment(clause, fragment string) (edn.RawMessage, bool) {
	lit, err := readFragment(fragment)
	if err != nil {
		q.err = err
		return nil, false
	}
	if clause == "" {
		return lit, true
	}
	var terms []edn.RawMessage
	if err := edn.Unmarshal(lit, &terms); err != nil {
		q.err = &MalformedLiteralError{Literal: fragment, Err: err}
		return nil, false
	}
	if len(terms) == 0 {
		q.err = fmt.Errorf("%w: missing %s arguments", ErrMalformedQuery, clause)
		return nil, false
	}
	return lit, true
}

// Find sets the projection of the query, replacing any previous one.
func (q *Query) Find(terms ...any) *Query {
	if !q.mutable() {
		return q
	}
	if terms, ok := q.terms("find", terms); ok {
		q.find = terms
	}
	return q
}

// FindEDN sets the projection from a fragment such as "?name (count ?e)".
func (q *Query) FindEDN(fragment string) *Query {
	if !q.mutable() {
		return q
	}
	if lit, ok := q.fragment("find", fragment); ok {
		q.find = lit
	}
	return q
}

// In sets the bindings of the query inputs, replacing any previous ones.
func (q *Query) In(terms ...any) *Query {
	if !q.mutable() {
		return q
	}
	if terms, ok := q.terms("in", terms); ok {
		q.in = terms
	}
	return q
}

// InEDN sets the input bindings from a fragment such as "?name [?tag ...]".
func (q *Query) InEDN(fragment string) *Query {
	if !q.mutable() {
		return q
	}
	if lit, ok := q.fragment("in", fragment); ok {
		q.in = lit
	}
	return q
}

// Where appends one clause made of terms, e.g. Where(Sym("?e"), Kw("name"), "Ivan").
func (q *Query) Where(terms ...any) *Query {
	if !q.mutable() {
		return q
	}
	if terms, ok := q.terms("where", terms); ok {
		q.where = append(q.where, terms)
	}
	return q
}

// WhereEDN appends one clause from a fragment such as "?e :name ?name".
func (q *Query) WhereEDN(fragment string) *Query {
	if !q.mutable() {
		return q
	}
	if lit, ok := q.fragment("where", fragment); ok {
		q.where = append(q.where, lit)
	}
	return q
}

// Rules appends one rule, a head list followed by its clauses.
func (q *Query) Rules(terms ...any) *Query {
	if !q.mutable() {
		return q
	}
	if terms, ok := q.terms("rules", terms); ok {
		q.rules = append(q.rules, terms)
	}
	return q
}

// RulesEDN appends one rule from a fragment such as "(adult? ?p) [?p :age ?a] [(>= ?a 18)]".
func (q *Query) RulesEDN(fragment string) *Query {
	if !q.mutable() {
		return q
	}
	if lit, ok := q.fragment("rules", fragment); ok {
		q.rules = append(q.rules, lit)
	}
	return q
}

// OrderBy appends one ordering term, e.g. OrderBy(Sym("?age"), Kw("desc")).
func (q *Query) OrderBy(terms ...any) *Query {
	if !q.mutable() {
		return q
	}
	if terms, ok := q.terms("order-by", terms); ok {
		q.orderBy = append(q.orderBy, terms)
	}
	return q
}

// OrderByEDN appends one ordering term from a fragment such as "?age :desc".
func (q *Query) OrderByEDN(fragment string) *Query {
	if !q.mutable() {
		return q
	}
	if lit, ok := q.fragment("order-by", fragment); ok {
		q.orderBy = append(q.orderBy, lit)
	}
	return q
}

func (q *Query) Limit(n int) *Query {
	if !q.mutable() {
		return q
	}
	if n <= 0 {
		q.err = fmt.Errorf("%w: limit must be positive, got %d", ErrMalformedQuery, n)
		return q
	}
	q.limit = n
	return q
}

func (q *Query) Offset(n int) *Query {
	if !q.mutable() {
		return q
	}
	if n <= 0 {
		q.err = fmt.Errorf("%w: offset must be positive, got %d", ErrMalformedQuery, n)
		return q
	}
	q.offset = n
	return q
}

// Timeout bounds the evaluation time on the node. It is sent in whole milliseconds,
// so d must be at least one millisecond.
func (q *Query) Timeout(d time.Duration) *Query {
	if !q.mutable() {
		return q
	}
	if d < time.Millisecond {
		q.err = fmt.Errorf("%w: timeout must be at least 1ms, got %s", ErrMalformedQuery, d)
		return q
	}
	q.timeout = d
	return q
}

// AsOf evaluates the query against the database as of the given valid time.
func (q *Query) AsOf(validTime time.Time) *Query {
	if q.mutable() {
		q.validTime = &validTime
	}
	return q
}

// AsOfTx evaluates the query against the database as of the given transaction time.
func (q *Query) AsOfTx(txTime time.Time) *Query {
	if q.mutable() {
		q.txTime = &txTime
	}
	return q
}

// AtTxID evaluates the query against the database as of the given transaction.
func (q *Query) AtTxID(txID int64) *Query {
	if q.mutable() {
		q.txID = &txID
	}
	return q
}

// InArgs supplies the values bound by the :in clause, one argument per binding.
func (q *Query) InArgs(args ...any) *Query {
	if q.mutable() {
		q.inArgs = args
	}
	return q
}

// InArgsEDN supplies the :in arguments from a fragment such as `"Ivan" #{1 2}`.
func (q *Query) InArgsEDN(fragment string) *Query {
	if !q.mutable() {
		return q
	}
	if lit, ok := q.fragment("", fragment); ok {
		q.inArgs = lit
	}
	return q
}

// Err returns the first error recorded while building or evaluating the query.
// A change rejected after evaluation is reported here but does not stop iteration.
func (q *Query) Err() error {
	if q.err != nil {
		return q.err
	}
	return q.evalErr
}

// RemoteError returns the error payload the node sent back instead of a result,
// rendered as indented JSON, or "" if evaluation succeeded.
func (q *Query) RemoteError() string {
	return q.remoteError
}

// document renders the accumulated clauses without checking them.
func (q *Query) document() *QueryDocument {
	doc := &QueryDocument{
		Find:    q.find,
		Where:   q.where,
		In:      q.in,
		Rules:   q.rules,
		OrderBy: q.orderBy,
		Limit:   q.limit,
		Offset:  q.offset,
		Timeout: q.timeout.Milliseconds(),
	}
	if doc.Where == nil {
		doc.Where = []any{}
	}
	return doc
}

// Document returns the query map to be sent to the node. It fails with ErrMalformedQuery
// if the query has no find terms or no where clause.
func (q *Query) Document() (*QueryDocument, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.find == nil {
		return nil, fmt.Errorf("%w: query has no find clause", ErrMalformedQuery)
	}
	if len(q.where) == 0 {
		return nil, fmt.Errorf("%w: query has no where clause", ErrMalformedQuery)
	}
	return q.document(), nil
}

// String renders the query map as pretty printed EDN.
func (q *Query) String() string {
	s, err := prettyEDN(q.document())
	if err != nil {
		return fmt.Sprintf("<unprintable query: %v>", err)
	}
	return s
}

// Columns returns the EDN text of each find term, in order.
func (q *Query) Columns() []string {
	switch find := q.find.(type) {
	case []any:
		columns := make([]string, 0, len(find))
		for _, term := range find {
			s, err := marshalEDN(term)
			if err != nil {
				s = fmt.Sprint(term)
			}
			columns = append(columns, s)
		}
		return columns
	case edn.RawMessage:
		var terms []edn.RawMessage
		if err := edn.Unmarshal(find, &terms); err != nil {
			return nil
		}
		columns := make([]string, 0, len(terms))
		for _, term := range terms {
			columns = append(columns, strings.TrimSpace(string(term)))
		}
		return columns
	default:
		return nil
	}
}

// Next advances to the next result tuple, evaluating the query on the first call.
// It returns false when the results are exhausted or evaluation failed; check Err and
// RemoteError afterwards.
func (q *Query) Next(ctx context.Context) bool {
	if q.state == stateBuilding {
		if q.err != nil {
			return false
		}
		tuples, err := q.evaluate(ctx)
		if err != nil {
			q.evalErr = err
			return false
		}
		q.evalErr = nil
		q.tuples = tuples
		q.state = stateFrozen
	}
	if len(q.tuples) == 0 {
		q.current = nil
		return false
	}
	q.current, q.tuples = q.tuples[0], q.tuples[1:]
	return true
}

// Tuple returns the tuple Next advanced to.
func (q *Query) Tuple() Tuple {
	return q.current
}

// Values evaluates the query if needed and drains the remaining tuples.
func (q *Query) Values(ctx context.Context) ([]Tuple, error) {
	var out []Tuple
	for q.Next(ctx) {
		out = append(out, q.Tuple())
	}
	if q.state == stateBuilding {
		return nil, q.Err()
	}
	return out, nil
}

func (q *Query) evaluate(ctx context.Context) ([]Tuple, error) {
	doc, err := q.Document()
	if err != nil {
		return nil, err
	}
	if q.client == nil {
		return nil, errors.New("xtdb: query is not bound to a client")
	}

	params := Params{}
	if q.validTime != nil {
		params["valid-time"] = *q.validTime
	}
	if q.txTime != nil {
		params["tx-time"] = *q.txTime
	}
	if q.txID != nil {
		params["tx-id"] = *q.txID
	}

	result, err := q.client.RunQuery(ctx, QueryRequest{
		Query:  doc,
		InArgs: q.inArgs,
		Params: params,
	})
	if err != nil {
		return nil, err
	}
	if result.Failure != nil {
		b, err := json.MarshalIndent(result.Failure, "", "    ")
		if err != nil {
			return nil, err
		}
		q.remoteError = string(b)
		return []Tuple{}, nil
	}
	return result.Tuples, nil
}
