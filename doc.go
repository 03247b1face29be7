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

/*
Package xtdb provides a lightweight client for interacting with an XTDB node over its
HTTP API.

# Client

Use NewClient to create a client struct. This is the major entrance to construct queries
and transactions:

	client := xtdb.NewClient(&xtdb.Config{
		Endpoint: "http://<xtdb-host>:<xtdb-port:-3000>",
	})
	defer client.Close()

# Write Documents

Batch operations in a Transaction and submit it. A transaction is sent at most once;
submitting it again returns the first receipt:

	receipt, err := client.
		Match("ivan", nil).
		Put(xtdb.Document{"xt/id": "ivan", "name": "Ivan", "age": 32}).
		Submit(ctx)
	if err != nil {
		return err
	}
	_, err = client.AwaitTx(ctx, xtdb.Params{"tx-id": receipt.TxID})

# Query Documents

Build a Datalog query clause by clause, either from Go values or from EDN fragments,
then iterate over its result tuples:

	q := client.Find(xtdb.Sym("?name")).
		Where(xtdb.Sym("?e"), xtdb.Kw("name"), xtdb.Sym("?name")).
		WhereEDN("?e :age ?age").
		WhereEDN("(> ?age 21)").
		OrderByEDN("?name :asc").
		Limit(10)
	for q.Next(ctx) {
		fmt.Println(q.Tuple()...)
	}
	if err := q.Err(); err != nil {
		return err
	}
	if msg := q.RemoteError(); msg != "" {
		return errors.New(msg)
	}

A query the node rejects does not fail iteration: the error payload is kept in
RemoteError and the iteration yields no tuple.
*/
package xtdb
