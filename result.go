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
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// ToArrowRecord converts query result tuples into a single Arrow record batch with one
// nullable column per name in columns.
//
// Column types are inferred from the values: a column of integers becomes int64, of
// numbers float64, of booleans bool, and anything else, including nested maps and
// vectors, a string column holding the value as JSON.
func ToArrowRecord(mem memory.Allocator, columns []string, tuples []Tuple) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	fields := make([]arrow.Field, len(columns))
	for i, name := range columns {
		fields[i] = arrow.Field{Name: name, Type: inferColumnType(tuples, i), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, tuple := range tuples {
		if len(tuple) != len(columns) {
			return nil, fmt.Errorf("expected %d values in tuple, got %d", len(columns), len(tuple))
		}
		for i, v := range tuple {
			if err := appendValue(b.Field(i), v); err != nil {
				return nil, fmt.Errorf("column %s: %w", columns[i], err)
			}
		}
	}
	return b.NewRecord(), nil
}

func inferColumnType(tuples []Tuple, col int) arrow.DataType {
	var typ arrow.DataType
	for _, tuple := range tuples {
		if col >= len(tuple) || tuple[col] == nil {
			continue
		}

		var t arrow.DataType
		switch v := tuple[col].(type) {
		case bool:
			t = arrow.FixedWidthTypes.Boolean
		case json.Number:
			if _, err := v.Int64(); err == nil {
				t = arrow.PrimitiveTypes.Int64
			} else {
				t = arrow.PrimitiveTypes.Float64
			}
		case int, int32, int64:
			t = arrow.PrimitiveTypes.Int64
		case float32, float64:
			t = arrow.PrimitiveTypes.Float64
		default:
			return arrow.BinaryTypes.String
		}

		switch {
		case typ == nil:
			typ = t
		case arrow.TypeEqual(typ, t):
		case isNumeric(typ) && isNumeric(t):
			typ = arrow.PrimitiveTypes.Float64
		default:
			return arrow.BinaryTypes.String
		}
	}
	if typ == nil {
		return arrow.BinaryTypes.String
	}
	return typ
}

func isNumeric(t arrow.DataType) bool {
	return t.ID() == arrow.INT64 || t.ID() == arrow.FLOAT64
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch b := b.(type) {
	case *array.BooleanBuilder:
		b.Append(v.(bool))
	case *array.Int64Builder:
		switch v := v.(type) {
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return err
			}
			b.Append(n)
		case int:
			b.Append(int64(v))
		case int32:
			b.Append(int64(v))
		case int64:
			b.Append(v)
		}
	case *array.Float64Builder:
		switch v := v.(type) {
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return err
			}
			b.Append(f)
		case int:
			b.Append(float64(v))
		case int32:
			b.Append(float64(v))
		case int64:
			b.Append(float64(v))
		case float32:
			b.Append(float64(v))
		case float64:
			b.Append(v)
		}
	case *array.StringBuilder:
		switch v := v.(type) {
		case string:
			b.Append(v)
		case json.Number:
			b.Append(v.String())
		default:
			text, err := json.Marshal(v)
			if err != nil {
				return err
			}
			b.Append(string(text))
		}
	default:
		return fmt.Errorf("unsupported arrow builder %T", b)
	}
	return nil
}

// ArrowRecord evaluates the query and returns its remaining tuples as an Arrow record
// batch whose columns are named after the find terms.
func (q *Query) ArrowRecord(ctx context.Context, mem memory.Allocator) (arrow.Record, error) {
	tuples, err := q.Values(ctx)
	if err != nil {
		return nil, err
	}
	return ToArrowRecord(mem, q.Columns(), tuples)
}

// ArrowIPC evaluates the query and returns its remaining tuples as an Arrow IPC stream
// holding a single record batch. Read it back with DecodeArrowIPC.
func (q *Query) ArrowIPC(ctx context.Context, mem memory.Allocator) ([]byte, error) {
	record, err := q.ArrowRecord(ctx, mem)
	if err != nil {
		return nil, err
	}
	defer record.Release()
	return EncodeArrowIPC([]arrow.Record{record})
}
