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
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ParamEncoding selects how a parameter value is written into the query string.
type ParamEncoding int

const (
	// PlainParam values are passed through as they are.
	PlainParam ParamEncoding = iota
	// EDNParam values are serialized as EDN, for parameters such as eid-edn.
	EDNParam
	// JSONParam values are serialized as JSON, for parameters such as eid-json.
	JSONParam
)

func (e ParamEncoding) String() string {
	switch e {
	case PlainParam:
		return "plain"
	case EDNParam:
		return "edn"
	case JSONParam:
		return "json"
	default:
		return "ParamEncoding(" + strconv.Itoa(int(e)) + ")"
	}
}

// ParamSpec declares a parameter an action recognizes and the encoding the node expects.
type ParamSpec struct {
	Name     string
	Encoding ParamEncoding
}

// Plain declares a parameter whose value is sent as is.
func Plain(name string) ParamSpec { return ParamSpec{Name: name, Encoding: PlainParam} }

// EDN declares a parameter whose value is sent EDN encoded.
func EDN(name string) ParamSpec { return ParamSpec{Name: name, Encoding: EDNParam} }

// JSON declares a parameter whose value is sent JSON encoded.
func JSON(name string) ParamSpec { return ParamSpec{Name: name, Encoding: JSONParam} }

// Params holds the arguments of a call, keyed either by wire name ("tx-id") or by an
// identifier-friendly spelling of it ("tx_id"; a trailing Q stands for "?", so
// "with_opsQ" is "with-ops?").
type Params map[string]any

// ParamSet maps wire parameter names to encoded values.
type ParamSet map[string]any

// WireName translates an argument name to the wire spelling of the parameter.
func WireName(name string) string {
	name = strings.ReplaceAll(name, "_", "-")
	if base, ok := strings.CutSuffix(name, "Q"); ok {
		name = base + "?"
	}
	return name
}

// EncodeParams validates args against the declared parameters and encodes each value.
//
// Nil values are skipped. An argument that does not name a declared parameter fails with
// an *UnknownParameterError.
func EncodeParams(known []ParamSpec, args Params) (ParamSet, error) {
	params := make(ParamSet, len(args))
	for name, value := range args {
		wire := WireName(name)
		spec, ok := lookupParam(known, wire)
		if !ok {
			return nil, &UnknownParameterError{Name: wire}
		}
		if value == nil {
			continue
		}

		switch spec.Encoding {
		case EDNParam:
			s, err := prettyEDN(value)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", wire, err)
			}
			params[wire] = s
		case JSONParam:
			s, err := marshalJSONParam(value)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", wire, err)
			}
			params[wire] = s
		default:
			params[wire] = value
		}
	}
	return params, nil
}

// marshalJSONParam writes v as single-line JSON with a space after each ',' and ':'
// separator, e.g. {"a": 1, "b": [1, 2]}.
func marshalJSONParam(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	compact := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	var sb strings.Builder
	sb.Grow(len(compact) + len(compact)/4)
	inString, escaped := false, false
	for _, c := range compact {
		sb.WriteByte(c)
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ',' || c == ':'):
			sb.WriteByte(' ')
		}
	}
	return sb.String(), nil
}

func lookupParam(known []ParamSpec, name string) (ParamSpec, bool) {
	for _, spec := range known {
		if spec.Name == name {
			return spec, true
		}
	}
	return ParamSpec{}, false
}

// Values renders the set as URL query parameters.
func (p ParamSet) Values() url.Values {
	values := make(url.Values, len(p))
	for name, value := range p {
		values.Set(name, formatParam(value))
	}
	return values
}

func formatParam(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return strconv.FormatInt(v.Milliseconds(), 10)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
