package xtdb

import (
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"olympos.io/encoding/edn"
)

// Symbol is an EDN symbol such as ?e or a rule name.
type Symbol = edn.Symbol

// Keyword is an EDN keyword, written without the leading colon.
type Keyword = edn.Keyword

// Sym returns the EDN symbol with the given name.
func Sym(name string) Symbol {
	return Symbol(name)
}

// Kw returns the EDN keyword with the given name, e.g. Kw("xt/id") renders as :xt/id.
func Kw(name string) Keyword {
	return Keyword(strings.TrimPrefix(name, ":"))
}

// List renders as an EDN list. Rule heads and predicate calls are lists:
//
//	xtdb.List{xtdb.Sym(">"), xtdb.Sym("?age"), 21}
type List []any

func (l List) MarshalEDN() ([]byte, error) {
	if len(l) == 0 {
		return []byte("()"), nil
	}
	b, err := edn.Marshal([]any(l))
	if err != nil {
		return nil, err
	}
	b[0], b[len(b)-1] = '(', ')'
	return b, nil
}

// UUID renders id as an EDN #uuid literal, usable as an entity identifier in queries.
func UUID(id uuid.UUID) edn.Tag {
	return edn.Tag{Tagname: "uuid", Value: id.String()}
}

// readLiteral checks that s holds exactly one EDN value and returns it verbatim.
func readLiteral(s string) (edn.RawMessage, error) {
	dec := edn.NewDecoder(strings.NewReader(s))

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("no value")
		}
		return nil, &MalformedLiteralError{Literal: s, Err: err}
	}
	var rest any
	if err := dec.Decode(&rest); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("trailing data after value")
		}
		return nil, &MalformedLiteralError{Literal: s, Err: err}
	}
	return edn.RawMessage(s), nil
}

// readFragment parses a fragment of whitespace separated terms as a single vector.
func readFragment(fragment string) (edn.RawMessage, error) {
	lit, err := readLiteral("[" + fragment + "]")
	if err != nil {
		var mle *MalformedLiteralError
		if errors.As(err, &mle) {
			mle.Literal = fragment
		}
		return nil, err
	}
	return lit, nil
}

func marshalEDN(v any) (string, error) {
	b, err := edn.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func prettyEDN(v any) (string, error) {
	b, err := edn.MarshalPPrint(v, nil)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
