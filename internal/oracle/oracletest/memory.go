// Package oracletest provides an in-memory oracle that evaluates compiled fragments against
// fixture documents.
package oracletest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spigell/talent-screener/internal/condition"
)

// Doc is a fixture document. Values may be strings, numbers or slices of them.
type Doc map[string]any

// Memory answers counts from fixture documents keyed by index and id.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]map[string]Doc
	err   error
	calls int
}

func NewMemory() *Memory {
	return &Memory{docs: map[string]map[string]Doc{}}
}

// Put stores doc under index/id.
func (m *Memory) Put(index, id string, doc Doc) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[index] == nil {
		m.docs[index] = map[string]Doc{}
	}
	stored := Doc{condition.FieldID: id}
	for k, v := range doc {
		stored[k] = v
	}
	m.docs[index][id] = stored
	return m
}

// FailWith makes every following Count return err.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Memory) Count(ctx context.Context, index string, query condition.Fragment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int64
	for _, doc := range m.docs[index] {
		ok, err := Match(query, doc)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Match evaluates a query fragment against doc. It understands the clauses conditions
// compile to.
func Match(query any, doc Doc) (bool, error) {
	q, ok := asMap(query)
	if !ok || len(q) != 1 {
		return false, fmt.Errorf("unsupported clause %v", query)
	}

	for kind, body := range q {
		switch kind {
		case "match_all":
			return true, nil
		case "match_none":
			return false, nil
		case "terms":
			field, raw, err := single(body)
			if err != nil {
				return false, err
			}
			for _, want := range toSlice(raw) {
				if contains(doc, field, want, false) {
					return true, nil
				}
			}
			return false, nil
		case "term":
			field, raw, err := single(body)
			if err != nil {
				return false, err
			}
			return contains(doc, field, raw, false), nil
		case "match":
			field, raw, err := single(body)
			if err != nil {
				return false, err
			}
			if m, ok := asMap(raw); ok {
				raw = m["query"]
			}
			return contains(doc, field, raw, true), nil
		case "range":
			field, raw, err := single(body)
			if err != nil {
				return false, err
			}
			bounds, _ := asMap(raw)
			return inRange(doc, field, bounds), nil
		case "bool":
			b, _ := asMap(body)
			return matchBool(b, doc)
		default:
			return false, fmt.Errorf("unsupported clause %q", kind)
		}
	}
	return false, nil
}

func matchBool(b map[string]any, doc Doc) (bool, error) {
	for _, c := range toSlice(b["must"]) {
		ok, err := Match(c, doc)
		if err != nil || !ok {
			return false, err
		}
	}
	for _, c := range toSlice(b["must_not"]) {
		ok, err := Match(c, doc)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	should := toSlice(b["should"])
	if len(should) == 0 {
		return true, nil
	}
	for _, c := range should {
		ok, err := Match(c, doc)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func single(body any) (string, any, error) {
	m, ok := asMap(body)
	if !ok || len(m) != 1 {
		return "", nil, fmt.Errorf("expected one field in %v", body)
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}

func contains(doc Doc, field string, want any, fold bool) bool {
	for _, have := range toSlice(doc[field]) {
		hs, ws := fmt.Sprint(have), fmt.Sprint(want)
		if hs == ws || (fold && strings.EqualFold(hs, ws)) {
			return true
		}
	}
	return false
}

func inRange(doc Doc, field string, bounds map[string]any) bool {
	for _, have := range toSlice(doc[field]) {
		v, ok := toFloat(have)
		if !ok {
			continue
		}
		if within(v, bounds) {
			return true
		}
	}
	return false
}

func within(v float64, bounds map[string]any) bool {
	for op, raw := range bounds {
		limit, ok := toFloat(raw)
		if !ok {
			return false
		}
		switch op {
		case "gte":
			if v < limit {
				return false
			}
		case "gt":
			if v <= limit {
				return false
			}
		case "lte":
			if v > limit {
				return false
			}
		case "lt":
			if v >= limit {
				return false
			}
		}
	}
	return true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case condition.Fragment:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case nil:
		return nil
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []float64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	}
	return []any{v}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
