package canvas

import (
	"fmt"
	"net/url"
	"strings"
)

// Query is an insertion-ordered set of query parameters. A key may carry
// several values, as Canvas array parameters like include[] do. The zero value
// is empty and ready to use.
type Query struct {
	keys   []string
	values map[string][]string
}

// ParseQuery parses a raw query string, keeping parameter order.
// A repeated key keeps its first position and collects every value in order.
func ParseQuery(raw string) (Query, error) {
	var q Query
	raw = strings.TrimPrefix(raw, "?")
	for part := range strings.SplitSeq(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return Query{}, fmt.Errorf("invalid query key %q: %w", key, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return Query{}, fmt.Errorf("invalid query value for %q: %w", k, err)
		}
		q.Add(k, v)
	}
	return q, nil
}

// Set replaces all values of key with value. A new key is appended.
func (q *Query) Set(key, value string) {
	q.SetValues(key, []string{value})
}

// SetValues replaces all values of key. An empty list removes the key.
func (q *Query) SetValues(key string, values []string) {
	if len(values) == 0 {
		q.Del(key)
		return
	}
	q.ensure(key)
	q.values[key] = append([]string(nil), values...)
}

// Add appends value to the values of key.
func (q *Query) Add(key, value string) {
	q.ensure(key)
	q.values[key] = append(q.values[key], value)
}

func (q *Query) ensure(key string) {
	if q.values == nil {
		q.values = make(map[string][]string)
	}
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
		q.values[key] = nil
	}
}

// Get returns the first value for key and whether it is present.
func (q Query) Get(key string) (string, bool) {
	v, ok := q.values[key]
	if !ok || len(v) == 0 {
		return "", ok
	}
	return v[0], true
}

// Values returns a copy of every value of key.
func (q Query) Values(key string) []string {
	return append([]string(nil), q.values[key]...)
}

// Has reports whether key is present.
func (q Query) Has(key string) bool {
	_, ok := q.values[key]
	return ok
}

// Del removes key and all its values.
func (q *Query) Del(key string) {
	if _, ok := q.values[key]; !ok {
		return
	}
	delete(q.values, key)
	for i, k := range q.keys {
		if k == key {
			q.keys = append(q.keys[:i:i], q.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of distinct keys.
func (q Query) Len() int {
	return len(q.keys)
}

// Keys returns the keys in insertion order.
func (q Query) Keys() []string {
	return append([]string(nil), q.keys...)
}

// Merge copies every key of other onto q, in other's order. For a key present
// in both, other's whole value list replaces q's.
func (q *Query) Merge(other Query) {
	for _, k := range other.keys {
		q.SetValues(k, other.values[k])
	}
}

// Clone returns an independent copy.
func (q Query) Clone() Query {
	var c Query
	c.Merge(q)
	return c
}

// Map returns the first value of each key as a plain map.
func (q Query) Map() map[string]string {
	m := make(map[string]string, len(q.keys))
	for _, k := range q.keys {
		m[k], _ = q.Get(k)
	}
	return m
}

// Encode renders the parameters in insertion order with escaped keys and
// values. A key with several values is written once per value.
func (q Query) Encode() string {
	var b strings.Builder
	for _, k := range q.keys {
		key := url.QueryEscape(k)
		for _, v := range q.values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
