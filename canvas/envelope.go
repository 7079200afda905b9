package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Link relations recognized in the Link response header.
const (
	RelNext    = "next"
	RelPrev    = "prev"
	RelFirst   = "first"
	RelLast    = "last"
	RelCurrent = "current"
)

var (
	linkPattern = regexp.MustCompile(`<([^>]*)>([^<]*)`)
	relPattern  = regexp.MustCompile(`(?i)rel\s*=\s*"?([^";,]+)"?`)
)

// ParseLinkHeader extracts pagination links from an RFC 5988 Link header, e.g.
//
//	<https://h/a>; rel="next", <https://h/b>; rel="prev"
//
// Only the next, prev, first, last and current relations are kept.
// An empty header yields an empty map.
func ParseLinkHeader(header string) map[string]string {
	links := make(map[string]string)
	for _, match := range linkPattern.FindAllStringSubmatch(header, -1) {
		target := strings.TrimSpace(match[1])
		rel := relPattern.FindStringSubmatch(match[2])
		if target == "" || rel == nil {
			continue
		}
		for name := range strings.FieldsSeq(strings.ToLower(rel[1])) {
			switch name {
			case RelNext, RelPrev, RelFirst, RelLast, RelCurrent:
				links[name] = target
			}
		}
	}
	return links
}

// Envelope is a decoded Canvas response together with its pagination links.
// It is read-only once constructed.
type Envelope struct {
	status int
	header http.Header
	raw    []byte
	data   any
	links  map[string]string

	// builder, when set, lets the envelope request its neighbouring pages.
	// query is the query that produced this page; navigation merges links over
	// it, never over the builder's current state.
	builder *RequestBuilder
	query   Query
}

func (e *Envelope) bind(b *RequestBuilder, query Query) {
	e.builder = b
	e.query = query.Clone()
}

// NewEnvelope wraps an already decoded body and its response headers.
// The result is not bound to a RequestBuilder, so navigation fails with ErrPaginationUnavailable.
func NewEnvelope(status int, header http.Header, body []byte) (*Envelope, error) {
	return newEnvelope(status, header, body)
}

func newEnvelope(status int, header http.Header, body []byte) (*Envelope, error) {
	e := &Envelope{
		status: status,
		header: header.Clone(),
		raw:    body,
		links:  ParseLinkHeader(header.Get("Link")),
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return e, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&e.data); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return e, nil
}

// Data returns the decoded body: []any, map[string]any, a scalar or nil.
// Numbers are json.Number.
func (e *Envelope) Data() any {
	return e.data
}

// Len returns the number of array elements or object keys.
func (e *Envelope) Len() int {
	switch v := e.data.(type) {
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	default:
		return 0
	}
}

// Index returns the i-th element of an array body.
func (e *Envelope) Index(i int) (any, bool) {
	items, ok := e.data.([]any)
	if !ok || i < 0 || i >= len(items) {
		return nil, false
	}
	return items[i], true
}

// Get resolves a dotted path such as "0.enrollments.1.type" into the body.
// Numeric segments index arrays; other segments select object keys.
func (e *Envelope) Get(path string) (any, bool) {
	current := e.data
	if path == "" {
		return current, current != nil
	}

	for segment := range strings.SplitSeq(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// Items returns the body as a sequence. An array body is returned element by
// element, any other non-empty body as a single item.
func (e *Envelope) Items() []any {
	switch v := e.data.(type) {
	case nil:
		return nil
	case []any:
		return append([]any(nil), v...)
	default:
		return []any{v}
	}
}

// All iterates over Items with their index.
func (e *Envelope) All() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		for i, item := range e.Items() {
			if !yield(i, item) {
				return
			}
		}
	}
}

// Decode unmarshals the raw body into v.
func (e *Envelope) Decode(v any) error {
	if len(bytes.TrimSpace(e.raw)) == 0 {
		return errors.New("response body is empty")
	}
	return json.Unmarshal(e.raw, v)
}

// Unwrap returns an envelope over the value stored under key in an object body,
// for endpoints that nest their results, e.g. {"enrollment_terms": [...]}.
// Links, headers and the bound builder carry over.
func (e *Envelope) Unwrap(key string) (*Envelope, error) {
	obj, ok := e.data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot unwrap %q: response body is not an object", key)
	}
	v, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("cannot unwrap %q: key not present", key)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot unwrap %q: %w", key, err)
	}

	return &Envelope{
		status:  e.status,
		header:  e.header,
		raw:     raw,
		data:    v,
		links:   e.links,
		builder: e.builder,
		query:   e.query,
	}, nil
}

// JSON returns the raw response body.
func (e *Envelope) JSON() []byte {
	return bytes.Clone(e.raw)
}

// StatusCode returns the HTTP status of the response.
func (e *Envelope) StatusCode() int {
	return e.status
}

// Header returns a copy of the response headers.
func (e *Envelope) Header() http.Header {
	return e.header.Clone()
}

// Links returns a copy of the relation to URL map.
func (e *Envelope) Links() map[string]string {
	return maps.Clone(e.links)
}

// HasNextPage reports whether the response carried a "next" link.
func (e *Envelope) HasNextPage() bool {
	return e.links[RelNext] != ""
}

// HasPreviousPage reports whether the response carried a "prev" link.
func (e *Envelope) HasPreviousPage() bool {
	return e.links[RelPrev] != ""
}

// NextPageURL and its siblings return the link for a relation, or "".
func (e *Envelope) NextPageURL() string     { return e.links[RelNext] }
func (e *Envelope) PreviousPageURL() string { return e.links[RelPrev] }
func (e *Envelope) FirstPageURL() string    { return e.links[RelFirst] }
func (e *Envelope) LastPageURL() string     { return e.links[RelLast] }
func (e *Envelope) CurrentPageURL() string  { return e.links[RelCurrent] }

// Page requests this page again through its "current" link.
func (e *Envelope) Page(ctx context.Context) (*Envelope, error) {
	return e.follow(ctx, RelCurrent)
}

// Next requests the following page. It returns nil without an error when there is none.
func (e *Envelope) Next(ctx context.Context) (*Envelope, error) {
	return e.follow(ctx, RelNext)
}

// Previous requests the preceding page. It returns nil without an error when there is none.
func (e *Envelope) Previous(ctx context.Context) (*Envelope, error) {
	return e.follow(ctx, RelPrev)
}

// First requests the first page. It returns nil without an error when there is no such link.
func (e *Envelope) First(ctx context.Context) (*Envelope, error) {
	return e.follow(ctx, RelFirst)
}

// Last requests the last page. It returns nil without an error when there is no such link.
func (e *Envelope) Last(ctx context.Context) (*Envelope, error) {
	return e.follow(ctx, RelLast)
}

func (e *Envelope) follow(ctx context.Context, rel string) (*Envelope, error) {
	if e.builder == nil {
		return nil, ErrPaginationUnavailable
	}
	target := e.links[rel]
	if target == "" {
		return nil, nil
	}
	return e.builder.requestPaginationURL(ctx, e.query, target)
}
