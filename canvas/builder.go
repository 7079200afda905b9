package canvas

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
)

// RequestBuilder accumulates one request and sends it through its Client.
// Setters only record state; nothing is sent before a terminal call.
// A builder is not safe for concurrent use.
type RequestBuilder struct {
	client    *Client
	spec      RequestSpec
	paginator *Paginator

	// err holds the first setter failure and is returned by the next send.
	err error
}

// Endpoint sets the request path, e.g. "/api/v1/courses".
func (b *RequestBuilder) Endpoint(endpoint string) *RequestBuilder {
	b.spec.Endpoint = endpoint
	return b
}

// To is an alias of Endpoint.
func (b *RequestBuilder) To(endpoint string) *RequestBuilder {
	return b.Endpoint(endpoint)
}

// Method sets the HTTP method. An empty method sends GET.
func (b *RequestBuilder) Method(method string) *RequestBuilder {
	b.spec.Method = method
	return b
}

// Query replaces the query parameters. Map keys are added in sorted order.
func (b *RequestBuilder) Query(params map[string]string) *RequestBuilder {
	var q Query
	for _, k := range slices.Sorted(maps.Keys(params)) {
		q.Set(k, params[k])
	}
	b.spec.Query = q
	return b
}

// QueryString replaces the query parameters with those parsed from raw, keeping their order.
func (b *RequestBuilder) QueryString(raw string) *RequestBuilder {
	q, err := ParseQuery(raw)
	if err != nil {
		b.setErr(fmt.Errorf("failed to parse query string: %w", err))
		return b
	}
	b.spec.Query = q
	return b
}

// AddQueryVar sets one query parameter. The value is flattened like body fields,
// so true becomes "1" and nil becomes "". A slice sets one value per element,
// e.g. AddQueryVar("include[]", []string{"term", "teachers"}).
func (b *RequestBuilder) AddQueryVar(key string, value any) *RequestBuilder {
	switch v := Flatten(value).(type) {
	case string:
		b.spec.Query.Set(key, v)
	case []any:
		values := make([]string, len(v))
		for i, item := range v {
			values[i] = fmt.Sprint(item)
		}
		b.spec.Query.SetValues(key, values)
	default:
		b.spec.Query.Set(key, fmt.Sprint(value))
	}
	return b
}

// Q sets the q query parameter.
func (b *RequestBuilder) Q(query string) *RequestBuilder {
	return b.AddQueryVar("q", query)
}

// PageSize sets the per_page query parameter.
func (b *RequestBuilder) PageSize(size int) *RequestBuilder {
	return b.AddQueryVar(PageSizeParam, strconv.Itoa(size))
}

// Page sets the page query parameter.
func (b *RequestBuilder) Page(page int) *RequestBuilder {
	return b.AddQueryVar("page", strconv.Itoa(page))
}

// Data replaces the body fields. Values are flattened, see Flatten.
func (b *RequestBuilder) Data(data map[string]any) *RequestBuilder {
	b.spec.Body = make(map[string]any, len(data))
	for k, v := range data {
		b.spec.Body[k] = Flatten(v)
	}
	return b
}

// With is an alias of Data.
func (b *RequestBuilder) With(data map[string]any) *RequestBuilder {
	return b.Data(data)
}

// DataItem sets one body field.
func (b *RequestBuilder) DataItem(key string, value any) *RequestBuilder {
	if b.spec.Body == nil {
		b.spec.Body = make(map[string]any)
	}
	b.spec.Body[key] = Flatten(value)
	return b
}

// Get sends the request as GET.
func (b *RequestBuilder) Get(ctx context.Context) (*Envelope, error) {
	return b.Method(http.MethodGet).Send(ctx)
}

// Post sends the request as POST.
func (b *RequestBuilder) Post(ctx context.Context) (*Envelope, error) {
	return b.Method(http.MethodPost).Send(ctx)
}

// Put sends the request as PUT.
func (b *RequestBuilder) Put(ctx context.Context) (*Envelope, error) {
	return b.Method(http.MethodPut).Send(ctx)
}

// Patch sends the request as PATCH.
func (b *RequestBuilder) Patch(ctx context.Context) (*Envelope, error) {
	return b.Method(http.MethodPatch).Send(ctx)
}

// Delete sends the request as DELETE.
func (b *RequestBuilder) Delete(ctx context.Context) (*Envelope, error) {
	return b.Method(http.MethodDelete).Send(ctx)
}

// SendOption configures a single Send.
type SendOption func(*sendOptions)

type sendOptions struct {
	keepState bool
}

// KeepState leaves the builder's accumulated state in place after Send,
// so it can be inspected or reused.
func KeepState() SendOption {
	return func(o *sendOptions) {
		o.keepState = true
	}
}

// Send issues the accumulated request. A 401 response is retried once after a
// token refresh when auto-refresh is enabled. Other non-2xx responses fail with
// *APIError. The builder is reset afterwards, whether or not the call failed,
// unless KeepState is given.
func (b *RequestBuilder) Send(ctx context.Context, opts ...SendOption) (*Envelope, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.keepState {
		defer b.Reset()
	}

	if b.err != nil {
		return nil, b.err
	}

	spec := b.spec.Clone()
	env, err := b.client.send(ctx, spec)
	if err != nil {
		return nil, err
	}

	b.spec.Links = env.links
	env.bind(b, spec.Query)
	return env, nil
}

// Paginate returns the next page of results, starting with page 1 on the first call.
// It returns nil without an error, and resets the builder, once the pages are exhausted.
func (b *RequestBuilder) Paginate(ctx context.Context, pageSize int) (*Envelope, error) {
	env, err := b.Paginator(pageSize).Page(ctx)
	if err != nil {
		return nil, err
	}
	if env == nil {
		b.Reset()
	}
	return env, nil
}

// Paginator returns the paginator bound to this builder, creating it with
// pageSize on first use. Later calls return the same paginator.
func (b *RequestBuilder) Paginator(pageSize int) *Paginator {
	if b.paginator == nil {
		b.paginator = newPaginator(b, pageSize)
	}
	return b.paginator
}

// RequestPaginationURL GETs an absolute pagination URL. The URL's query
// parameters are merged over the builder's, the URL winning on collisions, so
// a per_page the server left out of the link is kept. The builder's own state
// is not modified apart from the stored links.
func (b *RequestBuilder) RequestPaginationURL(ctx context.Context, rawURL string) (*Envelope, error) {
	env, err := b.requestPaginationURL(ctx, b.spec.Query, rawURL)
	if err != nil {
		return nil, err
	}
	b.spec.Links = env.links
	return env, nil
}

// requestPaginationURL GETs rawURL with its query merged over base.
// It leaves the builder untouched.
func (b *RequestBuilder) requestPaginationURL(ctx context.Context, base Query, rawURL string) (*Envelope, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pagination url: %w", err)
	}
	linkQuery, err := ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid pagination url query: %w", err)
	}

	query := base.Clone()
	query.Merge(linkQuery)

	// Servers sometimes drop per_page from next/prev links.
	if size, ok := base.Get(PageSizeParam); ok && !linkQuery.Has(PageSizeParam) {
		query.Set(PageSizeParam, size)
	}

	spec := RequestSpec{
		Method:   http.MethodGet,
		Endpoint: u.EscapedPath(),
		Query:    query,
	}

	env, err := b.client.send(ctx, spec)
	if err != nil {
		return nil, err
	}

	env.bind(b, query)
	return env, nil
}

// Spec returns a copy of the accumulated request.
func (b *RequestBuilder) Spec() RequestSpec {
	return b.spec.Clone()
}

// Reset clears the accumulated request and drops the paginator.
func (b *RequestBuilder) Reset() *RequestBuilder {
	b.spec = RequestSpec{}
	b.paginator = nil
	b.err = nil
	return b
}

func (b *RequestBuilder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}
