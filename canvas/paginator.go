package canvas

import (
	"context"
	"iter"
	"maps"
	"net/http"
)

// Paginator walks a result set by following the server's Link headers.
// Only the first request sets page=1 explicitly; every later page comes from
// the previous response's "next" link. Once no "next" link is left the
// paginator stays exhausted until Reset.
type Paginator struct {
	builder  *RequestBuilder
	pageSize int

	current      *Envelope
	hasMore      bool
	firstRequest bool
	currentPage  int
}

func newPaginator(b *RequestBuilder, pageSize int) *Paginator {
	p := &Paginator{builder: b, pageSize: pageSize}
	if pageSize > 0 {
		b.PageSize(pageSize)
	}
	p.Reset()
	return p
}

// Page returns the next page, or nil without an error once the pages are exhausted.
func (p *Paginator) Page(ctx context.Context) (*Envelope, error) {
	if !p.hasMore {
		return nil, nil
	}

	if p.firstRequest {
		if p.pageSize > 0 {
			p.builder.PageSize(p.pageSize)
		}
		env, err := p.builder.Page(1).Method(http.MethodGet).Send(ctx, KeepState())
		if err != nil {
			return nil, err
		}
		p.current = env
		p.firstRequest = false
		p.currentPage = 1
	} else {
		if p.current == nil || !p.current.HasNextPage() {
			p.hasMore = false
			return nil, nil
		}
		env, err := p.builder.RequestPaginationURL(ctx, p.current.NextPageURL())
		if err != nil {
			return nil, err
		}
		p.current = env
		p.currentPage++
	}

	p.hasMore = p.current.HasNextPage()
	return p.current, nil
}

// Next is an alias of Page.
func (p *Paginator) Next(ctx context.Context) (*Envelope, error) {
	return p.Page(ctx)
}

// Previous follows the current page's "prev" link. It returns nil without an
// error when there is none and does not change whether more pages remain.
func (p *Paginator) Previous(ctx context.Context) (*Envelope, error) {
	if p.current == nil || !p.current.HasPreviousPage() {
		return nil, nil
	}
	env, err := p.builder.RequestPaginationURL(ctx, p.current.PreviousPageURL())
	if err != nil {
		return nil, err
	}
	p.current = env
	if p.currentPage > 1 {
		p.currentPage--
	}
	return env, nil
}

// First jumps to the "first" link. Without one it starts over from page 1.
func (p *Paginator) First(ctx context.Context) (*Envelope, error) {
	if p.current == nil || p.current.FirstPageURL() == "" {
		p.Reset()
		return p.Page(ctx)
	}
	env, err := p.builder.RequestPaginationURL(ctx, p.current.FirstPageURL())
	if err != nil {
		return nil, err
	}
	p.current = env
	p.hasMore = env.HasNextPage()
	p.currentPage = 1
	return env, nil
}

// Last jumps to the "last" link and ends forward pagination. It returns nil
// without an error when the current page has no such link. The page number
// is left unchanged since Canvas does not report it.
func (p *Paginator) Last(ctx context.Context) (*Envelope, error) {
	if p.current == nil || p.current.LastPageURL() == "" {
		return nil, nil
	}
	env, err := p.builder.RequestPaginationURL(ctx, p.current.LastPageURL())
	if err != nil {
		return nil, err
	}
	p.current = env
	p.hasMore = false
	return env, nil
}

// GoToURL requests an arbitrary pagination URL and continues from there.
// The page number becomes unknown (0).
func (p *Paginator) GoToURL(ctx context.Context, rawURL string) (*Envelope, error) {
	env, err := p.builder.RequestPaginationURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	p.current = env
	p.hasMore = env.HasNextPage()
	p.firstRequest = false
	p.currentPage = 0
	return env, nil
}

// All resets the paginator and collects the items of every page in order.
// Array pages contribute their elements; any other page body is added as one item.
func (p *Paginator) All(ctx context.Context) ([]any, error) {
	var items []any
	for env, err := range p.Pages(ctx) {
		if err != nil {
			return nil, err
		}
		items = append(items, env.Items()...)
	}
	return items, nil
}

// Pages resets the paginator and yields each page until exhaustion.
// Iteration stops after the first error.
func (p *Paginator) Pages(ctx context.Context) iter.Seq2[*Envelope, error] {
	return func(yield func(*Envelope, error) bool) {
		p.Reset()
		for {
			env, err := p.Page(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if env == nil {
				return
			}
			if !yield(env, nil) {
				return
			}
		}
	}
}

// Reset returns to the state before the first page.
func (p *Paginator) Reset() {
	p.current = nil
	p.hasMore = true
	p.firstRequest = true
	p.currentPage = 0
}

// HasMorePages reports whether Page may still return another page.
func (p *Paginator) HasMorePages() bool {
	return p.hasMore
}

// CurrentPage returns the 1-based page number, or 0 when unknown or not started.
func (p *Paginator) CurrentPage() int {
	return p.currentPage
}

// Current returns the last page fetched, or nil.
func (p *Paginator) Current() *Envelope {
	return p.current
}

// Links returns the pagination links of the current page.
func (p *Paginator) Links() map[string]string {
	if p.current == nil {
		return map[string]string{}
	}
	return maps.Clone(p.current.links)
}
