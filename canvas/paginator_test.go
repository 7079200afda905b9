package canvas_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/canvaskit/canvas"
)

// pagedServer serves total items under /api/v1/courses/1/users, Canvas style,
// with next/prev/first/last/current Link headers.
type pagedServer struct {
	*canvasServer

	mu      sync.Mutex
	queries []string
}

func newPagedServer(t *testing.T, total int) *pagedServer {
	t.Helper()

	ps := &pagedServer{}
	ps.canvasServer = newCanvasServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.queries = append(ps.queries, r.URL.RawQuery)
		ps.mu.Unlock()

		q := r.URL.Query()
		perPage, _ := strconv.Atoi(q.Get("per_page"))
		if perPage <= 0 {
			perPage = 10
		}
		page, _ := strconv.Atoi(q.Get("page"))
		if page <= 0 {
			page = 1
		}
		lastPage := max(1, (total+perPage-1)/perPage)

		link := func(p int, rel string) string {
			return fmt.Sprintf(`<%s%s?page=%d&per_page=%d>; rel="%s"`, ps.URL, r.URL.Path, p, perPage, rel)
		}
		links := []string{link(page, "current"), link(1, "first"), link(lastPage, "last")}
		if page < lastPage {
			links = append(links, link(page+1, "next"))
		}
		if page > 1 {
			links = append(links, link(page-1, "prev"))
		}
		var header string
		for i, l := range links {
			if i > 0 {
				header += ","
			}
			header += l
		}
		if total > 0 {
			w.Header().Set("Link", header)
		}

		items := []map[string]any{}
		for id := (page-1)*perPage + 1; id <= min(page*perPage, total); id++ {
			items = append(items, map[string]any{"id": id})
		}
		writeJSON(w, http.StatusOK, items)
	})

	return ps
}

func (ps *pagedServer) client(t *testing.T) *canvas.Client {
	t.Helper()

	client, err := canvas.New(context.Background(), canvas.Credentials{Domain: ps.URL},
		canvas.WithHTTPClient(ps.Client()),
		canvas.WithAccessToken("tok"),
		canvas.WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	return client
}

func TestPaginatorAll(t *testing.T) {
	server := newPagedServer(t, 107)
	client := server.client(t)

	items, err := client.NewRequest().Endpoint("/api/v1/courses/1/users").Paginator(50).All(context.Background())
	require.NoError(t, err)

	require.Len(t, items, 107)
	assert.Equal(t, int32(3), server.apiCalls.Load())
	for i, item := range items {
		assert.Equal(t, json.Number(strconv.Itoa(i+1)), item.(map[string]any)["id"])
	}
	assert.Equal(t, "per_page=50&page=1", server.queries[0])
}

func TestPaginateUntilExhausted(t *testing.T) {
	server := newPagedServer(t, 25)
	client := server.client(t)
	ctx := context.Background()

	b := client.NewRequest().Endpoint("/api/v1/courses/1/users")

	var sizes []int
	for {
		page, err := b.Paginate(ctx, 10)
		require.NoError(t, err)
		if page == nil {
			break
		}
		sizes = append(sizes, page.Len())
	}

	assert.Equal(t, []int{10, 10, 5}, sizes)
	assert.Equal(t, int32(3), server.apiCalls.Load())
	assert.Equal(t, canvas.RequestSpec{}, b.Spec())
}

func TestPaginatorEmptyFirstPage(t *testing.T) {
	server := newPagedServer(t, 0)
	client := server.client(t)
	ctx := context.Background()

	p := client.NewRequest().Endpoint("/api/v1/courses/1/users").Paginator(50)

	env, err := p.Page(ctx)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.False(t, env.HasNextPage())
	assert.Zero(t, env.Len())
	assert.False(t, p.HasMorePages())

	for range 3 {
		env, err = p.Next(ctx)
		require.NoError(t, err)
		assert.Nil(t, env)
	}
	assert.Equal(t, int32(1), server.apiCalls.Load())
}

func TestPaginatorNavigation(t *testing.T) {
	server := newPagedServer(t, 45)
	client := server.client(t)
	ctx := context.Background()

	p := client.NewRequest().Endpoint("/api/v1/courses/1/users").Paginator(10)

	prev, err := p.Previous(ctx)
	require.NoError(t, err)
	assert.Nil(t, prev, "previous before the first page")

	_, err = p.Page(ctx)
	require.NoError(t, err)
	_, err = p.Page(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.CurrentPage())

	prev, err = p.Previous(ctx)
	require.NoError(t, err)
	first, _ := prev.Index(0)
	assert.Equal(t, json.Number("1"), first.(map[string]any)["id"])
	assert.Equal(t, 1, p.CurrentPage())
	assert.True(t, p.HasMorePages())

	last, err := p.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, last.Len())
	assert.False(t, p.HasMorePages())
	assert.False(t, last.HasNextPage())

	next, err := p.Page(ctx)
	require.NoError(t, err)
	assert.Nil(t, next, "last disables forward pagination")

	firstPage, err := p.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentPage())
	assert.True(t, p.HasMorePages())
	assert.True(t, firstPage.HasNextPage())
	assert.Contains(t, p.Links(), "next")

	third, err := p.GoToURL(ctx, server.URL+"/api/v1/courses/1/users?page=3&per_page=10")
	require.NoError(t, err)
	id, _ := third.Get("0.id")
	assert.Equal(t, json.Number("21"), id)
	assert.Zero(t, p.CurrentPage())
	assert.Same(t, third, p.Current())
}

func TestPaginatorPagesStopsEarly(t *testing.T) {
	server := newPagedServer(t, 100)
	client := server.client(t)

	p := client.NewRequest().Endpoint("/api/v1/courses/1/users").Paginator(10)
	count := 0
	for env, err := range p.Pages(context.Background()) {
		require.NoError(t, err)
		require.NotNil(t, env)
		count++
		if count == 2 {
			break
		}
	}

	assert.Equal(t, 2, count)
	assert.Equal(t, int32(2), server.apiCalls.Load())
}

func TestPaginatorPropagatesErrors(t *testing.T) {
	server := newCanvasServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{"message": "forbidden"})
	})
	client, err := canvas.New(context.Background(), canvas.Credentials{Domain: server.URL},
		canvas.WithHTTPClient(server.Client()),
		canvas.WithAccessToken("tok"),
	)
	require.NoError(t, err)

	items, err := client.NewRequest().Endpoint("/api/v1/courses").Paginator(10).All(context.Background())
	assert.Nil(t, items)

	var apiErr *canvas.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "forbidden", apiErr.Message)
}

func TestRequestPaginationURLMergesQuery(t *testing.T) {
	server := newPagedServer(t, 0)
	client := server.client(t)
	ctx := context.Background()

	b := client.NewRequest().
		Endpoint("/api/v1/courses/1/enrollments").
		PageSize(5).
		AddQueryVar("type", "StudentEnrollment")

	t.Run("url without page size", func(t *testing.T) {
		_, err := b.RequestPaginationURL(ctx, server.URL+"/api/v1/courses/1/enrollments?page=2&other_param=value")
		require.NoError(t, err)

		raw := server.queries[len(server.queries)-1]
		assert.Equal(t, "per_page=5&type=StudentEnrollment&page=2&other_param=value", raw)
	})

	t.Run("url with page size", func(t *testing.T) {
		_, err := b.RequestPaginationURL(ctx, server.URL+"/api/v1/courses/1/enrollments?page=3&per_page=10")
		require.NoError(t, err)

		raw := server.queries[len(server.queries)-1]
		assert.Equal(t, "per_page=10&type=StudentEnrollment&page=3", raw)
	})

	// The builder's own parameters are untouched.
	assert.Equal(t, "per_page=5&type=StudentEnrollment", b.Spec().Query.Encode())
}

func TestEnvelopeNavigatesThroughBuilder(t *testing.T) {
	server := newPagedServer(t, 30)
	client := server.client(t)
	ctx := context.Background()

	env, err := client.NewRequest().Endpoint("/api/v1/courses/1/users").PageSize(10).Get(ctx)
	require.NoError(t, err)
	require.True(t, env.HasNextPage())
	assert.False(t, env.HasPreviousPage())

	prev, err := env.Previous(ctx)
	require.NoError(t, err)
	assert.Nil(t, prev)

	next, err := env.Next(ctx)
	require.NoError(t, err)
	id, _ := next.Get("0.id")
	assert.Equal(t, json.Number("11"), id)

	last, err := next.Last(ctx)
	require.NoError(t, err)
	id, _ = last.Get("0.id")
	assert.Equal(t, json.Number("21"), id)

	again, err := last.Page(ctx)
	require.NoError(t, err)
	assert.Equal(t, last.JSON(), again.JSON())
	assert.Equal(t, int32(4), server.apiCalls.Load())
}

func TestPaginatorKeepsArrayParameters(t *testing.T) {
	var (
		mu       sync.Mutex
		includes [][]string
		queries  []string
	)
	var server *canvasServer
	server = newCanvasServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		includes = append(includes, r.URL.Query()["include[]"])
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()

		if r.URL.Query().Get("page") == "1" {
			next := server.URL + "/api/v1/courses?include[]=term&include[]=teachers&page=2&per_page=2"
			w.Header().Set("Link", `<`+next+`>; rel="next"`)
			writeJSON(w, http.StatusOK, []map[string]any{{"id": 1}, {"id": 2}})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 3}})
	})

	client, err := canvas.New(context.Background(), canvas.Credentials{Domain: server.URL},
		canvas.WithHTTPClient(server.Client()),
		canvas.WithAccessToken("tok"),
		canvas.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	items, err := client.NewRequest().
		Endpoint("/api/v1/courses").
		AddQueryVar("include[]", []string{"term", "teachers"}).
		Paginator(2).
		All(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 3)

	require.Len(t, includes, 2)
	assert.Equal(t, []string{"term", "teachers"}, includes[0])
	assert.Equal(t, []string{"term", "teachers"}, includes[1])
	assert.Equal(t, "include%5B%5D=term&include%5B%5D=teachers&per_page=2&page=2", queries[1])
}

func TestEnvelopeNavigationIgnoresLaterBuilderUse(t *testing.T) {
	server := newPagedServer(t, 30)
	client := server.client(t)
	ctx := context.Background()

	b := client.NewRequest()
	env, err := b.Endpoint("/api/v1/courses/1/users").PageSize(10).Get(ctx)
	require.NoError(t, err)

	// Reuse the builder for an unrelated request before navigating.
	b.Endpoint("/api/v1/users/self/todo").AddQueryVar("search_term", "unrelated").PageSize(99)

	next, err := env.Next(ctx)
	require.NoError(t, err)
	id, _ := next.Get("0.id")
	assert.Equal(t, json.Number("11"), id)
	assert.Equal(t, "per_page=10&page=2", server.queries[len(server.queries)-1])

	following, err := next.Next(ctx)
	require.NoError(t, err)
	id, _ = following.Get("0.id")
	assert.Equal(t, json.Number("21"), id)
	assert.Equal(t, "per_page=10&page=3", server.queries[len(server.queries)-1])

	spec := b.Spec()
	assert.Equal(t, "/api/v1/users/self/todo", spec.Endpoint)
	assert.Equal(t, "search_term=unrelated&per_page=99", spec.Query.Encode())
}
