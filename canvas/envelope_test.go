package canvas_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/canvaskit/canvas"
)

func TestParseLinkHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   map[string]string
	}{
		{
			name:   "next and prev",
			header: `<https://h/a>; rel="next", <https://h/b>; rel="prev"`,
			want:   map[string]string{"next": "https://h/a", "prev": "https://h/b"},
		},
		{
			name:   "empty",
			header: "",
			want:   map[string]string{},
		},
		{
			name: "canvas full set",
			header: `<https://canvas.test/api/v1/courses?page=2&per_page=10>; rel="current",` +
				`<https://canvas.test/api/v1/courses?page=3&per_page=10>; rel="next",` +
				`<https://canvas.test/api/v1/courses?page=1&per_page=10>; rel="prev",` +
				`<https://canvas.test/api/v1/courses?page=1&per_page=10>; rel="first",` +
				`<https://canvas.test/api/v1/courses?page=5&per_page=10>; rel="last"`,
			want: map[string]string{
				"current": "https://canvas.test/api/v1/courses?page=2&per_page=10",
				"next":    "https://canvas.test/api/v1/courses?page=3&per_page=10",
				"prev":    "https://canvas.test/api/v1/courses?page=1&per_page=10",
				"first":   "https://canvas.test/api/v1/courses?page=1&per_page=10",
				"last":    "https://canvas.test/api/v1/courses?page=5&per_page=10",
			},
		},
		{
			name:   "unknown relations dropped",
			header: `<https://h/a>; rel="alternate", <https://h/b>; rel=next`,
			want:   map[string]string{"next": "https://h/b"},
		},
		{
			name:   "multiple relations on one link",
			header: `<https://h/a>; rel="first prev"`,
			want:   map[string]string{"first": "https://h/a", "prev": "https://h/a"},
		},
		{
			name:   "malformed entries skipped",
			header: `https://h/a; rel="next", <https://h/b>`,
			want:   map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canvas.ParseLinkHeader(tt.header))
		})
	}
}

func TestEnvelopeWithoutLinks(t *testing.T) {
	env, err := canvas.NewEnvelope(http.StatusOK, http.Header{}, []byte(`[{"id":1}]`))
	require.NoError(t, err)

	assert.False(t, env.HasNextPage())
	assert.False(t, env.HasPreviousPage())
	assert.Empty(t, env.Links())
}

func TestEnvelopeNavigationWithoutBuilder(t *testing.T) {
	header := http.Header{}
	header.Set("Link", `<https://h/a>; rel="next"`)

	env, err := canvas.NewEnvelope(http.StatusOK, header, []byte(`[]`))
	require.NoError(t, err)
	require.True(t, env.HasNextPage())

	ctx := context.Background()
	navigations := map[string]func(context.Context) (*canvas.Envelope, error){
		"page":     env.Page,
		"next":     env.Next,
		"previous": env.Previous,
		"first":    env.First,
		"last":     env.Last,
	}
	for name, navigate := range navigations {
		t.Run(name, func(t *testing.T) {
			_, err := navigate(ctx)
			require.ErrorIs(t, err, canvas.ErrPaginationUnavailable)
		})
	}
}

func TestEnvelopeAccess(t *testing.T) {
	body := `[
		{"id": 1, "name": "Biology", "enrollments": [{"type": "student"}]},
		{"id": 2, "name": "Chemistry", "enrollments": []}
	]`
	env, err := canvas.NewEnvelope(http.StatusOK, nil, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, 2, env.Len())
	assert.Equal(t, http.StatusOK, env.StatusCode())

	first, ok := env.Index(0)
	require.True(t, ok)
	assert.Equal(t, "Biology", first.(map[string]any)["name"])

	_, ok = env.Index(2)
	assert.False(t, ok)

	v, ok := env.Get("0.enrollments.0.type")
	require.True(t, ok)
	assert.Equal(t, "student", v)

	v, ok = env.Get("1.id")
	require.True(t, ok)
	assert.Equal(t, json.Number("2"), v)

	_, ok = env.Get("1.enrollments.0")
	assert.False(t, ok)
	_, ok = env.Get("x")
	assert.False(t, ok)

	var seen []int
	for i := range env.All() {
		seen = append(seen, i)
	}
	assert.Equal(t, []int{0, 1}, seen)

	var courses []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, env.Decode(&courses))
	require.Len(t, courses, 2)
	assert.Equal(t, "Chemistry", courses[1].Name)
}

func TestEnvelopeUnwrap(t *testing.T) {
	header := http.Header{}
	header.Set("Link", `<https://h/terms?page=2>; rel="next"`)

	env, err := canvas.NewEnvelope(http.StatusOK, header, []byte(`{"enrollment_terms":[{"id":7},{"id":8}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, env.Len())
	assert.Len(t, env.Items(), 1)

	terms, err := env.Unwrap("enrollment_terms")
	require.NoError(t, err)
	assert.Equal(t, 2, terms.Len())
	assert.True(t, terms.HasNextPage())
	assert.JSONEq(t, `[{"id":7},{"id":8}]`, string(terms.JSON()))

	_, err = env.Unwrap("missing")
	require.Error(t, err)

	_, err = terms.Unwrap("enrollment_terms")
	require.Error(t, err)
}

func TestEnvelopeEmptyBody(t *testing.T) {
	env, err := canvas.NewEnvelope(http.StatusNoContent, nil, nil)
	require.NoError(t, err)

	assert.Nil(t, env.Data())
	assert.Zero(t, env.Len())
	assert.Nil(t, env.Items())
	assert.Error(t, env.Decode(&struct{}{}))
}

func TestEnvelopeInvalidJSON(t *testing.T) {
	_, err := canvas.NewEnvelope(http.StatusOK, nil, []byte(`<html>`))
	require.Error(t, err)
}
