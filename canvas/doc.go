// Package canvas is a client for the Canvas LMS REST API.
//
// Requests are accumulated on a RequestBuilder and sent through a Client that
// attaches a bearer token from a tokensource.Manager. A 401 response triggers
// one token refresh and one retry.
//
//	client, err := canvas.New(ctx, canvas.Credentials{
//	  Domain:       "school.instructure.com",
//	  ClientID:     clientID,
//	  ClientSecret: clientSecret,
//	  RefreshToken: refreshToken,
//	}, canvas.WithTokenStore(store))
//
//	courses, err := client.Courses().AddQueryVar("enrollment_state", "active").Get(ctx)
//
// # Pagination
//
// Canvas paginates with Link response headers. Paginate and Paginator follow
// the "next" links until none is left:
//
//	req := client.NewRequest().Endpoint("/api/v1/courses/1/enrollments")
//	for {
//	  page, err := req.Paginate(ctx, 50)
//	  if err != nil || page == nil {
//	    break
//	  }
//	  ...
//	}
//
// Each Envelope can also navigate on its own with Next, Previous, First and Last.
package canvas
