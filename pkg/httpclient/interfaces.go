package httpclient

import (
	"context"
	"net/http"
)

// Response is what callers read back from an upstream reply.
type Response interface {
	Body() []byte
	StatusCode() int
	Header() http.Header
}

// Client issues outbound GET requests.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}
