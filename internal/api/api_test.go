package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-relay/internal/logger"
	"github.com/samvad-hq/samvad-relay/internal/relay"
	"github.com/samvad-hq/samvad-relay/pkg/httpclient"
	"github.com/samvad-hq/samvad-relay/pkg/publishers"
	"github.com/samvad-hq/samvad-relay/pkg/upstreams"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelayer struct {
	mu      sync.Mutex
	targets []string
	headers []map[string]string
	result  relay.Result
	panics  bool
}

func (f *fakeRelayer) Call(_ context.Context, target string, headers map[string]string) relay.Result {
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	f.headers = append(f.headers, headers)
	return f.result
}

type fakeEvents struct {
	mu     sync.Mutex
	events []publishers.Event
	err    error
}

func (f *fakeEvents) Publish(_ context.Context, evt publishers.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

type recordingLogger struct {
	logger.NopLogger
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (l *recordingLogger) InfoObj(msg, _ string, _ interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) WarnObj(msg, _ string, _ interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) ErrorObj(msg, _ string, _ interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

type testEnv struct {
	router  http.Handler
	handler *Handler
	relay   *fakeRelayer
	events  *fakeEvents
	log     *recordingLogger
}

func newTestEnv(t *testing.T, result relay.Result) *testEnv {
	t.Helper()
	reg, err := upstreams.LoadRegistry("")
	require.NoError(t, err)

	env := &testEnv{
		relay:  &fakeRelayer{result: result},
		events: &fakeEvents{},
		log:    &recordingLogger{},
	}
	env.handler = NewHandler(env.relay, reg.All(), env.events, env.log)
	env.router = NewRouter(env.handler, env.log)
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	e.handler.Wait()
	return rec
}

func TestStaticRoutes(t *testing.T) {
	env := newTestEnv(t, relay.Result{})

	rec := env.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message": "FastApi for interview"}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/info", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Receiver": "Cisco is the best!"}`, rec.Body.String())
}

func TestPingWithoutBody(t *testing.T) {
	env := newTestEnv(t, relay.Result{})

	rec := env.do(http.MethodPost, "/ping", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t,
		`{"msg":"Doh!: No 'url' attribute in request body None\n","detail":[{"loc":["body"],"msg":"field required","type":"value_error.missing"}]}`,
		rec.Body.String())
	assert.Empty(t, env.relay.targets)
	assert.Len(t, env.log.warns, 1)
}

func TestPingRejectsMalformedBodies(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantLoc  []any
		wantType string
	}{
		{name: "json null", body: `null`, wantLoc: []any{"body"}, wantType: "value_error.missing"},
		{name: "missing url", body: `{"link":"https://example.com"}`, wantLoc: []any{"body", "url"}, wantType: "value_error.missing"},
		{name: "null url", body: `{"url":null}`, wantLoc: []any{"body", "url"}, wantType: "type_error.none.not_allowed"},
		{name: "list url", body: `{"url":["https://example.com"]}`, wantLoc: []any{"body", "url"}, wantType: "type_error.str"},
		{name: "array body", body: `["https://example.com"]`, wantLoc: []any{"body"}, wantType: "type_error.dict"},
		{name: "not json", body: `url=https://example.com`, wantLoc: []any{"body", float64(0)}, wantType: "value_error.jsondecode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, relay.Result{})

			rec := env.do(http.MethodPost, "/ping", tc.body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

			var got struct {
				Msg    string `json:"msg"`
				Detail []struct {
					Loc  []any  `json:"loc"`
					Msg  string `json:"msg"`
					Type string `json:"type"`
				} `json:"detail"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, "Doh!: No 'url' attribute in request body "+tc.body+"\n", got.Msg)
			require.Len(t, got.Detail, 1)
			assert.Equal(t, tc.wantLoc, got.Detail[0].Loc)
			assert.Equal(t, tc.wantType, got.Detail[0].Type)
			assert.NotEmpty(t, got.Detail[0].Msg)
			assert.Empty(t, env.relay.targets)
		})
	}
}

func TestPingInvalidURL(t *testing.T) {
	env := newTestEnv(t, relay.Result{})

	rec := env.do(http.MethodPost, "/ping", `{"url": "not a url"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Doh!": "Invalid http request detected in url provided: not a url"}`, rec.Body.String())
	assert.Empty(t, env.relay.targets)
	assert.Equal(t, []string{"Invalid http request detected in url provided: not a url"}, env.log.infos)

	require.Len(t, env.events.events, 1)
	assert.Equal(t, publishers.OutcomeInvalidURL, env.events.events[0].Outcome)
	assert.Equal(t, "/ping", env.events.events[0].Route)
}

func TestPingCoercesScalarURL(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"url": 42}`, "42"},
		{`{"url": -7}`, "-7"},
		{`{"url": 123456789012345678901234567890}`, "123456789012345678901234567890"},
		{`{"url": 1.5}`, "1.5"},
		{`{"url": 1e3}`, "1000.0"},
		{`{"url": 2.50}`, "2.5"},
		{`{"url": -0.0}`, "-0.0"},
		{`{"url": 0.00001}`, "1e-05"},
		{`{"url": 1e16}`, "1e+16"},
		{`{"url": 1e400}`, "inf"},
		{`{"url": true}`, "True"},
		{`{"url": false}`, "False"},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			env := newTestEnv(t, relay.Result{})

			rec := env.do(http.MethodPost, "/ping", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"Doh!": "Invalid http request detected in url provided: `+tt.want+`"}`, rec.Body.String())
			assert.Empty(t, env.relay.targets)
		})
	}
}

func TestPingRejectsOversizedBody(t *testing.T) {
	env := newTestEnv(t, relay.Result{})
	body := `{"pad": "` + strings.Repeat("a", MaxBodyBytes) + `", "url": "http://a.bc"}`

	rec := env.do(http.MethodPost, "/ping", body)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"detail": "Request Entity Too Large"}`, rec.Body.String())
	assert.Empty(t, env.relay.targets)
	assert.Empty(t, env.events.events)

	require.NotEmpty(t, env.log.warns)
	for _, msg := range env.log.warns {
		assert.Less(t, len(msg), 256)
	}
}

func TestPingAcceptsBodyAtSizeLimit(t *testing.T) {
	env := newTestEnv(t, relay.Result{})
	doc := `{"url": "not a url"}`
	body := doc + strings.Repeat(" ", MaxBodyBytes-len(doc))
	require.Len(t, body, MaxBodyBytes)

	rec := env.do(http.MethodPost, "/ping", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Doh!": "Invalid http request detected in url provided: not a url"}`, rec.Body.String())
}

func TestPingRelaysValidURL(t *testing.T) {
	upstreamBody := `{"value": "Chuck counted to infinity.",  "n": [1, 2]}`
	env := newTestEnv(t, relay.Result{StatusCode: 200, Body: json.RawMessage(upstreamBody)})

	rec := env.do(http.MethodPost, "/ping", `{"url": "https://api.example.com/jokes?x=1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, upstreamBody, rec.Body.String())
	assert.Equal(t, []string{"https://api.example.com/jokes?x=1"}, env.relay.targets)

	require.Len(t, env.events.events, 1)
	assert.Equal(t, publishers.OutcomeRelayed, env.events.events[0].Outcome)
	assert.Equal(t, 200, env.events.events[0].StatusCode)
}

func TestPingUpstreamFailureStillOK(t *testing.T) {
	env := newTestEnv(t, relay.Result{Err: errors.New("connection refused")})

	rec := env.do(http.MethodPost, "/ping", `{"url": "http://a.bc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"exception": "connection refused"}`, rec.Body.String())

	require.Len(t, env.events.events, 1)
	assert.Equal(t, publishers.OutcomeUpstreamError, env.events.events[0].Outcome)
	assert.Equal(t, "connection refused", env.events.events[0].Error)
}

func TestPublishFailureDoesNotChangeResponse(t *testing.T) {
	env := newTestEnv(t, relay.Result{Body: json.RawMessage(`{}`)})
	env.events.err = errors.New("queue unavailable")

	rec := env.do(http.MethodGet, "/dad_joke", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{}`, rec.Body.String())
	assert.Equal(t, []string{"publishing relay event failed"}, env.log.errors)
}

func TestFixedUpstreamRoutes(t *testing.T) {
	routes := map[string]string{
		"/chuck":          "https://api.chucknorris.io/jokes/random",
		"/simpsons_quote": "https://thesimpsonsquoteapi.glitch.me/quotes",
		"/dad_joke":       "https://icanhazdadjoke.com/",
	}
	for path, target := range routes {
		t.Run(path, func(t *testing.T) {
			env := newTestEnv(t, relay.Result{Body: json.RawMessage(`{"joke":"ok"}`)})

			rec := env.do(http.MethodGet, path, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, `{"joke":"ok"}`, rec.Body.String())
			require.Equal(t, []string{target}, env.relay.targets)
			assert.Equal(t, "application/json", env.relay.headers[0]["Accept"])
		})
	}
}

func TestHTTPErrors(t *testing.T) {
	env := newTestEnv(t, relay.Result{})

	rec := env.do(http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Not Found"}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"detail":"Method Not Allowed"}`, rec.Body.String())

	assert.Equal(t, []string{
		"Doh! An HTTP error!: HTTPException(status_code=404, detail='Not Found')",
		"Doh! An HTTP error!: HTTPException(status_code=405, detail='Method Not Allowed')",
	}, env.log.warns)
}

func TestPanicBecomesInternalServerError(t *testing.T) {
	env := newTestEnv(t, relay.Result{})
	env.relay.panics = true

	rec := env.do(http.MethodGet, "/chuck", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Internal Server Error"}`, rec.Body.String())
	assert.Equal(t, []string{"panic recovered"}, env.log.errors)
}

func TestPingEndToEndMakesOneOutboundCall(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc","joke":"<b>&</b>"}`))
	}))
	defer upstream.Close()

	svc := relay.NewService(httpclient.NewRestyClient(httpclient.Options{}), nil)
	srv := httptest.NewServer(NewRouter(NewHandler(svc, nil, nil, nil), nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/ping", "application/json", strings.NewReader(`{"url":"`+upstream.URL+`/joke"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"id": "abc", "joke": "<b>&</b>"}, body)
	assert.Equal(t, int32(1), hits.Load())
}

func TestValidHTTPURL(t *testing.T) {
	accepted := []string{
		"http://a.bc",
		"https://www.example.com/path?x=1",
		"see https://example.org for details",
		"http://127.0.0.1.nip.io:8080/",
	}
	rejected := []string{
		"ftp://example.com",
		"example.com",
		"not a url",
		"https://localhost",
		"",
	}
	for _, u := range accepted {
		assert.True(t, ValidHTTPURL(u), u)
	}
	for _, u := range rejected {
		assert.False(t, ValidHTTPURL(u), u)
	}
}

// gatedEvents blocks every Publish until release is closed or ctx ends.
type gatedEvents struct {
	release chan struct{}
	started chan struct{}
	err     atomic.Value
}

func (g *gatedEvents) Publish(ctx context.Context, _ publishers.Event) (int, error) {
	close(g.started)
	select {
	case <-g.release:
		return 1, nil
	case <-ctx.Done():
		g.err.Store(ctx.Err())
		return 0, ctx.Err()
	}
}

func TestSlowPublisherDoesNotDelayResponse(t *testing.T) {
	events := &gatedEvents{release: make(chan struct{}), started: make(chan struct{})}
	reg, err := upstreams.LoadRegistry("")
	require.NoError(t, err)
	h := NewHandler(&fakeRelayer{result: relay.Result{Body: json.RawMessage(`{"a":1}`)}}, reg.All(), events, nil)
	srv := httptest.NewServer(NewRouter(h, nil))
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/chuck")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))

	// the publisher is still blocked at this point
	<-events.started
	close(events.release)
	h.Wait()
	assert.Nil(t, events.err.Load())
}

func TestPublishTimeoutBoundsDelivery(t *testing.T) {
	env := newTestEnv(t, relay.Result{Body: json.RawMessage(`{}`)})
	events := &gatedEvents{release: make(chan struct{}), started: make(chan struct{})}
	env.handler.events = events
	env.handler.SetPublishTimeout(20 * time.Millisecond)

	rec := env.do(http.MethodGet, "/dad_joke", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, context.DeadlineExceeded, events.err.Load())
	assert.Equal(t, []string{"publishing relay event failed"}, env.log.errors)
}
