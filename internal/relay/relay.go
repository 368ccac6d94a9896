package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-relay/internal/logger"
	"github.com/samvad-hq/samvad-relay/pkg/httpclient"
	"github.com/samvad-hq/samvad-relay/pkg/upstreams"
)

// ErrNotJSON marks an upstream response whose body could not be decoded as JSON.
var ErrNotJSON = errors.New("upstream response is not JSON")

// Result is the outcome of one relay call: either a JSON body or an error.
type Result struct {
	URL        string
	StatusCode int
	Body       json.RawMessage
	Err        error
	Duration   time.Duration
}

// Failed reports whether the call produced an error instead of a body.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Payload is what the API writes back to the caller: the upstream JSON unchanged,
// or {"exception": "<description>"} when the call failed.
func (r Result) Payload() any {
	if r.Err != nil {
		return map[string]string{"exception": r.Err.Error()}
	}
	return r.Body
}

// Service performs outbound GET calls on behalf of inbound requests.
type Service struct {
	client httpclient.Client
	log    logger.Logger
}

// NewService wires a relay with the outbound client.
func NewService(client httpclient.Client, log logger.Logger) *Service {
	return &Service{
		client: client,
		log:    logger.Ensure(log),
	}
}

// Call performs exactly one GET to target and never returns an error: failures are
// reported through Result.Err. Extra headers override the default Accept header.
func (s *Service) Call(ctx context.Context, target string, headers map[string]string) Result {
	s.log.InfoObj(fmt.Sprintf("Attempted call to %s", target), "", nil)

	start := time.Now()
	res := s.call(ctx, target, requestHeaders(headers))
	res.URL = target
	res.Duration = time.Since(start)

	if res.Err != nil {
		s.log.WarnObj(fmt.Sprintf("call to %s failed", target), "relay_error", map[string]any{
			"url":         target,
			"status_code": res.StatusCode,
			"error":       res.Err.Error(),
		})
		return res
	}

	s.log.DebugObj("relay call completed", "relay_result", map[string]any{
		"url":         target,
		"status_code": res.StatusCode,
		"size":        len(res.Body),
		"elapsed_ms":  res.Duration.Milliseconds(),
	})
	return res
}

func (s *Service) call(ctx context.Context, target string, headers map[string]string) Result {
	if s == nil || s.client == nil {
		return Result{Err: errors.New("relay service is not initialized")}
	}

	resp, err := s.client.Get(ctx, target, headers)
	if err != nil {
		return Result{Err: err}
	}

	body := bytes.TrimSpace(resp.Body())
	if !json.Valid(body) {
		return Result{
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("%w: %s", ErrNotJSON, describeBody(resp.Header(), resp.Body())),
		}
	}

	return Result{StatusCode: resp.StatusCode(), Body: json.RawMessage(body)}
}

func requestHeaders(extra map[string]string) map[string]string {
	headers := map[string]string{"Accept": upstreams.DefaultAccept}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}
