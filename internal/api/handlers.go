package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-relay/internal/logger"
	"github.com/samvad-hq/samvad-relay/internal/relay"
	"github.com/samvad-hq/samvad-relay/pkg/publishers"
	"github.com/samvad-hq/samvad-relay/pkg/upstreams"
)

const pingRoute = "/ping"

// DefaultPublishTimeout bounds one event fan-out unless SetPublishTimeout says otherwise.
const DefaultPublishTimeout = 10 * time.Second

// Relayer performs the outbound call for a relay route.
type Relayer interface {
	Call(ctx context.Context, target string, headers map[string]string) relay.Result
}

// EventPublisher receives one event per relay attempt.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Handler serves the relay API.
type Handler struct {
	relay     Relayer
	upstreams []upstreams.Upstream
	events    EventPublisher
	log       logger.Logger

	publishTimeout time.Duration
	pending        sync.WaitGroup
}

// NewHandler wires the handlers. events may be nil to disable publishing.
func NewHandler(r Relayer, ups []upstreams.Upstream, events EventPublisher, log logger.Logger) *Handler {
	return &Handler{
		relay:     r,
		upstreams: ups,
		events:    events,
		log:       logger.Ensure(log),

		publishTimeout: DefaultPublishTimeout,
	}
}

// SetPublishTimeout changes the deadline of each event fan-out; non-positive values are ignored.
func (h *Handler) SetPublishTimeout(d time.Duration) {
	if d > 0 {
		h.publishTimeout = d
	}
}

// Wait blocks until every in-flight event fan-out has finished.
func (h *Handler) Wait() {
	h.pending.Wait()
}

func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "FastApi for interview"})
}

func (h *Handler) Info(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"Receiver": "Cisco is the best!"})
}

// Ping relays a GET to the url named in the request body.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	bound, err := bindRelayRequest(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.httpError(w, r, http.StatusRequestEntityTooLarge)
			return
		}
		h.httpError(w, r, http.StatusBadRequest)
		return
	}
	if !bound.OK() {
		h.log.WarnObj(strings.TrimSpace(bound.Failure.Msg), "validation_failure", bound.Failure.Detail)
		respondWithJSON(w, http.StatusUnprocessableEntity, bound.Failure)
		return
	}

	target := bound.Request.URL
	if !ValidHTTPURL(target) {
		msg := fmt.Sprintf("Invalid http request detected in url provided: %s", target)
		h.log.InfoObj(msg, "", nil)
		respondWithJSON(w, http.StatusOK, map[string]string{"Doh!": msg})
		h.publish(r.Context(), publishers.NewEvent(pingRoute, target, publishers.OutcomeInvalidURL))
		return
	}

	h.relayTo(w, r, pingRoute, target, nil)
}

// Upstream returns a handler relaying to a fixed upstream.
func (h *Handler) Upstream(u upstreams.Upstream) http.HandlerFunc {
	headers := upstreams.Headers(u)
	return func(w http.ResponseWriter, r *http.Request) {
		h.relayTo(w, r, u.Path, u.SourceURL, headers)
	}
}

func (h *Handler) relayTo(w http.ResponseWriter, r *http.Request, route, target string, headers map[string]string) {
	res := h.relay.Call(r.Context(), target, headers)
	respondWithJSON(w, http.StatusOK, res.Payload())

	outcome := publishers.OutcomeRelayed
	if res.Failed() {
		outcome = publishers.OutcomeUpstreamError
	}
	evt := publishers.NewEvent(route, target, outcome)
	evt.StatusCode = res.StatusCode
	evt.DurationMs = res.Duration.Milliseconds()
	if res.Err != nil {
		evt.Error = res.Err.Error()
	}
	h.publish(r.Context(), evt)
}

// publish delivers evt in the background so the response is never held
// back by a sink. Wait drains these deliveries.
func (h *Handler) publish(ctx context.Context, evt publishers.Event) {
	if h.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.publishTimeout)

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		defer cancel()
		if _, err := h.events.Publish(ctx, evt); err != nil {
			h.log.ErrorObj("publishing relay event failed", "publish_error", map[string]any{
				"event_id": evt.ID,
				"route":    evt.Route,
				"error":    err.Error(),
			})
		}
	}()
}
