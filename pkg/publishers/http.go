package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samvad-hq/samvad-relay/pkg/httpclient"
)

// EventIDHeader carries the event id so receivers can drop duplicates.
const EventIDHeader = "X-Relay-Event-Id"

const maxErrorSnippet = 512

// httpPublisher delivers events to a webhook as JSON.
type httpPublisher struct {
	id     string
	cfg    HTTPPublisherConfig
	client *resty.Client
	log    Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	client := httpclient.NewRestyHTTPClient(httpclient.Options{
		Timeout: time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
	})
	client.SetHeader("Content-Type", "application/json")
	client.SetHeaders(cfg.HTTP.Headers)

	return &httpPublisher{id: cfg.ID, cfg: *cfg.HTTP, client: client, log: log}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader(EventIDHeader, evt.ID).
		SetBody(evt).
		Execute(h.cfg.Method, h.cfg.URL)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if resp.IsError() {
		body := resp.Body()
		if len(body) > maxErrorSnippet {
			body = body[:maxErrorSnippet]
		}
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), strings.TrimSpace(string(body)))
	}

	h.log.DebugObj("event delivered to webhook", "http_delivery", map[string]any{
		"publisher_id": h.id,
		"event_id":     evt.ID,
		"status":       resp.StatusCode(),
	})
	return nil
}
