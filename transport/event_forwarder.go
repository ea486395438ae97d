package transport

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-paychain/core"
)

const (
	HeaderEventID        = "X-Paychain-Event-Id"
	HeaderEventName      = "X-Paychain-Event"
	HeaderEventSignature = "X-Paychain-Signature"
)

type eventWire struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AggregateID string         `json:"aggregate_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// EventForwarder is a core.EventSink that POSTs lifecycle events as JSON.
// With a signing secret the body is signed with HMAC-SHA256.
type EventForwarder struct {
	adapter  Adapter
	endpoint string
	secret   []byte
	timeout  time.Duration
}

type EventForwarderOption func(*EventForwarder)

func WithEventSigningSecret(secret string) EventForwarderOption {
	return func(f *EventForwarder) {
		if trimmed := strings.TrimSpace(secret); trimmed != "" {
			f.secret = []byte(trimmed)
		}
	}
}

func WithEventTimeout(timeout time.Duration) EventForwarderOption {
	return func(f *EventForwarder) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

func NewEventForwarder(adapter Adapter, endpoint string, opts ...EventForwarderOption) (*EventForwarder, error) {
	if adapter == nil {
		return nil, fmt.Errorf("transport: event adapter is required")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" && normalizeKind(adapter.Kind()) != KindDryRun {
		return nil, fmt.Errorf("transport: event endpoint is required")
	}
	forwarder := &EventForwarder{adapter: adapter, endpoint: endpoint}
	for _, opt := range opts {
		if opt != nil {
			opt(forwarder)
		}
	}
	return forwarder, nil
}

// SignEventBody returns the 0x hex HMAC-SHA256 of body under secret.
func SignEventBody(secret []byte, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hexutil.Encode(mac.Sum(nil))
}

func (f *EventForwarder) Publish(ctx context.Context, event core.LifecycleEvent) error {
	if f == nil || f.adapter == nil {
		return transportError("transport: event forwarder is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	body, err := json.Marshal(eventWire{
		ID:          event.ID,
		Name:        event.Name,
		AggregateID: event.AggregateID,
		Payload:     event.Payload,
		Metadata:    event.Metadata,
		OccurredAt:  event.OccurredAt.UTC(),
	})
	if err != nil {
		return transportWrapError(err, goerrors.CategoryBadInput, "transport: event could not be encoded", http.StatusBadRequest, nil)
	}
	headers := map[string]string{
		"Content-Type":  "application/json",
		HeaderEventID:   event.ID,
		HeaderEventName: event.Name,
	}
	if len(f.secret) > 0 {
		headers[HeaderEventSignature] = SignEventBody(f.secret, body)
	}
	res, err := f.adapter.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     f.endpoint,
		Headers: headers,
		Body:    body,
		Timeout: f.timeout,
	})
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return transportError(
			fmt.Sprintf("transport: event endpoint returned %d", res.StatusCode),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"event_id":    event.ID,
				"status_code": res.StatusCode,
				"body":        truncate(string(res.Body), 256),
			},
		)
	}
	return nil
}

var _ core.EventSink = (*EventForwarder)(nil)
