package main

import (
	"context"
	"strings"

	"github.com/goliatone/go-paychain/core"
	"github.com/goliatone/go-paychain/transport"
)

// newEventSink forwards lifecycle events to events.sink_url, or logs them
// when no endpoint is configured.
func newEventSink(rt *runtime) core.EventSink {
	endpoint := strings.TrimSpace(rt.cfg.Events.SinkURL)
	if endpoint != "" {
		adapter, err := rt.outboundAdapter(transport.KindREST, rt.cfg.Events.Timeout)
		if err == nil {
			forwarder, err := transport.NewEventForwarder(adapter, endpoint,
				transport.WithEventSigningSecret(rt.cfg.Events.SigningSecret),
				transport.WithEventTimeout(rt.cfg.Events.Timeout),
			)
			if err == nil {
				return forwarder
			}
			rt.logger.Warn("event forwarder disabled", "endpoint", endpoint, "error", err)
		} else {
			rt.logger.Warn("event adapter disabled", "endpoint", endpoint, "error", err)
		}
	}
	logger := rt.logs.GetLogger("paychain.events")
	return core.EventSinkFunc(func(_ context.Context, event core.LifecycleEvent) error {
		logger.Info("lifecycle event",
			"event_id", event.ID,
			"event", event.Name,
			"aggregate_id", event.AggregateID,
		)
		return nil
	})
}
