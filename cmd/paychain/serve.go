package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	paychain "github.com/goliatone/go-paychain"
	"github.com/goliatone/go-paychain/adapters/gojob"
	"github.com/goliatone/go-paychain/core"
	"github.com/goliatone/go-paychain/httpapi"
	"github.com/goliatone/go-paychain/inbound"
	"github.com/goliatone/go-paychain/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox delivery worker",
		Long: `Run the HTTP API and the outbox delivery worker.

Committed lifecycle events are claimed from the outbox every
dispatch.poll_interval, queued, and published to events.sink_url (or the
log when unset). Prometheus metrics are served on /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			recorder := metrics.NewPrometheusRecorder(metrics.WithRegistry(prometheus.NewRegistry()))
			rt, err := c.open(cmd, core.WithMetricsRecorder(recorder))
			if err != nil {
				return err
			}
			defer rt.Close()
			if addr == "" {
				addr = rt.cfg.HTTP.Addr
			}

			jobs := gojob.NewMemoryQueue()
			defer jobs.Close()
			dispatcher, err := rt.svc.NewOutboxDispatcher(gojob.NewEventSink(jobs))
			if err != nil {
				return err
			}
			consumer := gojob.NewConsumer(jobs,
				gojob.WithLifecycleDispatcher(dispatcher),
				gojob.WithPublishSink(newEventSink(rt)),
				gojob.WithLogger(rt.logs.GetLogger("paychain.worker")),
				gojob.WithHooks(gojob.NewMetricsHook(recorder)),
			)

			facade, err := paychain.NewFacade(rt.svc, paychain.WithLifecycleDispatcher(dispatcher))
			if err != nil {
				return err
			}
			relay := inbound.NewDispatcher(rt.svc, core.NewMemoryReplayLedger(rt.cfg.Relay.ReplayWindow))
			relay.KeyTTL = rt.cfg.Relay.ReplayWindow
			server, err := httpapi.NewServer(facade,
				httpapi.WithRelayDispatcher(relay),
				httpapi.WithMetricsHandler(recorder.Handler()),
				httpapi.WithLogger(rt.logs.GetLogger("paychain.http")),
				httpapi.WithAmountDecimals(rt.cfg.Amount.Decimals),
				httpapi.WithMaxBodyBytes(rt.cfg.HTTP.MaxBodyBytes),
				httpapi.WithSignatureSkew(rt.cfg.HTTP.SignatureSkew),
				httpapi.WithRequestNonces(core.NewMemoryReplayLedger(2*rt.cfg.HTTP.SignatureSkew)),
			)
			if err != nil {
				return err
			}

			workerDone := make(chan error, 1)
			go func() {
				workerDone <- consumer.Run(ctx, gojob.DefaultIdleWait)
			}()
			go scheduleDispatch(ctx, rt, jobs, rt.cfg.Dispatch.PollInterval)

			serveErr := server.ListenAndServe(ctx, addr)
			stop()
			if err := <-workerDone; err != nil && serveErr == nil && ctx.Err() == nil {
				serveErr = err
			}
			rt.logger.Info("paychain stopped", "pending_jobs", jobs.Len(), "dead_letters", len(jobs.DeadLetters()))
			return serveErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (http.addr when empty)")
	return cmd
}

// scheduleDispatch enqueues an outbox drain every interval while the queue
// is idle.
func scheduleDispatch(ctx context.Context, rt *runtime, jobs *gojob.MemoryQueue, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if jobs.Len() > 0 {
				continue
			}
			if err := gojob.ScheduleDispatch(ctx, jobs, rt.svc.Config().Outbox.BatchSize); err != nil {
				rt.logger.Warn("schedule outbox dispatch failed", "error", err)
			}
		}
	}
}
