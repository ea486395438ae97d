package inbound

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-paychain/core"
)

const DefaultReplayWindow = 10 * time.Minute

// Receiver is the slice of the settlement service the dispatcher needs.
type Receiver interface {
	ReceiveCrossChain(ctx context.Context, req core.ReceiveCrossChainRequest) (core.InboundSettlement, error)
}

// ReplayReleaser is implemented by replay ledgers that can forget a claim.
type ReplayReleaser interface {
	Release(ctx context.Context, key string)
}

type Result struct {
	Accepted   bool
	StatusCode int
	Settlement core.InboundSettlement
	Metadata   map[string]any
}

type Dispatcher struct {
	Receiver Receiver
	Replay   core.ReplayLedger
	KeyTTL   time.Duration

	mu       sync.Mutex
	inflight map[string]int
}

func NewDispatcher(receiver Receiver, replay core.ReplayLedger) *Dispatcher {
	return &Dispatcher{
		Receiver: receiver,
		Replay:   replay,
		KeyTTL:   DefaultReplayWindow,
	}
}

// ReplayKey scopes a message id to its source chain.
func ReplayKey(sourceChainSelector uint64, messageID core.Bytes32) string {
	return "relay:" + strconv.FormatUint(sourceChainSelector, 10) + ":" + messageID.String()
}

// DispatchJSON parses body as a RelayEnvelope and dispatches it.
func (d *Dispatcher) DispatchJSON(ctx context.Context, body []byte) (Result, error) {
	envelope, err := ParseEnvelope(body)
	if err != nil {
		return Result{StatusCode: http.StatusBadRequest}, err
	}
	return d.Dispatch(ctx, envelope)
}

func (d *Dispatcher) Dispatch(ctx context.Context, envelope RelayEnvelope) (Result, error) {
	if d == nil || d.Receiver == nil {
		return Result{}, inboundInternal("inbound: dispatcher is not configured", nil)
	}
	if err := envelope.Validate(); err != nil {
		return Result{StatusCode: http.StatusBadRequest}, err
	}
	req, err := envelope.Request()
	if err != nil {
		return Result{StatusCode: http.StatusBadRequest}, err
	}
	metadata := map[string]any{
		"message_id":            req.Message.MessageID.String(),
		"source_chain_selector": req.Message.SourceChainSelector,
		"relay":                 req.Relay.String(),
	}

	key := ReplayKey(req.Message.SourceChainSelector, req.Message.MessageID)
	if d.Replay != nil {
		claimed, inflight, err := d.claim(ctx, key)
		if err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: replay claim failed",
				http.StatusInternalServerError,
				core.ErrorCodeOperationFailed,
				metadata,
			)
		}
		if !claimed {
			// Only a finished delivery is acknowledged; one still running
			// may fail and release its claim.
			if inflight {
				metadata["in_flight"] = true
				return Result{StatusCode: http.StatusConflict, Metadata: metadata}, inboundError(
					"inbound: relay message is still being processed",
					goerrors.CategoryConflict,
					http.StatusConflict,
					core.ErrorCodeConflict,
					metadata,
				)
			}
			metadata["deduped"] = true
			return Result{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata:   metadata,
			}, nil
		}
	}

	settlement, err := d.Receiver.ReceiveCrossChain(ctx, req)
	if err != nil {
		// A message the durable register already holds stays claimed.
		if !errors.Is(err, core.ErrDuplicateMessage) {
			d.release(ctx, key)
		}
		d.clearInflight(key)
		mapped := handlerError(err, metadata)
		return Result{StatusCode: core.ErrorStatus(mapped), Metadata: metadata}, mapped
	}
	d.clearInflight(key)
	return Result{
		Accepted:   true,
		StatusCode: http.StatusAccepted,
		Settlement: settlement,
		Metadata:   metadata,
	}, nil
}

// claim takes the replay claim for key and marks it in flight in one step,
// so a concurrent duplicate sees either the running delivery or neither.
func (d *Dispatcher) claim(ctx context.Context, key string) (claimed bool, inflight bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	claimed, err = d.Replay.Claim(ctx, key, d.keyTTL())
	if err != nil {
		return false, false, err
	}
	if !claimed {
		return false, d.inflight[key] > 0, nil
	}
	if d.inflight == nil {
		d.inflight = map[string]int{}
	}
	d.inflight[key]++
	return true, true, nil
}

func (d *Dispatcher) clearInflight(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[key] <= 1 {
		delete(d.inflight, key)
		return
	}
	d.inflight[key]--
}

func (d *Dispatcher) release(ctx context.Context, key string) {
	if d.Replay == nil {
		return
	}
	if releaser, ok := d.Replay.(ReplayReleaser); ok {
		releaser.Release(ctx, key)
	}
}

func (d *Dispatcher) keyTTL() time.Duration {
	if d == nil || d.KeyTTL <= 0 {
		return DefaultReplayWindow
	}
	return d.KeyTTL
}

// handlerError keeps service envelopes intact and maps anything else into
// one, tagged with the delivery metadata.
func handlerError(err error, metadata map[string]any) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}
	mapped := core.MapError(err)
	if goerrors.As(mapped, &rich) && rich != nil {
		rich.WithMetadata(metadata)
	}
	return mapped
}
