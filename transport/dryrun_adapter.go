package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	goerrors "github.com/goliatone/go-errors"
)

const KindDryRun = "dryrun"

// DryRunAdapter answers every request with 200 and a reference derived from
// the keccak hash of the body. It keeps the last request for inspection.
type DryRunAdapter struct {
	mu   sync.Mutex
	last *Request
}

func NewDryRunAdapter() *DryRunAdapter {
	return &DryRunAdapter{}
}

func (*DryRunAdapter) Kind() string {
	return KindDryRun
}

func (a *DryRunAdapter) Do(_ context.Context, req Request) (Response, error) {
	if a == nil {
		return Response{}, transportError(
			"transport: dry-run adapter is nil",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindDryRun},
		)
	}
	copied := req
	copied.Body = append([]byte(nil), req.Body...)
	a.mu.Lock()
	a.last = &copied
	a.mu.Unlock()

	body, err := json.Marshal(swapResponse{
		Reference: "dryrun:" + hexutil.Encode(crypto.Keccak256(req.Body)),
		Metadata:  map[string]any{"dry_run": true},
	})
	if err != nil {
		return Response{}, err
	}
	return Response{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
		Metadata:   map[string]any{"kind": KindDryRun},
	}, nil
}

// LastRequest returns the most recent request, if any.
func (a *DryRunAdapter) LastRequest() (Request, bool) {
	if a == nil {
		return Request{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return Request{}, false
	}
	return *a.last, true
}

var _ Adapter = (*DryRunAdapter)(nil)
