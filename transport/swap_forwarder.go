package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-paychain/core"
)

const (
	SwapContentType   = "application/x-borsh"
	HeaderSwapCaller  = "X-Paychain-Caller"
	HeaderSwapProgram = "X-Paychain-Program"
)

// SwapWire is the borsh body POSTed to the swap endpoint.
type SwapWire struct {
	Caller   solana.PublicKey
	Program  solana.PublicKey
	Accounts []SwapWireAccount
	Data     []byte
}

type SwapWireAccount struct {
	PublicKey  solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

type swapResponse struct {
	Reference string         `json:"reference"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SwapForwarder implements core.SwapExecutor over an Adapter. The
// instruction is not inspected; the endpoint owns its semantics.
type SwapForwarder struct {
	adapter  Adapter
	endpoint string
	headers  map[string]string
	timeout  time.Duration
}

type SwapForwarderOption func(*SwapForwarder)

func WithSwapHeaders(headers map[string]string) SwapForwarderOption {
	return func(f *SwapForwarder) {
		for key, value := range headers {
			if strings.TrimSpace(key) != "" {
				f.headers[strings.TrimSpace(key)] = value
			}
		}
	}
}

func WithSwapTimeout(timeout time.Duration) SwapForwarderOption {
	return func(f *SwapForwarder) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

func NewSwapForwarder(adapter Adapter, endpoint string, opts ...SwapForwarderOption) (*SwapForwarder, error) {
	if adapter == nil {
		return nil, fmt.Errorf("transport: swap adapter is required")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" && normalizeKind(adapter.Kind()) != KindDryRun {
		return nil, fmt.Errorf("transport: swap endpoint is required")
	}
	forwarder := &SwapForwarder{
		adapter:  adapter,
		endpoint: endpoint,
		headers:  map[string]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(forwarder)
		}
	}
	return forwarder, nil
}

func EncodeSwap(caller solana.PublicKey, instruction core.SwapInstruction) ([]byte, error) {
	wire := SwapWire{
		Caller:   caller,
		Program:  instruction.Program,
		Accounts: make([]SwapWireAccount, 0, len(instruction.Accounts)),
		Data:     append([]byte(nil), instruction.Data...),
	}
	for _, account := range instruction.Accounts {
		wire.Accounts = append(wire.Accounts, SwapWireAccount{
			PublicKey:  account.PublicKey,
			IsSigner:   account.IsSigner,
			IsWritable: account.IsWritable,
		})
	}
	encoded, err := bin.MarshalBorsh(&wire)
	if err != nil {
		return nil, fmt.Errorf("transport: encode swap: %w", err)
	}
	return encoded, nil
}

func DecodeSwap(body []byte) (SwapWire, error) {
	var wire SwapWire
	if err := bin.UnmarshalBorsh(&wire, body); err != nil {
		return SwapWire{}, fmt.Errorf("transport: decode swap: %w", err)
	}
	return wire, nil
}

func (f *SwapForwarder) Execute(ctx context.Context, caller solana.PublicKey, instruction core.SwapInstruction) (core.SwapResult, error) {
	if f == nil || f.adapter == nil {
		return core.SwapResult{}, transportError(
			"transport: swap forwarder is not configured",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	body, err := EncodeSwap(caller, instruction)
	if err != nil {
		return core.SwapResult{}, transportWrapError(err, goerrors.CategoryBadInput, "transport: swap instruction could not be encoded", http.StatusBadRequest, nil)
	}
	headers := map[string]string{
		"Content-Type":    SwapContentType,
		"Accept":          "application/json",
		HeaderSwapCaller:  caller.String(),
		HeaderSwapProgram: instruction.Program.String(),
	}
	for key, value := range f.headers {
		headers[key] = value
	}

	res, err := f.adapter.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     f.endpoint,
		Headers: headers,
		Body:    body,
		Timeout: f.timeout,
	})
	if err != nil {
		return core.SwapResult{}, err
	}
	metadata := map[string]any{
		"adapter":     f.adapter.Kind(),
		"status_code": res.StatusCode,
		"program":     instruction.Program.String(),
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		metadata["body"] = truncate(string(res.Body), 256)
		return core.SwapResult{}, transportError(
			fmt.Sprintf("transport: swap endpoint returned %d", res.StatusCode),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			metadata,
		)
	}

	var decoded swapResponse
	if len(res.Body) > 0 {
		if err := json.Unmarshal(res.Body, &decoded); err != nil {
			return core.SwapResult{}, transportWrapError(err, goerrors.CategoryExternal, "transport: swap response is not valid json", http.StatusBadGateway, metadata)
		}
	}
	for key, value := range decoded.Metadata {
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}
	return core.SwapResult{
		Reference: strings.TrimSpace(decoded.Reference),
		Metadata:  metadata,
	}, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

var _ core.SwapExecutor = (*SwapForwarder)(nil)
