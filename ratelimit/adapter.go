package ratelimit

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/goliatone/go-paychain/transport"
)

// ThrottledAdapter gates an outbound transport adapter with an
// AdaptivePolicy keyed by request host.
type ThrottledAdapter struct {
	inner  transport.Adapter
	policy *AdaptivePolicy
}

func NewThrottledAdapter(inner transport.Adapter, policy *AdaptivePolicy) transport.Adapter {
	if inner == nil || policy == nil {
		return inner
	}
	return &ThrottledAdapter{inner: inner, policy: policy}
}

func (a *ThrottledAdapter) Kind() string {
	return a.inner.Kind()
}

func (a *ThrottledAdapter) Do(ctx context.Context, req transport.Request) (transport.Response, error) {
	key := Key{Endpoint: endpointHost(req.URL), Bucket: a.inner.Kind()}
	if err := a.policy.BeforeCall(ctx, key); err != nil {
		var throttled ThrottledError
		if errors.As(err, &throttled) {
			return transport.Response{}, throttled.ToServiceError()
		}
		return transport.Response{}, err
	}
	res, err := a.inner.Do(ctx, req)
	if err != nil {
		return res, err
	}
	if afterErr := a.policy.AfterCall(ctx, key, ResponseMeta{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
	}); afterErr != nil {
		return res, afterErr
	}
	return res, nil
}

func endpointHost(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return strings.TrimSpace(raw)
	}
	return parsed.Host
}

var _ transport.Adapter = (*ThrottledAdapter)(nil)
