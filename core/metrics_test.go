package core

import "testing"

func TestMetricNames(t *testing.T) {
	if got := OperationCounter("pay_request"); got != "paychain.pay_request.total" {
		t.Fatalf("unexpected counter name %q", got)
	}
	if got := OperationDuration("pay_request"); got != "paychain.pay_request.duration_ms" {
		t.Fatalf("unexpected histogram name %q", got)
	}
	if got := JobPhaseCounter("retry"); got != "paychain.job.retry.total" {
		t.Fatalf("unexpected job counter name %q", got)
	}
}

func TestOperationTags_PromotesKnownFields(t *testing.T) {
	tags := operationTags("transition_payment", "success", map[string]any{
		"status_to":             PaymentStatus("failed"),
		"source_chain_selector": uint64(77),
		"event_name":            nil,
		"payment_id":            "0x01",
	})
	if tags["operation"] != "transition_payment" || tags["status"] != "success" {
		t.Fatalf("unexpected base tags %#v", tags)
	}
	if tags["status_to"] != "failed" || tags["source_chain_selector"] != "77" {
		t.Fatalf("expected promoted fields, got %#v", tags)
	}
	if _, ok := tags["event_name"]; ok {
		t.Fatalf("nil field must not become a label")
	}
	if _, ok := tags["payment_id"]; ok {
		t.Fatalf("payment_id must not become a label")
	}
}

func TestCloneTags_NeverNil(t *testing.T) {
	if cloneTags(nil) == nil {
		t.Fatalf("expected empty map")
	}
	src := map[string]string{"a": "1"}
	copied := cloneTags(src)
	copied["a"] = "2"
	if src["a"] != "1" {
		t.Fatalf("clone shares storage")
	}
}
