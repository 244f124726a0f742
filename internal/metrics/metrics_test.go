package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	// Record a single request and ensure it appears in the export.
	RecordRequest("POST", "/v1/search", 200, 42)

	out := Export()
	if !strings.Contains(out, "kumo_http_requests_total{method=\"POST\",path=\"/v1/search\",status=\"200\"}") {
		t.Fatalf("expected HTTP request metric for POST /v1/search in export, got:\n%s", out)
	}
	if !strings.Contains(out, "kumo_http_request_duration_ms_sum") || !strings.Contains(out, "kumo_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestRecordFlowMetrics(t *testing.T) {
	RecordFlow("example-books", "search", "ok", 120)
	RecordFlow("example-books", "search", "error", 15)

	out := Export()
	if !strings.Contains(out, "kumo_flows_total{rule=\"example-books\",flow=\"search\",status=\"ok\"}") {
		t.Fatalf("expected flows_total ok counter, got:\n%s", out)
	}
	if !strings.Contains(out, "kumo_flows_total{rule=\"example-books\",flow=\"search\",status=\"error\"}") {
		t.Fatalf("expected flows_total error counter, got:\n%s", out)
	}
	if !strings.Contains(out, "kumo_flow_duration_ms_sum{rule=\"example-books\",flow=\"search\"}") {
		t.Fatalf("expected flow duration sum, got:\n%s", out)
	}
}

func TestRecordChallengeMetrics(t *testing.T) {
	RecordChallengeDetection("cloudflare_js")
	RecordChallengeHandled("cloudflare_js", "success")

	out := Export()
	if !strings.Contains(out, "kumo_challenge_detections_total{kind=\"cloudflare_js\"}") {
		t.Fatalf("expected challenge detection counter, got:\n%s", out)
	}
	if !strings.Contains(out, "kumo_challenge_handled_total{kind=\"cloudflare_js\",outcome=\"success\"}") {
		t.Fatalf("expected challenge handled counter, got:\n%s", out)
	}
}
