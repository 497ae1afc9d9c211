package internaldefs

import (
	goQrLogin "github.com/MrEthical07/goQrLogin"
)

// CounterDef binds a core counter ID to its exported metric name.
type CounterDef struct {
	ID   goQrLogin.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its exported metric name.
type HistogramDef struct {
	ID   goQrLogin.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goQrLogin.MetricInitSuccess, Name: "goqrlogin_init_success_total", Help: "Successful session initializations."},
	{ID: goQrLogin.MetricInitFailure, Name: "goqrlogin_init_failure_total", Help: "Failed session initializations."},
	{ID: goQrLogin.MetricScanSuccess, Name: "goqrlogin_scan_success_total", Help: "Successful QR scans."},
	{ID: goQrLogin.MetricScanFailure, Name: "goqrlogin_scan_failure_total", Help: "Failed QR scans."},
	{ID: goQrLogin.MetricApproveSuccess, Name: "goqrlogin_approve_success_total", Help: "Successful session approvals."},
	{ID: goQrLogin.MetricApproveFailure, Name: "goqrlogin_approve_failure_total", Help: "Failed session approvals."},
	{ID: goQrLogin.MetricPollPending, Name: "goqrlogin_poll_pending_total", Help: "Polls observing a pending session."},
	{ID: goQrLogin.MetricPollDelivered, Name: "goqrlogin_poll_delivered_total", Help: "Polls that delivered a login ticket."},
	{ID: goQrLogin.MetricPollFailure, Name: "goqrlogin_poll_failure_total", Help: "Failed poll operations."},
	{ID: goQrLogin.MetricCancelSuccess, Name: "goqrlogin_cancel_success_total", Help: "Successful session cancellations."},
	{ID: goQrLogin.MetricCancelFailure, Name: "goqrlogin_cancel_failure_total", Help: "Failed session cancellations."},
	{ID: goQrLogin.MetricRateLimitHit, Name: "goqrlogin_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: goQrLogin.MetricReplayDetected, Name: "goqrlogin_replay_detected_total", Help: "Detected nonce replay attempts."},
	{ID: goQrLogin.MetricHijackSuspected, Name: "goqrlogin_hijack_suspected_total", Help: "Polls flagged for session hijack indicators."},
	{ID: goQrLogin.MetricSessionCreated, Name: "goqrlogin_session_created_total", Help: "Created sessions."},
	{ID: goQrLogin.MetricSessionExpired, Name: "goqrlogin_session_expired_total", Help: "Sessions marked expired."},
	{ID: goQrLogin.MetricAttemptsExceeded, Name: "goqrlogin_attempts_exceeded_total", Help: "Sessions cancelled for exceeding the attempt cap."},
}

// HistogramDefs lists every exported histogram in a stable order.
var HistogramDefs = []HistogramDef{
	{ID: goQrLogin.MetricPollLatency, Name: "goqrlogin_poll_latency_seconds", Help: "Poll latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the core
// histogram layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are instrument-name-safe forms of HistogramBounds.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed layout.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
