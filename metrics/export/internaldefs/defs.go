package internaldefs

import (
	minidrive "github.com/MrEthical07/minidrive"
)

type CounterDef struct {
	ID   minidrive.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   minidrive.MetricID
	Name string
	Help string
}

const AuditDroppedName = "minidrive_audit_dropped_total"

const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

var CounterDefs = []CounterDef{
	{ID: minidrive.MetricLoginSuccess, Name: "minidrive_login_success_total", Help: "Successful logins."},
	{ID: minidrive.MetricLoginFailure, Name: "minidrive_login_failure_total", Help: "Rejected or failed logins."},
	{ID: minidrive.MetricSignupSuccess, Name: "minidrive_signup_success_total", Help: "Successful signups."},
	{ID: minidrive.MetricSignupFailure, Name: "minidrive_signup_failure_total", Help: "Rejected or failed signups."},
	{ID: minidrive.MetricLogout, Name: "minidrive_logout_total", Help: "Explicit logouts."},
	{ID: minidrive.MetricSessionRehydrated, Name: "minidrive_session_rehydrated_total", Help: "Sessions restored from a persisted token."},
	{ID: minidrive.MetricSessionRehydrateFailed, Name: "minidrive_session_rehydrate_failed_total", Help: "Persisted tokens discarded at startup."},
	{ID: minidrive.MetricSessionInvalidated, Name: "minidrive_session_invalidated_total", Help: "Sessions torn down by a 401 response."},
	{ID: minidrive.MetricUserUpdated, Name: "minidrive_user_updated_total", Help: "In-session user record replacements."},
	{ID: minidrive.MetricRequests, Name: "minidrive_requests_total", Help: "API responses received."},
	{ID: minidrive.MetricRequestErrors, Name: "minidrive_request_errors_total", Help: "API responses with a 4xx or 5xx status other than 401."},
	{ID: minidrive.MetricUnauthorized, Name: "minidrive_unauthorized_total", Help: "401 responses on authorized requests."},
	{ID: minidrive.MetricTransportErrors, Name: "minidrive_transport_errors_total", Help: "Requests that failed before a response arrived."},
}

var HistogramDefs = []HistogramDef{
	{ID: minidrive.MetricRequestLatency, Name: "minidrive_request_latency_seconds", Help: "API request latency."},
}

// HistogramBounds are the upper bounds in seconds of the first seven
// buckets; the eighth is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket in instrument names.
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

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals, as
// Prometheus and OTel expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
