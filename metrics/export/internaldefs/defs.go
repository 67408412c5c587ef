package internaldefs

import (
	authcore "github.com/quillnotes/authcore"
)

// CounterDef binds a core metric ID to its stable exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its stable exported name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Both exporters render exactly
// this set, in this order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginIssued, Name: "authcore_login_issued_total", Help: "Issued session token pairs."},
	{ID: authcore.MetricRotateSuccess, Name: "authcore_rotate_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRotateFailure, Name: "authcore_rotate_failure_total", Help: "Rejected refresh rotations."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Rotations attempted with already-spent refresh tokens."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricVerifySuccess, Name: "authcore_verify_success_total", Help: "Access tokens that passed verification."},
	{ID: authcore.MetricVerifyFailure, Name: "authcore_verify_failure_total", Help: "Access tokens that failed verification."},
	{ID: authcore.MetricAPITokenAuthorized, Name: "authcore_api_token_authorized_total", Help: "Successful API token authorizations."},
	{ID: authcore.MetricAPITokenUnauthorized, Name: "authcore_api_token_unauthorized_total", Help: "API credentials that identified no token."},
	{ID: authcore.MetricAPITokenForbidden, Name: "authcore_api_token_forbidden_total", Help: "Valid API tokens missing the required scope."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Requests blocked by the fixed-window limiter."},
	{ID: authcore.MetricRateLimitFailOpen, Name: "authcore_rate_limit_fail_open_total", Help: "Rate checks answered by the local fallback limiter."},
	{ID: authcore.MetricEdgeRedirect, Name: "authcore_edge_redirect_total", Help: "Edge requests redirected to the login page."},
	{ID: authcore.MetricEdgeSilentRefresh, Name: "authcore_edge_silent_refresh_total", Help: "Successful in-band refreshes at the edge."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricVerifyLatency, Name: "authcore_verify_latency_seconds", Help: "Access verification latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds.
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

// HistogramBoundSuffix holds name-safe forms of HistogramBounds for backends
// without labeled buckets.
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

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
