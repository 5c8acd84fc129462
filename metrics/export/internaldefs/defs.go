package internaldefs

import (
	ledgerAuth "github.com/MrEthical07/ledgerAuth"
)

// Series family names. Per-flow counters share one family and are told apart
// by their flow, step and outcome labels.
const (
	FlowOperationsName   = "ledgerauth_flow_operations_total"
	ClientRejectionsName = "ledgerauth_client_rejections_total"
	BackendLatencyName   = "ledgerauth_backend_latency_seconds"
	AuditDroppedName     = "ledgerauth_audit_dropped_total"
)

const (
	FlowOperationsHelp   = "Auth flow operations by flow, step and outcome."
	ClientRejectionsHelp = "Operations stopped before or around the backend call, by reason."
	BackendLatencyHelp   = "Backend call latency."
	AuditDroppedHelp     = "Audit events dropped because the buffer was full."
)

// Flow label values.
const (
	FlowLogin       = "login"
	FlowSignup      = "signup"
	FlowVerifyEmail = "verify_email"
	FlowReset       = "reset"
	FlowLogout      = "logout"
)

// FlowCounter places one client counter in the flow operations family.
type FlowCounter struct {
	ID      ledgerAuth.MetricID
	Flow    string
	Step    string
	Outcome string
}

// RejectionCounter places one cross-flow counter in the rejections family.
type RejectionCounter struct {
	ID     ledgerAuth.MetricID
	Reason string
}

// FlowCounters lists the per-flow series in export order.
var FlowCounters = []FlowCounter{
	{ID: ledgerAuth.MetricLoginSubmitSuccess, Flow: FlowLogin, Step: "submit", Outcome: "success"},
	{ID: ledgerAuth.MetricLoginSubmitFailure, Flow: FlowLogin, Step: "submit", Outcome: "failure"},
	{ID: ledgerAuth.MetricLoginUnverified, Flow: FlowLogin, Step: "submit", Outcome: "unverified"},
	{ID: ledgerAuth.MetricOTPVerifySuccess, Flow: FlowLogin, Step: "verify_code", Outcome: "success"},
	{ID: ledgerAuth.MetricOTPVerifyFailure, Flow: FlowLogin, Step: "verify_code", Outcome: "failure"},
	{ID: ledgerAuth.MetricOTPResend, Flow: FlowLogin, Step: "resend", Outcome: "success"},
	{ID: ledgerAuth.MetricOTPResendFailure, Flow: FlowLogin, Step: "resend", Outcome: "failure"},
	{ID: ledgerAuth.MetricSignupSuccess, Flow: FlowSignup, Step: "register", Outcome: "success"},
	{ID: ledgerAuth.MetricSignupFailure, Flow: FlowSignup, Step: "register", Outcome: "failure"},
	{ID: ledgerAuth.MetricSignupDuplicate, Flow: FlowSignup, Step: "register", Outcome: "duplicate"},
	{ID: ledgerAuth.MetricEmailVerificationSuccess, Flow: FlowVerifyEmail, Step: "confirm", Outcome: "success"},
	{ID: ledgerAuth.MetricEmailVerificationFailure, Flow: FlowVerifyEmail, Step: "confirm", Outcome: "failure"},
	{ID: ledgerAuth.MetricPasswordResetRequest, Flow: FlowReset, Step: "request_code", Outcome: "success"},
	{ID: ledgerAuth.MetricPasswordResetRequestFailure, Flow: FlowReset, Step: "request_code", Outcome: "failure"},
	{ID: ledgerAuth.MetricPasswordResetConfirmSuccess, Flow: FlowReset, Step: "confirm", Outcome: "success"},
	{ID: ledgerAuth.MetricPasswordResetConfirmFailure, Flow: FlowReset, Step: "confirm", Outcome: "failure"},
	{ID: ledgerAuth.MetricLogout, Flow: FlowLogout, Step: "logout", Outcome: "success"},
	{ID: ledgerAuth.MetricLogoutBackendFailure, Flow: FlowLogout, Step: "logout", Outcome: "backend_failure"},
}

// RejectionCounters lists the cross-flow series in export order.
var RejectionCounters = []RejectionCounter{
	{ID: ledgerAuth.MetricValidationRejected, Reason: "validation"},
	{ID: ledgerAuth.MetricTransportFailure, Reason: "transport"},
	{ID: ledgerAuth.MetricFlowBusy, Reason: "busy"},
	{ID: ledgerAuth.MetricFlowAbandoned, Reason: "abandoned"},
}

// LatencyBounds are the backend latency bucket upper bounds in Prometheus
// le notation, matching the client's millisecond buckets.
var LatencyBounds = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// CumulativeLatency returns running bucket totals for the backend latency
// histogram in snapshot. Missing or short bucket slices count as zero.
func CumulativeLatency(snapshot ledgerAuth.MetricsSnapshot) [8]uint64 {
	var out [8]uint64
	raw := snapshot.Histograms[ledgerAuth.MetricBackendLatency]
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
