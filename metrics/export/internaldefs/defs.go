package internaldefs

import (
	"strconv"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/metrics"
)

// Def names one exported series.
type Def struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported next to the engine counters.
const AuditDroppedName = "authcore_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped under dispatcher backpressure."

// KeyInfoName is a constant-1 gauge whose labels describe the signing key.
const KeyInfoName = "authcore_signing_key_info"

const KeyInfoHelp = "Active signing key; the value is always 1."

// KeyInfoSource is implemented by sources that can describe their signing
// key. *authcore.Engine does.
type KeyInfoSource interface {
	SecurityReport() authcore.SecurityReport
}

// KeyLabels returns the label pairs of KeyInfoName in a fixed order.
func KeyLabels(r authcore.SecurityReport) [][2]string {
	ephemeral := "false"
	if r.EphemeralSigningKey {
		ephemeral = "true"
	}
	return [][2]string{
		{"alg", r.SigningAlgorithm},
		{"kid", r.KeyID},
		{"bits", strconv.Itoa(r.KeyBits)},
		{"ephemeral", ephemeral},
	}
}

var CounterDefs = []Def{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected for bad credentials or account status."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Logins refused because the account was locked."},
	{ID: authcore.MetricLoginUnverified, Name: "authcore_login_unverified_total", Help: "Logins refused because the email was not verified."},
	{ID: authcore.MetricLockoutTriggered, Name: "authcore_lockout_triggered_total", Help: "Accounts locked after repeated failures."},
	{ID: authcore.MetricAccountUnlocked, Name: "authcore_account_unlocked_total", Help: "Administrative unlocks."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: authcore.MetricRefreshReplay, Name: "authcore_refresh_replay_total", Help: "Revoked refresh tokens presented again."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Requests denied by the rate limiter."},
	{ID: authcore.MetricRateLimitFailOpen, Name: "authcore_rate_limit_fail_open_total", Help: "Requests allowed because the counter store was unavailable."},
	{ID: authcore.MetricAccountCreated, Name: "authcore_account_created_total", Help: "Registered accounts."},
	{ID: authcore.MetricAccountDuplicate, Name: "authcore_account_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricPasswordResetFailure, Name: "authcore_password_reset_failure_total", Help: "Rejected reset tokens."},
	{ID: authcore.MetricEmailVerificationRequest, Name: "authcore_email_verification_request_total", Help: "Verification codes issued."},
	{ID: authcore.MetricEmailVerificationSuccess, Name: "authcore_email_verification_success_total", Help: "Verified email addresses."},
	{ID: authcore.MetricEmailVerificationFailure, Name: "authcore_email_verification_failure_total", Help: "Rejected verification codes."},
	{ID: authcore.MetricPasswordUpgraded, Name: "authcore_password_upgraded_total", Help: "Password hashes upgraded on login."},
}

var HistogramDefs = []Def{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the buckets filled by
// the engine's latency histogram.
var HistogramBounds = [metrics.BucketCount]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds as instrument name suffixes.
var HistogramBoundSuffix = [metrics.BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// Cumulative pads raw to the bucket count and turns per-bucket counts into
// the running totals exporters report.
func Cumulative(raw []uint64) [metrics.BucketCount]uint64 {
	var out [metrics.BucketCount]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
