package internaldefs

import (
	poaAuth "github.com/lucaaxano/poa-app-sub000"
)

// CounterDef binds a counter to its exported name.
type CounterDef struct {
	ID   poaAuth.MetricID
	Name string
	Help string
}

// HistogramDef binds a latency histogram to its exported name.
type HistogramDef struct {
	ID   poaAuth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for [poaAuth.Engine.AuditDropped].
const AuditDroppedName = "poa_auth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: poaAuth.MetricRegisterSuccess, Name: "poa_auth_register_success_total", Help: "Successful company registrations."},
	{ID: poaAuth.MetricRegisterDuplicate, Name: "poa_auth_register_duplicate_total", Help: "Registrations rejected for a taken email."},
	{ID: poaAuth.MetricLoginSuccess, Name: "poa_auth_login_success_total", Help: "Successful login attempts."},
	{ID: poaAuth.MetricLoginFailure, Name: "poa_auth_login_failure_total", Help: "Failed login attempts."},
	{ID: poaAuth.MetricLoginRateLimited, Name: "poa_auth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: poaAuth.MetricMFARequired, Name: "poa_auth_mfa_required_total", Help: "Logins answered with a second-factor handle."},
	{ID: poaAuth.MetricMFASuccess, Name: "poa_auth_mfa_success_total", Help: "Successful second-factor completions."},
	{ID: poaAuth.MetricMFAFailure, Name: "poa_auth_mfa_failure_total", Help: "Failed second-factor completions."},
	{ID: poaAuth.MetricMFAReplay, Name: "poa_auth_mfa_replay_total", Help: "Second-factor handles presented after use."},
	{ID: poaAuth.MetricRefreshSuccess, Name: "poa_auth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: poaAuth.MetricRefreshFailure, Name: "poa_auth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: poaAuth.MetricAuthenticateSuccess, Name: "poa_auth_authenticate_success_total", Help: "Accepted access tokens."},
	{ID: poaAuth.MetricAuthenticateFailure, Name: "poa_auth_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: poaAuth.MetricCacheHit, Name: "poa_auth_cache_hit_total", Help: "Identity cache hits."},
	{ID: poaAuth.MetricCacheMiss, Name: "poa_auth_cache_miss_total", Help: "Identity cache misses."},
	{ID: poaAuth.MetricCacheEvicted, Name: "poa_auth_cache_evicted_total", Help: "Identity cache entries dropped by the engine."},
	{ID: poaAuth.MetricLogout, Name: "poa_auth_logout_total", Help: "Logout operations."},
	{ID: poaAuth.MetricPasswordChangeSuccess, Name: "poa_auth_password_change_success_total", Help: "Successful password changes."},
	{ID: poaAuth.MetricPasswordChangeInvalidCurrent, Name: "poa_auth_password_change_invalid_current_total", Help: "Password changes with a wrong current password."},
	{ID: poaAuth.MetricPasswordChangeReuseRejected, Name: "poa_auth_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: poaAuth.MetricPasswordResetRequest, Name: "poa_auth_password_reset_request_total", Help: "Password reset requests."},
	{ID: poaAuth.MetricPasswordResetRequestThrottled, Name: "poa_auth_password_reset_request_throttled_total", Help: "Password reset requests dropped by the throttle."},
	{ID: poaAuth.MetricPasswordResetConfirmSuccess, Name: "poa_auth_password_reset_confirm_success_total", Help: "Successful password resets."},
	{ID: poaAuth.MetricPasswordResetConfirmFailure, Name: "poa_auth_password_reset_confirm_failure_total", Help: "Failed password resets."},
	{ID: poaAuth.MetricInvitationCreated, Name: "poa_auth_invitation_created_total", Help: "Created invitations."},
	{ID: poaAuth.MetricInvitationAccepted, Name: "poa_auth_invitation_accepted_total", Help: "Accepted invitations."},
	{ID: poaAuth.MetricInvitationAcceptFailure, Name: "poa_auth_invitation_accept_failure_total", Help: "Failed invitation acceptances."},
	{ID: poaAuth.MetricIdentityDeactivated, Name: "poa_auth_identity_deactivated_total", Help: "Identity deactivations."},
	{ID: poaAuth.MetricIdentityRoleChanged, Name: "poa_auth_identity_role_changed_total", Help: "Identity role changes."},
	{ID: poaAuth.MetricTOTPSetup, Name: "poa_auth_totp_setup_total", Help: "Started TOTP setups."},
	{ID: poaAuth.MetricTOTPEnabled, Name: "poa_auth_totp_enabled_total", Help: "Confirmed TOTP enrolments."},
	{ID: poaAuth.MetricTOTPDisabled, Name: "poa_auth_totp_disabled_total", Help: "TOTP disable operations."},
	{ID: poaAuth.MetricTOTPFailure, Name: "poa_auth_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: poaAuth.MetricTOTPSuccess, Name: "poa_auth_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: poaAuth.MetricBackupCodeUsed, Name: "poa_auth_backup_code_used_total", Help: "Consumed backup codes."},
	{ID: poaAuth.MetricBackupCodeFailed, Name: "poa_auth_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: poaAuth.MetricBackupCodeRegenerated, Name: "poa_auth_backup_code_regenerated_total", Help: "Backup-code regenerations."},
}

// HistogramDefs lists every latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: poaAuth.MetricAuthenticateLatency, Name: "poa_auth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramUpperBounds are the bucket bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last.
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

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// ApproxSum estimates the observed total in seconds from per-bucket counts,
// taking each bucket's upper bound (the last finite bound for +Inf).
func ApproxSum(raw [8]uint64) float64 {
	var sum float64
	for i, n := range raw {
		b := i
		if b >= len(HistogramUpperBounds) {
			b = len(HistogramUpperBounds) - 1
		}
		sum += float64(n) * HistogramUpperBounds[b]
	}
	return sum
}
