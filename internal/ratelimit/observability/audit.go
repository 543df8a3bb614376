// Package observability provides audit logging helpers for the ratelimit module.
package observability

import (
	"context"
	"log/slog"

	"boxoffice/pkg/requestcontext"
)

// Audit event names.
const (
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventBlacklistDenied   = "blacklist_denied"
	EventWhitelistBypass   = "whitelist_bypass"
	EventPenaltyEscalated  = "penalty_escalated"
	EventStoreFailure      = "rate_limit_store_failure"
	EventDegraded          = "rate_limit_degraded"
	EventRecovered         = "rate_limit_recovered"
)

// LogAudit logs a security-relevant admission event at level, tagged so log
// pipelines can route it separately from request logs.
func LogAudit(ctx context.Context, logger *slog.Logger, level slog.Level, event string, attrList ...any) {
	if logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	args := append(attrList, "event", event, "log_type", "audit")
	logger.Log(ctx, level, event, args...)
}
