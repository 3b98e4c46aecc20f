// command_execution_readiness.go — Shared command execution readiness model for doctor/health.
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dev-console/dev-console/internal/capture"
)

const (
	commandExecutionWindow      = 5 * time.Minute
	commandFailureWarnThreshold = 1
	commandFailureFailThreshold = 3
	commandPendingStallWarnAge  = 45 * time.Second
	commandPendingStallFailAge  = 2 * time.Minute
)

// CommandExecutionInfo summarizes async command execution reliability.
type CommandExecutionInfo struct {
	Ready                bool    `json:"ready"`
	Status               string  `json:"status"` // "pass", "warn", "fail"
	Detail               string  `json:"detail"`
	WindowSeconds        int     `json:"window_seconds"`
	QueueDepth           int     `json:"queue_depth"`
	PendingCount         int     `json:"pending_count"`
	OldestPendingAgeMs   int64   `json:"oldest_pending_age_ms,omitempty"`
	RecentSuccessCount   int     `json:"recent_success_count"`
	RecentFailedCount    int     `json:"recent_failed_count"`
	RecentExpiredCount   int     `json:"recent_expired_count"`
	RecentTimeoutCount   int     `json:"recent_timeout_count"`
	RecentErrorCount     int     `json:"recent_error_count"`
	RecentCancelledCount int     `json:"recent_cancelled_count"`
	RecentFailureRatePct float64 `json:"recent_failure_rate_pct"`
	LastSuccessAt        string  `json:"last_success_at,omitempty"`
	LastSuccessAgeMs     int64   `json:"last_success_age_ms,omitempty"`
}

func buildCommandExecutionInfo(cap *capture.Capture) CommandExecutionInfo {
	return buildCommandExecutionInfoAt(cap, time.Now())
}

func buildCommandExecutionInfoAt(cap *capture.Capture, now time.Time) CommandExecutionInfo {
	info := CommandExecutionInfo{
		Ready:         true,
		Status:        "pass",
		WindowSeconds: int(commandExecutionWindow.Seconds()),
	}
	if cap == nil {
		info.Ready = false
		info.Status = "fail"
		info.Detail = "Capture not initialized"
		return info
	}

	pending := cap.GetPendingCommands()
	failed := cap.GetFailedCommands()
	completed := cap.GetCompletedCommands()

	info.QueueDepth = cap.QueueDepth()
	info.PendingCount = len(pending)

	var oldestPendingAge time.Duration
	for _, cmd := range pending {
		if cmd == nil || cmd.CreatedAt.IsZero() {
			continue
		}
		age := now.Sub(cmd.CreatedAt)
		if age < 0 {
			age = 0
		}
		if age > oldestPendingAge {
			oldestPendingAge = age
		}
	}
	if oldestPendingAge > 0 {
		info.OldestPendingAgeMs = oldestPendingAge.Milliseconds()
	}

	var lastSuccess time.Time
	for _, cmd := range completed {
		if cmd == nil || cmd.Status != "complete" {
			continue
		}
		eventTime := cmd.CompletedAt
		if eventTime.IsZero() {
			eventTime = cmd.CreatedAt
		}
		if eventTime.IsZero() {
			continue
		}
		if eventTime.After(lastSuccess) {
			lastSuccess = eventTime
		}
		age := now.Sub(eventTime)
		if age < 0 || age > commandExecutionWindow {
			continue
		}
		info.RecentSuccessCount++
	}
	if !lastSuccess.IsZero() {
		info.LastSuccessAt = lastSuccess.UTC().Format(time.RFC3339Nano)
		lastSuccessAge := now.Sub(lastSuccess)
		if lastSuccessAge < 0 {
			lastSuccessAge = 0
		}
		info.LastSuccessAgeMs = lastSuccessAge.Milliseconds()
	}

	for _, cmd := range failed {
		if cmd == nil {
			continue
		}
		eventTime := cmd.CompletedAt
		if eventTime.IsZero() {
			eventTime = cmd.CreatedAt
		}
		if eventTime.IsZero() {
			continue
		}
		age := now.Sub(eventTime)
		if age < 0 || age > commandExecutionWindow {
			continue
		}
		info.RecentFailedCount++
		switch cmd.Status {
		case "expired":
			info.RecentExpiredCount++
		case "timeout":
			info.RecentTimeoutCount++
		case "error":
			info.RecentErrorCount++
		case "cancelled":
			info.RecentCancelledCount++
		}
	}

	attempts := info.RecentSuccessCount + info.RecentFailedCount
	if attempts > 0 {
		info.RecentFailureRatePct = float64(info.RecentFailedCount) * 100 / float64(attempts)
	}

	detailParts := []string{
		fmt.Sprintf("window=%ds", info.WindowSeconds),
	}

	switch {
	case info.RecentFailedCount >= commandFailureFailThreshold:
		info.Status = "fail"
	case info.RecentFailedCount >= commandFailureWarnThreshold:
		info.Status = "warn"
	}

	if info.RecentFailedCount == 0 {
		detailParts = append(detailParts, "no recent command failures")
	} else {
		detailParts = append(detailParts, fmt.Sprintf(
			"recent failures=%d/%d (%.1f%%): expired=%d timeout=%d error=%d cancelled=%d",
			info.RecentFailedCount,
			attempts,
			info.RecentFailureRatePct,
			info.RecentExpiredCount,
			info.RecentTimeoutCount,
			info.RecentErrorCount,
			info.RecentCancelledCount,
		))
	}

	lastSuccessAge := time.Duration(info.LastSuccessAgeMs) * time.Millisecond
	lastSuccessStaleWarn := info.LastSuccessAt == "" || lastSuccessAge >= commandPendingStallWarnAge
	lastSuccessStaleFail := info.LastSuccessAt == "" || lastSuccessAge >= commandPendingStallFailAge
	pendingStallWarn := info.PendingCount > 0 &&
		time.Duration(info.OldestPendingAgeMs)*time.Millisecond >= commandPendingStallWarnAge &&
		lastSuccessStaleWarn
	pendingStallFail := info.PendingCount > 0 &&
		time.Duration(info.OldestPendingAgeMs)*time.Millisecond >= commandPendingStallFailAge &&
		lastSuccessStaleFail

	if pendingStallFail {
		info.Status = "fail"
	}
	if pendingStallWarn && info.Status == "pass" {
		info.Status = "warn"
	}
	if pendingStallWarn {
		lastSuccessHint := "none"
		if info.LastSuccessAt != "" {
			lastSuccessHint = fmt.Sprintf("%.1fs ago", float64(info.LastSuccessAgeMs)/1000.0)
		}
		detailParts = append(detailParts, fmt.Sprintf(
			"pending backlog: %d command(s), oldest=%.1fs, last_success=%s",
			info.PendingCount,
			float64(info.OldestPendingAgeMs)/1000.0,
			lastSuccessHint,
		))
	}

	info.Ready = info.Status == "pass"
	info.Detail = strings.Join(detailParts, "; ")
	return info
}
