package models

import "strings"

// Issue statuses. NormalizeIssueStatus maps common reasoning-service
// misspellings ("in process") onto the canonical set.
const (
	IssueStatusNew        = "new"
	IssueStatusInProgress = "in progress"
	IssueStatusCompleted  = "completed"
	IssueStatusBlocked    = "blocked"
)

// Run statuses as reported by the reasoning service.
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusRequiresAction = "requires_action"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusExpired        = "expired"
	RunStatusCancelled      = "cancelled"
)

// Agent roles.
const (
	RolePM          = "pm"
	RoleArchitect   = "architect"
	RoleBackendDev  = "backend_dev"
	RoleFrontendDev = "frontend_dev"
	RoleSRE         = "sre"
)

// Event types.
const (
	EventRunStarted   = "run_started"
	EventRunFinished  = "run_finished"
	EventToolDispatch = "tool_dispatch"
	EventIssueChanged = "issue_changed"
	EventAgentChat    = "agent_chat"
)

// Default limits.
const (
	DefaultMaxRequestBodyBytes = 1 << 20 // 1 MiB
	DefaultPollIntervalMillis  = 500
	DefaultMaxPolls            = 600
	DefaultPollRetries         = 3
	DefaultChatDepthLimit      = 3
	DefaultSSEChannelBuffer    = 256
	DefaultIssueListLimit      = 1000
)

// Issue priorities in the ranked "N - Word" form. Rank 0 sorts most urgent.
const (
	PriorityUrgent   = "0 - Urgent"
	PriorityCritical = "1 - Critical"
	PriorityHigh     = "2 - High"
	PriorityMedium   = "3 - Medium"
	PriorityLow      = "4 - Low"
)

var priorityRanks = map[string]string{
	"urgent":   PriorityUrgent,
	"critical": PriorityCritical,
	"high":     PriorityHigh,
	"medium":   PriorityMedium,
	"low":      PriorityLow,
}

// NormalizePriority maps a bare priority word onto its ranked form. Values
// already in ranked form (or unrecognized) pass through unchanged.
func NormalizePriority(p string) string {
	if ranked, ok := priorityRanks[lowerTrim(p)]; ok {
		return ranked
	}
	return p
}

// NormalizeIssueStatus accommodates the "in process" variant some reasoning
// services produce instead of "in progress".
func NormalizeIssueStatus(s string) string {
	if lowerTrim(s) == "in process" {
		return IssueStatusInProgress
	}
	return s
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
