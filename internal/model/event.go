package model

import "strings"

// EventSource is the channel that produced a progress event.
type EventSource string

const (
	EventSourcePush EventSource = "push"
	EventSourcePull EventSource = "pull"
	// EventSourceLocal is used for events generated by the orchestrator itself
	// (e.g transport failure escalation).
	EventSourceLocal EventSource = "local"
)

// BackendStatus is the job status as reported by the backend.
type BackendStatus string

const (
	BackendStatusPending   BackendStatus = "pending"
	BackendStatusRunning   BackendStatus = "running"
	BackendStatusCompleted BackendStatus = "completed"
	BackendStatusFailed    BackendStatus = "failed"
	BackendStatusRevoked   BackendStatus = "revoked"
)

// ProgressEvent is a single status notification about a task, it can come
// from the push or the pull source.
type ProgressEvent struct {
	TaskID string
	Source EventSource
	Status BackendStatus
	// Progress is nil when the event doesn't carry progress information.
	Progress *float64
	// StatusText is nil when the event doesn't carry a status message.
	StatusText *string
	// ResultPayload is the raw decoded result of the backend, only on completion.
	ResultPayload map[string]any
	Error         string
}

// ParseBackendStatus maps the status names used by the backend workers to a
// BackendStatus. Unknown names return an empty status and false.
func ParseBackendStatus(s string) (BackendStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "queued", "received":
		return BackendStatusPending, true
	case "running", "started", "progress", "in_progress":
		return BackendStatusRunning, true
	case "completed", "complete", "success", "succeeded", "done", "finished":
		return BackendStatusCompleted, true
	case "failed", "failure", "error":
		return BackendStatusFailed, true
	case "revoked", "cancelled", "canceled":
		return BackendStatusRevoked, true
	}
	return "", false
}
