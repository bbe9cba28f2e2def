package backend

import (
	"encoding/json"
	"fmt"

	"github.com/slok/btorch/internal/model"
)

// StatusMessage is the JSON message used by the backend both on the status
// query responses and on the push notifications.
type StatusMessage struct {
	TaskID     string          `json:"task_id"`
	TaskIDAlt  string          `json:"taskId,omitempty"`
	Status     string          `json:"status"`
	Progress   json.RawMessage `json:"progress,omitempty"`
	StatusText *string         `json:"status_text,omitempty"`
	Message    *string         `json:"message,omitempty"`
	Result     map[string]any  `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ToJobStatus validates and converts the wire message.
func (m StatusMessage) ToJobStatus() (*JobStatus, error) {
	taskID := m.TaskID
	if taskID == "" {
		taskID = m.TaskIDAlt
	}
	if taskID == "" {
		return nil, fmt.Errorf("missing task id: %w", model.ErrNotValid)
	}

	status, ok := model.ParseBackendStatus(m.Status)
	if !ok {
		return nil, fmt.Errorf("unknown status %q: %w", m.Status, model.ErrNotValid)
	}

	st := &JobStatus{
		TaskID:     taskID,
		Status:     status,
		StatusText: m.StatusText,
		Result:     m.Result,
		Error:      m.Error,
	}
	if st.StatusText == nil {
		st.StatusText = m.Message
	}

	// Progress can be a number, a numeric string or null.
	if len(m.Progress) > 0 && string(m.Progress) != "null" {
		var p float64
		if err := json.Unmarshal(m.Progress, &p); err != nil {
			var s json.Number
			if err := json.Unmarshal(m.Progress, &s); err != nil {
				return nil, fmt.Errorf("invalid progress %s: %w", m.Progress, model.ErrNotValid)
			}
			p, err = s.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid progress %s: %w", m.Progress, model.ErrNotValid)
			}
		}
		st.Progress = &p
	}

	return st, nil
}

// NewStatusMessage converts a job status into its wire message.
func NewStatusMessage(s JobStatus) StatusMessage {
	m := StatusMessage{
		TaskID:     s.TaskID,
		Status:     string(s.Status),
		StatusText: s.StatusText,
		Result:     s.Result,
		Error:      s.Error,
	}
	if s.Progress != nil {
		b, _ := json.Marshal(*s.Progress)
		m.Progress = b
	}
	return m
}

// Topic returns the push subscription topic of a task.
func Topic(taskID string) string { return "task:" + taskID }
