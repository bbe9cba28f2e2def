package backend_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/model"
)

func TestStatusMessageToJobStatus(t *testing.T) {
	f64 := func(f float64) *float64 { return &f }
	str := func(s string) *string { return &s }

	tests := map[string]struct {
		msg       string
		expStatus *backend.JobStatus
		expErr    bool
	}{
		"A complete message should be converted.": {
			msg: `{"task_id": "t1", "status": "SUCCESS", "progress": 100, "status_text": "done", "result": {"profit_percent": 1}}`,
			expStatus: &backend.JobStatus{
				TaskID:     "t1",
				Status:     model.BackendStatusCompleted,
				Progress:   f64(100),
				StatusText: str("done"),
				Result:     map[string]any{"profit_percent": 1.0},
			},
		},

		"Camel case task id and message should be accepted.": {
			msg: `{"taskId": "t1", "status": "PROGRESS", "progress": "42.5", "message": "computing"}`,
			expStatus: &backend.JobStatus{
				TaskID:     "t1",
				Status:     model.BackendStatusRunning,
				Progress:   f64(42.5),
				StatusText: str("computing"),
			},
		},

		"Null progress should be ignored.": {
			msg:       `{"task_id": "t1", "status": "running", "progress": null}`,
			expStatus: &backend.JobStatus{TaskID: "t1", Status: model.BackendStatusRunning},
		},

		"A failure should keep the error.": {
			msg:       `{"task_id": "t1", "status": "FAILURE", "error": "division by zero"}`,
			expStatus: &backend.JobStatus{TaskID: "t1", Status: model.BackendStatusFailed, Error: "division by zero"},
		},

		"A missing task id should fail.": {
			msg:    `{"status": "running"}`,
			expErr: true,
		},

		"An unknown status should fail.": {
			msg:    `{"task_id": "t1", "status": "exploded"}`,
			expErr: true,
		},

		"Invalid progress should fail.": {
			msg:    `{"task_id": "t1", "status": "running", "progress": "half"}`,
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var msg backend.StatusMessage
			require.NoError(t, json.Unmarshal([]byte(test.msg), &msg))

			gotStatus, err := msg.ToJobStatus()
			if test.expErr {
				assert.ErrorIs(t, err, model.ErrNotValid)
			} else if assert.NoError(t, err) {
				assert.Equal(t, test.expStatus, gotStatus)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	for _, mode := range model.JobModes() {
		assert.NotEmpty(t, backend.Endpoint(mode), mode)
	}
	assert.Empty(t, backend.Endpoint("unknown"))
}
