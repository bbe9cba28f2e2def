package model_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/btorch/internal/model"
)

func TestPhaseIsTerminal(t *testing.T) {
	tests := map[model.Phase]bool{
		model.PhaseIdle:       false,
		model.PhaseSubmitting: false,
		model.PhaseRunning:    false,
		model.PhaseCompleted:  true,
		model.PhaseFailed:     true,
		model.PhaseCancelled:  true,
	}

	for phase, exp := range tests {
		t.Run(string(phase), func(t *testing.T) {
			assert.Equal(t, exp, phase.IsTerminal())
		})
	}
}

func TestParseBackendStatus(t *testing.T) {
	tests := map[string]struct {
		status    string
		expStatus model.BackendStatus
		expOK     bool
	}{
		"Celery success.":   {status: "SUCCESS", expStatus: model.BackendStatusCompleted, expOK: true},
		"Celery progress.":  {status: "PROGRESS", expStatus: model.BackendStatusRunning, expOK: true},
		"Celery failure.":   {status: "FAILURE", expStatus: model.BackendStatusFailed, expOK: true},
		"Revoked.":          {status: "revoked", expStatus: model.BackendStatusRevoked, expOK: true},
		"Cancelled.":        {status: " Cancelled ", expStatus: model.BackendStatusRevoked, expOK: true},
		"Queued.":           {status: "queued", expStatus: model.BackendStatusPending, expOK: true},
		"Unknown statuses.": {status: "exploded", expOK: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			status, ok := model.ParseBackendStatus(test.status)
			assert.Equal(t, test.expOK, ok)
			assert.Equal(t, test.expStatus, status)
		})
	}
}

func TestSubmissionError(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	var err error = &model.SubmissionError{Mode: model.JobModeBatch, Err: cause}

	assert.ErrorIs(t, err, model.ErrSubmission)
	assert.ErrorIs(t, err, cause)
	assert.False(t, errors.Is(err, model.ErrTransport))
	assert.Equal(t, "could not submit batch job: connection refused", err.Error())
}
