package cancel_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/btorch/internal/app/cancel"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/storage/storagemock"
)

type cancellerFunc func(ctx context.Context, taskID string) (bool, error)

func (f cancellerFunc) CancelJob(ctx context.Context, taskID string) (bool, error) {
	return f(ctx, taskID)
}

func TestNewService(t *testing.T) {
	_, err := cancel.NewService(cancel.ServiceConfig{})
	assert.Error(t, err)

	svc, err := cancel.NewService(cancel.ServiceConfig{
		Backend: cancellerFunc(func(context.Context, string) (bool, error) { return true, nil }),
	})
	assert.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestService_Run(t *testing.T) {
	submittedAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	running := &model.JobRecord{ID: "id1", TaskID: "task-1", Mode: model.JobModeBatch, Phase: model.PhaseRunning, SubmittedAt: submittedAt}
	completed := &model.JobRecord{ID: "id1", TaskID: "task-1", Mode: model.JobModeBatch, Phase: model.PhaseCompleted, SubmittedAt: submittedAt}

	tests := map[string]struct {
		noRepo       bool
		mock         func(m *storagemock.MockRepository)
		ack          bool
		backendErr   error
		req          cancel.Request
		expResp      *cancel.Response
		expCancelled []string
		expErr       error
	}{
		"running recorded job should be cancelled": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetJobByTaskID", mock.Anything, "task-1").Once().Return(running, nil)
			},
			ack:          true,
			req:          cancel.Request{TaskID: "task-1"},
			expResp:      &cancel.Response{Requested: true, Record: running},
			expCancelled: []string{"task-1"},
		},
		"not recorded job should be cancelled": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetJobByTaskID", mock.Anything, "task-1").Once().Return(nil, model.ErrNotFound)
			},
			ack:          true,
			req:          cancel.Request{TaskID: "task-1"},
			expResp:      &cancel.Response{Requested: true},
			expCancelled: []string{"task-1"},
		},
		"without repository the job should be cancelled": {
			noRepo:       true,
			ack:          true,
			req:          cancel.Request{TaskID: "task-1"},
			expResp:      &cancel.Response{Requested: true},
			expCancelled: []string{"task-1"},
		},
		"finished job should not reach the backend": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetJobByTaskID", mock.Anything, "task-1").Once().Return(completed, nil)
			},
			req:     cancel.Request{TaskID: "task-1"},
			expResp: &cancel.Response{Requested: false, Record: completed},
		},
		"not acknowledged cancel should be not found": {
			noRepo:       true,
			ack:          false,
			req:          cancel.Request{TaskID: "task-1"},
			expCancelled: []string{"task-1"},
			expErr:       model.ErrNotFound,
		},
		"backend error should propagate": {
			noRepo:       true,
			backendErr:   model.ErrTransport,
			req:          cancel.Request{TaskID: "task-1"},
			expCancelled: []string{"task-1"},
			expErr:       model.ErrTransport,
		},
		"repository error should fail": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetJobByTaskID", mock.Anything, "task-1").Once().Return(nil, fmt.Errorf("database error"))
			},
			req:    cancel.Request{TaskID: "task-1"},
			expErr: fmt.Errorf("database error"),
		},
		"missing task id should fail": {
			noRepo: true,
			req:    cancel.Request{},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			var cancelled []string
			cfg := cancel.ServiceConfig{
				Backend: cancellerFunc(func(_ context.Context, taskID string) (bool, error) {
					cancelled = append(cancelled, taskID)
					return test.ack, test.backendErr
				}),
			}
			if !test.noRepo {
				m := storagemock.NewMockRepository(t)
				test.mock(m)
				cfg.Repository = m
			}

			svc, err := cancel.NewService(cfg)
			require.NoError(err)

			resp, err := svc.Run(context.Background(), test.req)

			switch {
			case test.expErr == model.ErrNotFound, test.expErr == model.ErrNotValid, test.expErr == model.ErrTransport:
				assert.ErrorIs(err, test.expErr)
			case test.expErr != nil:
				assert.Error(err)
			default:
				assert.NoError(err)
				assert.Equal(test.expResp, resp)
			}
			assert.Equal(test.expCancelled, cancelled)
		})
	}
}
