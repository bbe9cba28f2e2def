package doctor_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/btorch/internal/app/doctor"
	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/backend/fake"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/storage/storagemock"
)

type failingSubscriber struct {
	*fake.Backend
}

func (failingSubscriber) Subscribe(context.Context, string) (backend.Subscription, error) {
	return nil, fmt.Errorf("connection refused: %w", model.ErrTransport)
}

func TestService_Run(t *testing.T) {
	tests := map[string]struct {
		mock      func(m *storagemock.MockRepository)
		backend   func(b *fake.Backend) doctor.Backend
		expStatus map[string]model.CheckStatus
		expErrors bool
	}{
		"all checks should pass": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListJobs", mock.Anything, mock.Anything).Once().Return(nil, nil)
			},
			backend: func(b *fake.Backend) doctor.Backend { return b },
			expStatus: map[string]model.CheckStatus{
				"history_db":    model.CheckStatusOK,
				"api_reachable": model.CheckStatusOK,
				"push_channel":  model.CheckStatusOK,
			},
		},
		"unreadable history should be an error": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListJobs", mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("database is locked"))
			},
			backend: func(b *fake.Backend) doctor.Backend { return b },
			expStatus: map[string]model.CheckStatus{
				"history_db":    model.CheckStatusError,
				"api_reachable": model.CheckStatusOK,
				"push_channel":  model.CheckStatusOK,
			},
			expErrors: true,
		},
		"unreachable API should be an error": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListJobs", mock.Anything, mock.Anything).Once().Return(nil, nil)
			},
			backend: func(b *fake.Backend) doctor.Backend {
				b.SetStatusError(fmt.Errorf("connection refused: %w", model.ErrTransport), -1)
				return b
			},
			expStatus: map[string]model.CheckStatus{
				"history_db":    model.CheckStatusOK,
				"api_reachable": model.CheckStatusError,
				"push_channel":  model.CheckStatusOK,
			},
			expErrors: true,
		},
		"unexpected API answer should be a warning": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListJobs", mock.Anything, mock.Anything).Once().Return(nil, nil)
			},
			backend: func(b *fake.Backend) doctor.Backend {
				b.SetStatusError(fmt.Errorf("HTTP 401: %w", model.ErrNotValid), -1)
				return b
			},
			expStatus: map[string]model.CheckStatus{
				"history_db":    model.CheckStatusOK,
				"api_reachable": model.CheckStatusWarning,
				"push_channel":  model.CheckStatusOK,
			},
		},
		"missing push channel should be a warning": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListJobs", mock.Anything, mock.Anything).Once().Return(nil, nil)
			},
			backend: func(b *fake.Backend) doctor.Backend { return failingSubscriber{Backend: b} },
			expStatus: map[string]model.CheckStatus{
				"history_db":    model.CheckStatusOK,
				"api_reachable": model.CheckStatusOK,
				"push_channel":  model.CheckStatusWarning,
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := storagemock.NewMockRepository(t)
			test.mock(m)

			fb, err := fake.NewBackend(fake.BackendConfig{})
			require.NoError(err)

			svc, err := doctor.NewService(doctor.ServiceConfig{
				Backend:    test.backend(fb),
				Repository: m,
			})
			require.NoError(err)

			results := svc.Run(context.Background())

			gotStatus := map[string]model.CheckStatus{}
			for _, r := range results {
				gotStatus[r.ID] = r.Status
				assert.NotEmpty(r.Message)
			}
			assert.Equal(test.expStatus, gotStatus)
			assert.Equal(test.expErrors, model.HasErrors(results))
		})
	}
}
