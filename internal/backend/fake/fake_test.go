package fake_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/backend/fake"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/normalize"
)

func f64(v float64) *float64 { return &v }

func TestBackendScripted(t *testing.T) {
	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, b *fake.Backend)
	}{
		"Starting a job should return a task id and record the submission.": {
			actions: func(ctx context.Context, t *testing.T, b *fake.Backend) {
				id, err := b.StartJob(ctx, model.JobModeSingleRun, map[string]any{"symbol": "BTC/USDT"})
				require.NoError(t, err)
				assert.NotEmpty(t, id)

				subs := b.Submissions()
				require.Len(t, subs, 1)
				assert.Equal(t, id, subs[0].TaskID)
				assert.Equal(t, model.JobModeSingleRun, subs[0].Mode)
				assert.Equal(t, "BTC/USDT", subs[0].Body["symbol"])

				st, err := b.GetJobStatus(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, model.BackendStatusPending, st.Status)
			},
		},

		"Starting a job with a submit error should fail.": {
			actions: func(ctx context.Context, t *testing.T, b *fake.Backend) {
				b.SetSubmitError(errors.New("wanted error"))
				_, err := b.StartJob(ctx, model.JobModeBatch, nil)
				assert.Error(t, err)
				assert.Empty(t, b.Submissions())
			},
		},

		"Starting a job of an unknown mode should fail.": {
			actions: func(ctx context.Context, t *testing.T, b *fake.Backend) {
				_, err := b.StartJob(ctx, model.JobMode("unknown"), nil)
				assert.ErrorIs(t, err, model.ErrNotValid)
			},
		},

		"Getting the status of an unknown task should fail with not found.": {
			actions: func(ctx context.Context, t *testing.T, b *fake.Backend) {
				_, err := b.GetJobStatus(ctx, "missing")
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},

		"Status errors should be returned the configured times.": {
			actions: func(ctx context.Context, t *testing.T, b *fake.Backend) {
				b.SetStatus(backend.JobStatus{TaskID: "t1", Status: model.BackendStatusRunning})
				b.SetStatusError(model.ErrTransport, 2)

				_, err := b.GetJobStatus(ctx, "t1")
				assert.ErrorIs(t, err, model.ErrTransport)
				_, err = b.GetJobStatus(ctx, "t1")
				assert.ErrorIs(t, err, model.ErrTransport)
				st, err := b.GetJobStatus(ctx, "t1")
				require.NoError(t, err)
				assert.Equal(t, model.BackendStatusRunning, st.Status)
				assert.Equal(t, 3, b.StatusCalls())
			},
		},

		"Pushed events should be delivered to the subscribers of the task only.": {
			actions: func(ctx context.Context, t *testing.T, b *fake.Backend) {
				s1, err := b.Subscribe(ctx, "t1")
				require.NoError(t, err)
				s2, err := b.Subscribe(ctx, "t2")
				require.NoError(t, err)

				b.Push(model.ProgressEvent{TaskID: "t1", Status: model.BackendStatusRunning, Progress: f64(40)})

				select {
				case ev := <-s1.Events():
					assert.Equal(t, "t1", ev.TaskID)
					assert.Equal(t, model.EventSourcePush, ev.Source)
					assert.Equal(t, 40.0, *ev.Progress)
				case <-time.After(time.Second):
					t.Fatal("event not delivered")
				}
				assert.Empty(t, s2.Events())
			},
		},

		"Closing a subscription should close its events and unregister it.": {
			actions: func(ctx context.Context, t *testing.T, b *fake.Backend) {
				s, err := b.Subscribe(ctx, "t1")
				require.NoError(t, err)
				assert.Equal(t, 1, b.Subscribers("t1"))

				require.NoError(t, s.Close())
				require.NoError(t, s.Close())
				_, ok := <-s.Events()
				assert.False(t, ok)
				assert.Equal(t, 0, b.Subscribers("t1"))

				// Without subscribers the push is lost.
				b.Push(model.ProgressEvent{TaskID: "t1", Status: model.BackendStatusRunning})
			},
		},

		"Cancelling a scripted job should only record the request.": {
			actions: func(ctx context.Context, t *testing.T, b *fake.Backend) {
				b.SetStatus(backend.JobStatus{TaskID: "t1", Status: model.BackendStatusRunning})
				ack, err := b.CancelJob(ctx, "t1")
				require.NoError(t, err)
				assert.True(t, ack)
				assert.Equal(t, []string{"t1"}, b.CancelRequests())

				st, err := b.GetJobStatus(ctx, "t1")
				require.NoError(t, err)
				assert.Equal(t, model.BackendStatusRunning, st.Status)
			},
		},

		"Cancelling an unknown job should fail with not found.": {
			actions: func(ctx context.Context, t *testing.T, b *fake.Backend) {
				_, err := b.CancelJob(ctx, "missing")
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},

		"Downloading the artifact of a job should write its report.": {
			actions: func(ctx context.Context, t *testing.T, b *fake.Backend) {
				id, err := b.StartJob(ctx, model.JobModeSingleRun, nil)
				require.NoError(t, err)

				var buf bytes.Buffer
				n, err := b.DownloadArtifact(ctx, id, &buf)
				require.NoError(t, err)
				assert.Equal(t, int64(buf.Len()), n)
				assert.Contains(t, buf.String(), id)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			b, err := fake.NewBackend(fake.BackendConfig{})
			require.NoError(t, err)
			test.actions(context.Background(), t, b)
		})
	}
}

func TestBackendSimulated(t *testing.T) {
	tests := map[string]struct {
		mode model.JobMode
		body map[string]any
	}{
		"A simulated single run should complete with a normalizable result.":   {mode: model.JobModeSingleRun},
		"A simulated optimization should complete with a normalizable result.": {mode: model.JobModeOptimization},
		"A simulated walk-forward should complete with a normalizable result.": {mode: model.JobModeWalkForward},
		"A simulated batch should complete with a normalizable result.": {
			mode: model.JobModeBatch,
			body: map[string]any{"strategies": []any{"sma", "rsi"}},
		},
		"A simulated download should complete with a normalizable result.": {mode: model.JobModeDownload},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			b, err := fake.NewBackend(fake.BackendConfig{
				Simulate:           true,
				SimulationSteps:    3,
				SimulationInterval: 20 * time.Millisecond,
			})
			require.NoError(err)

			id, err := b.StartJob(ctx, test.mode, test.body)
			require.NoError(err)
			sub, err := b.Subscribe(ctx, id)
			require.NoError(err)

			var last model.ProgressEvent
			for last.Status != model.BackendStatusCompleted {
				select {
				case ev, ok := <-sub.Events():
					require.True(ok)
					last = ev
				case <-ctx.Done():
					require.FailNow("simulation did not complete")
				}
			}

			require.NotNil(last.ResultPayload)
			res, err := normalize.Normalize(test.mode, last.ResultPayload)
			require.NoError(err)
			assert.Equal(test.mode, res.Mode)
			assert.Empty(res.Warnings)

			st, err := b.GetJobStatus(ctx, id)
			require.NoError(err)
			assert.Equal(model.BackendStatusCompleted, st.Status)
		})
	}
}

func TestBackendSimulatedCancel(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	b, err := fake.NewBackend(fake.BackendConfig{
		Simulate:           true,
		SimulationSteps:    1000,
		SimulationInterval: time.Hour,
	})
	require.NoError(err)

	id, err := b.StartJob(ctx, model.JobModeSingleRun, nil)
	require.NoError(err)
	sub, err := b.Subscribe(ctx, id)
	require.NoError(err)

	ack, err := b.CancelJob(ctx, id)
	require.NoError(err)
	require.True(ack)

	ev := <-sub.Events()
	assert.Equal(t, model.BackendStatusRevoked, ev.Status)

	st, err := b.GetJobStatus(ctx, id)
	require.NoError(err)
	assert.Equal(t, model.BackendStatusRevoked, st.Status)
}
