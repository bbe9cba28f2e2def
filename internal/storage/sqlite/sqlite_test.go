package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/storage"
	"github.com/slok/btorch/internal/storage/sqlite"
)

func jobFixture(id, taskID string, mode model.JobMode, submittedAt time.Time) model.JobRecord {
	return model.NewJobRecord(id, model.TaskHandle{
		ID:          taskID,
		Mode:        mode,
		SubmittedAt: submittedAt.UTC().Truncate(time.Millisecond),
	})
}

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now()
	job := jobFixture("id-1", "task-1", model.JobModeSingleRun, now)
	require.NoError(t, repo.CreateJob(ctx, job))

	got, err := repo.GetJob(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, job, *got)

	gotByTask, err := repo.GetJobByTaskID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", gotByTask.ID)

	all, err := repo.ListJobs(ctx, storage.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	job.ApplyState(model.TaskState{
		Phase:    model.PhaseCompleted,
		Progress: 100,
		Result: &model.CanonicalResult{
			Mode: model.JobModeSingleRun,
			SingleRun: &model.SingleRunResult{
				Metrics: model.Metrics{ProfitPercent: 12.5, MaxDrawdown: -3},
				Trades:  []model.Trade{{Side: "long", Profit: 10}},
			},
			Warnings: []model.NormalizationWarning{{Field: "metrics.sharpe_ratio", Reason: "non numeric value \"n/a\""}},
		},
	}, now.Add(time.Minute).Truncate(time.Millisecond))
	require.NoError(t, repo.UpdateJob(ctx, job))

	updated, err := repo.GetJob(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, job, *updated)
	require.NotNil(t, updated.FinishedAt)
	require.NotNil(t, updated.Result)
	assert.Equal(t, 12.5, updated.Result.SingleRun.Metrics.ProfitPercent)

	require.NoError(t, repo.DeleteJob(ctx, "id-1"))
	_, err = repo.GetJob(ctx, "id-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRepositoryConstraints(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now()

	require.NoError(t, repo.CreateJob(ctx, jobFixture("id-1", "task-1", model.JobModeBatch, now)))

	err := repo.CreateJob(ctx, jobFixture("id-1", "task-2", model.JobModeBatch, now))
	assert.True(t, errors.Is(err, model.ErrAlreadyExists))

	err = repo.CreateJob(ctx, jobFixture("id-2", "task-1", model.JobModeBatch, now))
	assert.True(t, errors.Is(err, model.ErrAlreadyExists))

	err = repo.CreateJob(ctx, jobFixture("id-3", "", model.JobModeBatch, now))
	assert.True(t, errors.Is(err, model.ErrNotValid))

	err = repo.UpdateJob(ctx, jobFixture("id-x", "task-x", model.JobModeBatch, now))
	assert.True(t, errors.Is(err, model.ErrNotFound))

	err = repo.DeleteJob(ctx, "id-x")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = repo.GetJobByTaskID(ctx, "task-x")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRepositoryListJobs(t *testing.T) {
	base := time.Now()
	jobs := []model.JobRecord{
		jobFixture("id-1", "task-1", model.JobModeSingleRun, base),
		jobFixture("id-2", "task-2", model.JobModeOptimization, base.Add(time.Second)),
		jobFixture("id-3", "task-3", model.JobModeSingleRun, base.Add(2*time.Second)),
	}

	tests := map[string]struct {
		opts   storage.ListOptions
		expIDs []string
	}{
		"Listing without filters should return all jobs newest first.": {
			opts:   storage.ListOptions{},
			expIDs: []string{"id-3", "id-2", "id-1"},
		},
		"Listing by mode should only return the jobs of the mode.": {
			opts:   storage.ListOptions{Mode: model.JobModeSingleRun},
			expIDs: []string{"id-3", "id-1"},
		},
		"Listing with a limit should return the newest jobs.": {
			opts:   storage.ListOptions{Limit: 2},
			expIDs: []string{"id-3", "id-2"},
		},
		"Listing a mode without jobs should return nothing.": {
			opts:   storage.ListOptions{Mode: model.JobModeConvert},
			expIDs: nil,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			for _, j := range jobs {
				require.NoError(t, repo.CreateJob(ctx, j))
			}

			got, err := repo.ListJobs(ctx, test.opts)
			require.NoError(t, err)

			var gotIDs []string
			for _, j := range got {
				gotIDs = append(gotIDs, j.ID)
			}
			assert.Equal(t, test.expIDs, gotIDs)
		})
	}
}
