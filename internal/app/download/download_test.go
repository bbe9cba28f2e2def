package download_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/btorch/internal/app/download"
	"github.com/slok/btorch/internal/model"
)

type downloaderFunc func(ctx context.Context, taskID string, w io.Writer) (int64, error)

func (f downloaderFunc) DownloadArtifact(ctx context.Context, taskID string, w io.Writer) (int64, error) {
	return f(ctx, taskID, w)
}

func artifact(content string) downloaderFunc {
	return func(_ context.Context, taskID string, w io.Writer) (int64, error) {
		if taskID != "task-1" {
			return 0, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		return io.Copy(w, strings.NewReader(content))
	}
}

func failingArtifact(partial string) downloaderFunc {
	return func(_ context.Context, _ string, w io.Writer) (int64, error) {
		_, _ = io.WriteString(w, partial)
		return 0, fmt.Errorf("connection reset: %w", model.ErrTransport)
	}
}

func TestServiceRunToWriter(t *testing.T) {
	tests := map[string]struct {
		backend    downloaderFunc
		req        func(w io.Writer) download.Request
		expContent string
		expBytes   int64
		expErr     error
	}{
		"artifact should be written": {
			backend:    artifact("<html>report</html>"),
			req:        func(w io.Writer) download.Request { return download.Request{TaskID: "task-1", Writer: w} },
			expContent: "<html>report</html>",
			expBytes:   19,
		},
		"unknown task should be not found": {
			backend: artifact("<html>report</html>"),
			req:     func(w io.Writer) download.Request { return download.Request{TaskID: "task-2", Writer: w} },
			expErr:  model.ErrNotFound,
		},
		"missing task id should fail": {
			backend: artifact(""),
			req:     func(w io.Writer) download.Request { return download.Request{Writer: w} },
			expErr:  model.ErrNotValid,
		},
		"both path and writer should fail": {
			backend: artifact(""),
			req: func(w io.Writer) download.Request {
				return download.Request{TaskID: "task-1", Writer: w, Path: "/tmp/report.html"}
			},
			expErr: model.ErrNotValid,
		},
		"no destination should fail": {
			backend: artifact(""),
			req:     func(w io.Writer) download.Request { return download.Request{TaskID: "task-1"} },
			expErr:  model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			svc, err := download.NewService(download.ServiceConfig{Backend: test.backend})
			require.NoError(err)

			var buf bytes.Buffer
			n, err := svc.Run(context.Background(), test.req(&buf))

			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
			} else if assert.NoError(err) {
				assert.Equal(test.expBytes, n)
				assert.Equal(test.expContent, buf.String())
			}
		})
	}
}

func TestServiceRunToFile(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "artifacts", "task-1.html")

	svc, err := download.NewService(download.ServiceConfig{Backend: artifact("<html>report</html>")})
	require.NoError(err)

	n, err := svc.Run(context.Background(), download.Request{TaskID: "task-1", Path: path})
	require.NoError(err)
	assert.Equal(int64(19), n)

	got, err := os.ReadFile(path)
	require.NoError(err)
	assert.Equal("<html>report</html>", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(err)
	assert.Len(entries, 1)
}

func TestServiceRunToFileFailureKeepsPrevious(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "task-1.html")
	require.NoError(os.WriteFile(path, []byte("previous"), 0o644))

	svc, err := download.NewService(download.ServiceConfig{Backend: failingArtifact("<html>par")})
	require.NoError(err)

	_, err = svc.Run(context.Background(), download.Request{TaskID: "task-1", Path: path})
	assert.ErrorIs(err, model.ErrTransport)

	got, err := os.ReadFile(path)
	require.NoError(err)
	assert.Equal("previous", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(err)
	assert.Len(entries, 1)
}
