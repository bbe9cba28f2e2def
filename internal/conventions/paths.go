package conventions

import (
	"path/filepath"
	"time"
)

const (
	// DefaultDataDir is the default btorch data directory name (relative to home).
	DefaultDataDir = ".btorch"
	// DBFile is the job history SQLite database filename.
	DBFile = "btorch.db"
	// ArtifactsDir is the subdirectory for downloaded job reports.
	ArtifactsDir = "artifacts"

	// DefaultAPIURL is the default base URL of the backend REST API.
	DefaultAPIURL = "http://127.0.0.1:8000/api"
	// DefaultWSURL is the default URL of the backend push channel.
	DefaultWSURL = "ws://127.0.0.1:8000/ws"

	// DefaultPollInterval is the default interval of the task status queries.
	DefaultPollInterval = 1500 * time.Millisecond
	// DefaultMaxTransportFailures is the default number of consecutive failed
	// status queries that fail a task.
	DefaultMaxTransportFailures = 3
)

// DBPath returns the path of the job history database.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// ArtifactPath returns the default path of a downloaded job report.
func ArtifactPath(dataDir, taskID string) string {
	return filepath.Join(dataDir, ArtifactsDir, taskID+".html")
}
