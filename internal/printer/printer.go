package printer

import "github.com/slok/btorch/internal/model"

// Printer knows how to print job information in different formats.
type Printer interface {
	PrintHistory(records []model.JobRecord) error
	PrintJob(record model.JobRecord) error
	PrintState(handle model.TaskHandle, state model.TaskState) error
	PrintResult(result model.CanonicalResult) error
	PrintMessage(msg string) error
}
