package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/btorch/internal/model"
)

// JSONPrinter prints job information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

var _ Printer = &JSONPrinter{}

// historyItem represents a job in the history output (subset of fields).
type historyItem struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Mode        string    `json:"mode"`
	Phase       string    `json:"phase"`
	Progress    float64   `json:"progress"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// jobOutput represents the full job record output.
type jobOutput struct {
	ID           string                 `json:"id"`
	TaskID       string                 `json:"task_id"`
	Mode         string                 `json:"mode"`
	Phase        string                 `json:"phase"`
	Progress     float64                `json:"progress"`
	StatusText   string                 `json:"status_text,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Result       *model.CanonicalResult `json:"result,omitempty"`
	SubmittedAt  time.Time              `json:"submitted_at"`
	FinishedAt   *time.Time             `json:"finished_at"`
}

// stateOutput represents a task state output, one JSON object per line.
type stateOutput struct {
	TaskID       string                 `json:"task_id"`
	Mode         string                 `json:"mode"`
	Phase        string                 `json:"phase"`
	Progress     float64                `json:"progress"`
	StatusText   string                 `json:"status_text,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Result       *model.CanonicalResult `json:"result,omitempty"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintHistory prints job records in JSON format with a subset of fields.
func (j *JSONPrinter) PrintHistory(records []model.JobRecord) error {
	items := make([]historyItem, len(records))
	for i, r := range records {
		items[i] = historyItem{
			ID:          r.ID,
			TaskID:      r.TaskID,
			Mode:        string(r.Mode),
			Phase:       string(r.Phase),
			Progress:    r.Progress,
			SubmittedAt: r.SubmittedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintJob prints a job record in JSON format.
func (j *JSONPrinter) PrintJob(r model.JobRecord) error {
	output := jobOutput{
		ID:           r.ID,
		TaskID:       r.TaskID,
		Mode:         string(r.Mode),
		Phase:        string(r.Phase),
		Progress:     r.Progress,
		StatusText:   r.StatusText,
		ErrorMessage: r.ErrorMessage,
		Result:       r.Result,
		SubmittedAt:  r.SubmittedAt.UTC(),
	}

	if r.FinishedAt != nil {
		utcTime := r.FinishedAt.UTC()
		output.FinishedAt = &utcTime
	}

	return j.encode(output)
}

// PrintState prints a task state as a single line JSON object so watch
// outputs can be streamed.
func (j *JSONPrinter) PrintState(h model.TaskHandle, s model.TaskState) error {
	return json.NewEncoder(j.writer).Encode(stateOutput{
		TaskID:       h.ID,
		Mode:         string(h.Mode),
		Phase:        string(s.Phase),
		Progress:     s.Progress,
		StatusText:   s.StatusText,
		ErrorMessage: s.ErrorMessage,
		Result:       s.Result,
	})
}

// PrintResult prints a canonical result in JSON format.
func (j *JSONPrinter) PrintResult(res model.CanonicalResult) error {
	return j.encode(res)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
