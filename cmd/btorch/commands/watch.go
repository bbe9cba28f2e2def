package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/btorch/internal/model"
)

type WatchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID            string
	mode              string
	cancelOnInterrupt bool
	format            string
}

// NewWatchCommand returns the watch command.
func NewWatchCommand(rootCmd *RootCommand, app *kingpin.Application) *WatchCommand {
	c := &WatchCommand{rootCmd: rootCmd}

	modes := make([]string, 0, len(model.JobModes()))
	for _, m := range model.JobModes() {
		modes = append(modes, string(m))
	}

	c.Cmd = app.Command("watch", "Follow a submitted job until it finishes.")
	c.Cmd.Arg("task-id", "Backend task ID of the job.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("mode", "Job mode, required when the job is not in the history.").EnumVar(&c.mode, modes...)
	c.Cmd.Flag("cancel-on-interrupt", "Cancel the job when interrupted while following it.").BoolVar(&c.cancelOnInterrupt)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c WatchCommand) Name() string { return c.Cmd.FullCommand() }

func (c WatchCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	h := model.TaskHandle{ID: c.taskID, Mode: model.JobMode(c.mode)}

	// Recorded jobs know their mode and submission time.
	record, err := repo.GetJobByTaskID(ctx, c.taskID)
	switch {
	case err == nil:
		if h.Mode != "" && h.Mode != record.Mode {
			return fmt.Errorf("job %s is a %s job, not %s: %w", c.taskID, record.Mode, h.Mode, model.ErrNotValid)
		}
		h.Mode = record.Mode
		h.SubmittedAt = record.SubmittedAt
	case errors.Is(err, model.ErrNotFound):
		if h.Mode == "" {
			return fmt.Errorf("job %s is not in the history, --mode is required: %w", c.taskID, model.ErrNotValid)
		}
	default:
		return fmt.Errorf("could not get job: %w", err)
	}

	p := c.rootCmd.newPrinter(c.format)

	if record != nil && record.Phase.IsTerminal() {
		c.rootCmd.Logger.Infof("Job %s already %s", c.taskID, record.Phase)
		return p.PrintJob(*record)
	}

	b, err := c.rootCmd.newBackend()
	if err != nil {
		return err
	}

	orch, err := c.rootCmd.newOrchestrator(b, repo)
	if err != nil {
		return err
	}
	defer orch.Close()

	if err := orch.Attach(ctx, h); err != nil {
		return fmt.Errorf("could not attach to job: %w", err)
	}

	return c.rootCmd.follow(ctx, orch, h, p, followOptions{cancelOnInterrupt: c.cancelOnInterrupt})
}
