package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/btorch/internal/app/cancel"
)

type CancelCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
}

// NewCancelCommand returns the cancel command.
func NewCancelCommand(rootCmd *RootCommand, app *kingpin.Application) *CancelCommand {
	c := &CancelCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("cancel", "Request the backend to revoke a running job.")
	c.Cmd.Arg("task-id", "Backend task ID of the job.").Required().StringVar(&c.taskID)

	return c
}

func (c CancelCommand) Name() string { return c.Cmd.FullCommand() }

func (c CancelCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	b, err := c.rootCmd.newBackend()
	if err != nil {
		return err
	}

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := cancel.NewService(cancel.ServiceConfig{
		Backend:    b,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	resp, err := svc.Run(ctx, cancel.Request{TaskID: c.taskID})
	if err != nil {
		return err
	}

	p := c.rootCmd.newPrinter(formatTable)
	if !resp.Requested {
		return p.PrintMessage(fmt.Sprintf("Job %s already %s", c.taskID, resp.Record.Phase))
	}

	return p.PrintMessage(fmt.Sprintf("Cancel of job %s requested", c.taskID))
}
