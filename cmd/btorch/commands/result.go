package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/btorch/internal/app/result"
)

type ResultCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     string
	format string
}

// NewResultCommand returns the result command.
func NewResultCommand(rootCmd *RootCommand, app *kingpin.Application) *ResultCommand {
	c := &ResultCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("result", "Show a recorded job and its result.")
	c.Cmd.Alias("status")
	c.Cmd.Arg("id", "Backend task ID or history record ID of the job.").Required().StringVar(&c.id)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c ResultCommand) Name() string { return c.Cmd.FullCommand() }

func (c ResultCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := result.NewService(result.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	record, err := svc.Run(ctx, result.Request{TaskOrRecordID: c.id})
	if err != nil {
		return err
	}

	if err := c.rootCmd.newPrinter(c.format).PrintJob(*record); err != nil {
		return fmt.Errorf("could not print job: %w", err)
	}

	return nil
}
