package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/btorch/internal/app/history"
	"github.com/slok/btorch/internal/model"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	modeFilter  string
	phaseFilter string
	limit       int
	format      string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "List the submitted jobs.")
	c.Cmd.Alias("ls")
	c.Cmd.Flag("mode", "Filter by job mode.").StringVar(&c.modeFilter)
	c.Cmd.Flag("phase", "Filter by phase (running, completed, failed, cancelled).").StringVar(&c.phaseFilter)
	c.Cmd.Flag("limit", "Maximum number of jobs, 0 lists all of them.").Short('n').Default("20").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	req := history.Request{Limit: c.limit}
	if c.modeFilter != "" {
		mode := model.JobMode(strings.ToLower(c.modeFilter))
		req.ModeFilter = &mode
	}
	if c.phaseFilter != "" {
		phase := model.Phase(strings.ToLower(c.phaseFilter))
		switch phase {
		case model.PhaseRunning, model.PhaseCompleted, model.PhaseFailed, model.PhaseCancelled:
			req.PhaseFilter = &phase
		default:
			return fmt.Errorf("invalid phase filter: %s (must be: running, completed, failed, cancelled)", c.phaseFilter)
		}
	}

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := history.NewService(history.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	records, err := svc.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("could not list jobs: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintHistory(records); err != nil {
		return fmt.Errorf("could not print history: %w", err)
	}

	return nil
}
