package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/btorch/internal/app/download"
	"github.com/slok/btorch/internal/conventions"
	"github.com/slok/btorch/internal/printer"
)

type DownloadCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	output string
	stdout bool
}

// NewDownloadCommand returns the download command.
func NewDownloadCommand(rootCmd *RootCommand, app *kingpin.Application) *DownloadCommand {
	c := &DownloadCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("download", "Download the report of a finished job.")
	c.Cmd.Arg("task-id", "Backend task ID of the job.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("output", "Destination file, defaults to the artifacts directory next to the history database.").Short('o').StringVar(&c.output)
	c.Cmd.Flag("stdout", "Write the report to the standard output.").BoolVar(&c.stdout)

	return c
}

func (c DownloadCommand) Name() string { return c.Cmd.FullCommand() }

func (c DownloadCommand) Run(ctx context.Context) error {
	if c.stdout && c.output != "" {
		return fmt.Errorf("--output and --stdout can't be used together")
	}

	b, err := c.rootCmd.newBackend()
	if err != nil {
		return err
	}

	svc, err := download.NewService(download.ServiceConfig{
		Backend: b,
		Logger:  c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	if c.stdout {
		_, err := svc.Run(ctx, download.Request{TaskID: c.taskID, Writer: c.rootCmd.Stdout})
		return err
	}

	path := c.output
	if path == "" {
		path = conventions.ArtifactPath(filepath.Dir(c.rootCmd.DBPath), c.taskID)
	}

	n, err := svc.Run(ctx, download.Request{TaskID: c.taskID, Path: path})
	if err != nil {
		return err
	}

	return c.rootCmd.newPrinter(formatTable).PrintMessage(fmt.Sprintf("Downloaded %s report to %s", printer.FormatBytes(n), path))
}
