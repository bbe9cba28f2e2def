package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/btorch/internal/model"
	storageio "github.com/slok/btorch/internal/storage/io"
)

type SubmitCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	mode              string
	file              string
	job               jobFlags
	detach            bool
	cancelOnInterrupt bool
	format            string
}

// NewSubmitCommand returns the submit command.
func NewSubmitCommand(rootCmd *RootCommand, app *kingpin.Application) *SubmitCommand {
	c := &SubmitCommand{rootCmd: rootCmd}

	modes := make([]string, 0, len(model.JobModes()))
	for _, m := range model.JobModes() {
		modes = append(modes, string(m))
	}

	c.Cmd = app.Command("submit", "Submit a job to the backend and follow it until it finishes.")
	c.Cmd.Arg("mode", "Job mode, required unless a job file is used.").EnumVar(&c.mode, modes...)
	c.Cmd.Flag("file", "Job YAML file, the flags override its values.").Short('f').StringVar(&c.file)
	c.job.register(c.Cmd)
	c.Cmd.Flag("detach", "Return after the job is submitted instead of following it.").Short('d').BoolVar(&c.detach)
	c.Cmd.Flag("cancel-on-interrupt", "Cancel the job when interrupted while following it.").BoolVar(&c.cancelOnInterrupt)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c SubmitCommand) Name() string { return c.Cmd.FullCommand() }

func (c SubmitCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	req, err := c.jobRequest(ctx)
	if err != nil {
		return err
	}

	b, err := c.rootCmd.newBackend()
	if err != nil {
		return err
	}

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	orch, err := c.rootCmd.newOrchestrator(b, repo)
	if err != nil {
		return err
	}
	defer orch.Close()

	h, err := orch.Submit(ctx, req.Mode, req.Params)
	if err != nil {
		return err
	}
	logger.Infof("Submitted %s job %s", h.Mode, h.ID)

	p := c.rootCmd.newPrinter(c.format)
	if c.detach {
		st, err := orch.State(h.ID)
		if err != nil {
			return fmt.Errorf("could not get job state: %w", err)
		}
		return p.PrintState(h, st)
	}

	return c.rootCmd.follow(ctx, orch, h, p, followOptions{cancelOnInterrupt: c.cancelOnInterrupt})
}

func (c SubmitCommand) jobRequest(ctx context.Context) (model.JobRequest, error) {
	var req model.JobRequest
	if c.file != "" {
		abs, err := filepath.Abs(c.file)
		if err != nil {
			return model.JobRequest{}, fmt.Errorf("could not resolve job file path: %w", err)
		}
		repo := storageio.NewJobYAMLRepository(os.DirFS(filepath.Dir(abs)))
		req, err = repo.GetJobRequest(ctx, filepath.Base(abs))
		if err != nil {
			return model.JobRequest{}, fmt.Errorf("could not load job file: %w", err)
		}
	}

	mode := model.JobMode(c.mode)
	switch {
	case mode == "" && req.Mode == "":
		return model.JobRequest{}, fmt.Errorf("job mode is required: %w", model.ErrNotValid)
	case mode == "":
		mode = req.Mode
	case req.Mode != "" && req.Mode != mode:
		return model.JobRequest{}, fmt.Errorf("job file is a %s job, not %s: %w", req.Mode, mode, model.ErrNotValid)
	}

	params, err := c.job.apply(mode, req.Params)
	if err != nil {
		return model.JobRequest{}, fmt.Errorf("%w: %w", err, model.ErrNotValid)
	}

	return model.JobRequest{Mode: mode, Params: params}, nil
}
