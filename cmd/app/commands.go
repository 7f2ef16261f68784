package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/mdimport/internal"
	"github.com/starford/mdimport/internal/importclient"
	"github.com/starford/mdimport/internal/importer"
	"github.com/starford/mdimport/internal/models"
	"github.com/starford/mdimport/internal/progress"
	"github.com/starford/mdimport/internal/state"
	"github.com/starford/mdimport/internal/storage"
)

func importFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "mode",
			Aliases:     []string{"m"},
			Usage:       "Duplicate handling: skip, overwrite or update",
			DefaultText: "last used mode, or skip",
		},
		&cli.BoolFlag{
			Name:  "create-categories",
			Usage: "Create categories that do not exist yet",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "create-tags",
			Usage: "Create tags that do not exist yet",
			Value: true,
		},
		&cli.IntFlag{
			Name:  "status",
			Usage: "Status of imported articles (0 draft, 1 published)",
			Value: 1,
		},
		&cli.BoolFlag{
			Name:  "preserve-time",
			Usage: "Keep create and update times from frontmatter",
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Usage:       "Files processed per server batch",
			DefaultText: "server default",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Scan and summarise without submitting",
		},
	}
}

func cliLogger(cfg *internal.Config) *slog.Logger {
	return internal.NewLogger(os.Stderr, cfg.App.LogLevel)
}

func singleArg(cmd *cli.Command, name string) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("%s: expected exactly one %s argument", cmd.Name, name)
	}
	return cmd.Args().First(), nil
}

// scanDir parses every Markdown file under dir and deselects invalid ones.
func scanDir(ctx context.Context, dir string) ([]models.ImportRecord, error) {
	src, err := storage.NewFS(dir)
	if err != nil {
		return nil, err
	}
	docs, err := src.Scan("")
	if err != nil {
		return nil, err
	}
	records, err := importer.ProcessDocumentsParallel(ctx, docs, runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, err
	}
	importer.DeselectInvalid(records)
	return records, nil
}

func openState(cfg *internal.Config, logger *slog.Logger) *state.Store {
	st, err := state.Load(cfg.State.Path)
	if err != nil {
		logger.Warn("session state unreadable, starting fresh",
			slog.String("path", cfg.State.Path), slog.String("error", err.Error()))
		return state.New(cfg.State.Path)
	}
	return st
}

func warnOnErr(logger *slog.Logger, op string, err error) {
	if err != nil {
		logger.Warn(op+" failed", slog.String("error", err.Error()))
	}
}

func scanCommand(ctx context.Context, cmd *cli.Command) error {
	dir, err := singleArg(cmd, "directory")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	logger := cliLogger(cfg)

	records, err := scanDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	printSummary(os.Stdout, importer.GenerateSummary(records))
	printInvalid(os.Stdout, records)

	warnOnErr(logger, "save state", openState(cfg, logger).SetLastDirectory(dir))
	return nil
}

func importCommand(ctx context.Context, cmd *cli.Command) error {
	dir, err := singleArg(cmd, "directory")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	logger := cliLogger(cfg)
	st := openState(cfg, logger)

	mode := models.ImportMode(cmd.String("mode"))
	if mode == "" {
		mode = st.LastMode()
	}
	icfg := models.ImportConfig{
		Mode:             mode,
		CreateCategories: cmd.Bool("create-categories"),
		CreateTags:       cmd.Bool("create-tags"),
		DefaultStatus:    int(cmd.Int("status")),
		PreserveTime:     cmd.Bool("preserve-time"),
		BatchSize:        int(cmd.Int("batch-size")),
	}
	if err := icfg.Validate(); err != nil {
		return fmt.Errorf("invalid import options: %w", err)
	}

	client := importclient.New(cfg.Client.BaseURL, cfg.Client.Token, cfg.Client.Timeout, logger)
	tracker := progress.NewTracker(client,
		progress.WithInterval(cfg.Client.PollInterval),
		progress.WithLogger(logger),
	)

	if err := tracker.BeginScan(); err != nil {
		return err
	}
	records, err := scanDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	summary := importer.GenerateSummary(records)
	printSummary(os.Stdout, summary)
	printInvalid(os.Stdout, records)
	warnOnErr(logger, "save state", st.SetLastDirectory(dir))

	if summary.SelectedFiles == 0 {
		return errors.New("no valid Markdown files to import")
	}
	if cmd.Bool("dry-run") {
		return nil
	}

	rep, err := client.Validate(ctx, importer.Selected(records))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if n := importer.ApplyValidation(records, *rep); n > 0 {
		fmt.Fprintf(os.Stdout, "server rejected %d files\n", n)
		for _, rec := range rep.InvalidFiles {
			fmt.Fprintf(os.Stdout, "  invalid %s: %s\n", rec.Path, rec.Error)
		}
		summary = importer.GenerateSummary(records)
		if summary.SelectedFiles == 0 {
			return errors.New("no valid Markdown files to import")
		}
	}

	taskID, err := tracker.Submit(ctx, importer.NewBatchRequest(records, icfg))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "task %s submitted (%d files, mode %s)\n", taskID, summary.SelectedFiles, mode)
	warnOnErr(logger, "save state", st.SetLastMode(mode))
	warnOnErr(logger, "save state", st.AddTask(state.TaskRef{
		ID:          taskID,
		Directory:   dir,
		Mode:        mode,
		Status:      models.StatusImporting,
		SubmittedAt: time.Now().UTC(),
	}))

	stop := cancelOnInterrupt(ctx, tracker, logger)
	final, err := tracker.Watch(ctx, func(p models.ImportProgress) {
		st.SetActive(p)
		printProgress(os.Stdout, p)
	})
	stop()
	st.ClearActive()
	if err != nil {
		return fmt.Errorf("watch task %s: %w", taskID, err)
	}
	warnOnErr(logger, "save state", st.UpdateTaskStatus(taskID, final.Status))

	results, err := client.Results(ctx, taskID)
	if err != nil {
		logger.Warn("fetch results failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
	} else {
		importer.ApplyResults(records, results)
	}
	printResult(os.Stdout, final, records)
	return nil
}

// cancelOnInterrupt requests cancellation of the tracked task on the first
// interrupt. A second interrupt gets the default signal behaviour.
func cancelOnInterrupt(ctx context.Context, t *progress.Tracker, logger *slog.Logger) (stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			signal.Stop(sig)
			fmt.Fprintln(os.Stderr, "cancelling import; interrupt again to stop waiting")
			if err := t.Cancel(ctx); err != nil {
				logger.Warn("cancel failed", slog.String("task_id", t.TaskID()), slog.String("error", err.Error()))
			}
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func progressCommand(ctx context.Context, cmd *cli.Command) error {
	taskID, err := singleArg(cmd, "task id")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	logger := cliLogger(cfg)
	client := importclient.New(cfg.Client.BaseURL, cfg.Client.Token, cfg.Client.Timeout, logger)

	p, err := client.Progress(ctx, taskID)
	if err != nil {
		return taskErr(taskID, err)
	}
	st := openState(cfg, logger)
	if ref, ok := st.Task(taskID); ok {
		printTaskRef(os.Stdout, ref)
	}
	printProgress(os.Stdout, *p)
	printErrors(os.Stdout, p.Errors)
	if p.Status.Terminal() {
		warnOnErr(logger, "save state", st.UpdateTaskStatus(taskID, p.Status))
	}
	return nil
}

func cancelCommand(ctx context.Context, cmd *cli.Command) error {
	taskID, err := singleArg(cmd, "task id")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	client := importclient.New(cfg.Client.BaseURL, cfg.Client.Token, cfg.Client.Timeout, cliLogger(cfg))
	if err := client.Cancel(ctx, taskID); err != nil {
		return taskErr(taskID, err)
	}
	fmt.Fprintf(os.Stdout, "cancellation requested for task %s\n", taskID)
	return nil
}

func historyCommand(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	st := openState(cfg, cliLogger(cfg))
	if dir := st.LastDirectory(); dir != "" {
		fmt.Fprintf(os.Stdout, "last directory: %s (mode %s)\n", dir, st.LastMode())
	}
	tasks := st.RecentTasks()
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stdout, "no tasks recorded")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATUS\tMODE\tDIRECTORY\tSUBMITTED")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Mode, t.Directory, t.SubmittedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func taskErr(taskID string, err error) error {
	if errors.Is(err, importclient.ErrTaskNotFound) {
		return fmt.Errorf("task %s not found", taskID)
	}
	return err
}

func printSummary(w io.Writer, s models.Summary) {
	fmt.Fprintf(w, "files: %d, selected: %d, estimated articles: %d\n", s.TotalFiles, s.SelectedFiles, s.EstimatedArticles)
	if len(s.Categories) > 0 {
		fmt.Fprintf(w, "categories: %s\n", strings.Join(s.Categories, ", "))
	}
	if len(s.Tags) > 0 {
		fmt.Fprintf(w, "tags: %s\n", strings.Join(s.Tags, ", "))
	}
}

func printInvalid(w io.Writer, records []models.ImportRecord) {
	for _, rec := range records {
		if !rec.Selected && rec.Error != "" {
			fmt.Fprintf(w, "  invalid %s: %s\n", rec.Path, rec.Error)
		}
	}
}

func printTaskRef(w io.Writer, ref state.TaskRef) {
	fmt.Fprintf(w, "task %s: %s (mode %s, submitted %s)\n",
		ref.ID, ref.Directory, ref.Mode, ref.SubmittedAt.Local().Format(time.DateTime))
}

func printProgress(w io.Writer, p models.ImportProgress) {
	line := fmt.Sprintf("[%s] %d/%d success=%d failed=%d skipped=%d",
		p.Status, p.Processed, p.Total, p.Success, p.Failed, p.Skipped)
	if p.CurrentFile != "" {
		line += " " + p.CurrentFile
	}
	fmt.Fprintln(w, line)
}

func printErrors(w io.Writer, errs []models.FileError) {
	for _, e := range errs {
		fmt.Fprintf(w, "  %s: %s\n", e.File, e.Error)
	}
}

func printResult(w io.Writer, final models.ImportProgress, records []models.ImportRecord) {
	fmt.Fprintf(w, "task %s: %d imported, %d skipped, %d failed\n",
		final.Status, final.Success, final.Skipped, final.Failed)
	printErrors(w, final.Errors)
	pending := 0
	for _, rec := range records {
		if rec.Selected && rec.Status == models.RecordPending {
			pending++
		}
	}
	if pending > 0 {
		fmt.Fprintf(w, "%d selected files were not processed\n", pending)
	}
}
