package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"forum/crawler/internal/config"
	"forum/crawler/internal/container"
	"forum/crawler/internal/service"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Exit codes of the crawler.
const (
	ExitSuccess = 0
	ExitFatal   = 1
	ExitPartial = 2
)

// exitError carries a non-zero exit code out of RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forum-crawler",
		Short: "Resumable crawler for forum boards",
		Long: `forum-crawler walks the listing pages of the configured boards, saves every
post and its images, and records progress so an interrupted crawl resumes
where it stopped.

Exit status is 0 when the crawl finished, 2 when it finished partially
(failed units or an interruption) and 1 on a fatal error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCrawl,
	}

	cmd.Flags().StringP("config", "c", "", "Path to the config file (default ./config.yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	log.Info("Starting forum crawler...")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	configureLogging(cfg.Log, verbose)
	log.Info("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := container.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer app.Close()

	report, err := app.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	if err := service.WriteReport(cmd.OutOrStdout(), report); err != nil {
		log.Warnf("Failed to write report: %v", err)
	}

	if report.Interrupted || !report.Success() {
		return &exitError{code: ExitPartial, err: fmt.Errorf("crawl finished partially: %d failed units", len(report.Failures))}
	}
	if len(report.Failures) > 0 {
		log.Warnf("⚠️ %d unit(s) failed on boards %v", len(report.Failures), report.FailedBoards())
	}

	log.Info("Crawl finished successfully")
	return nil
}

func configureLogging(cfg config.LogConfig, verbose bool) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// Execute runs the root command and exits with its status.
func Execute() {
	os.Exit(run(context.Background(), NewRootCmd()))
}

func run(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		log.Warn(exitErr.Error())
		return exitErr.code
	}

	fmt.Fprintln(os.Stderr, err)
	return ExitFatal
}
