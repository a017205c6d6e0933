package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazyhub/lazyhub/pkg/client"
	"github.com/lazyhub/lazyhub/pkg/config"
	"github.com/lazyhub/lazyhub/pkg/httpcache"
	"github.com/lazyhub/lazyhub/pkg/logging"
	"github.com/lazyhub/lazyhub/pkg/ratelimit"
	"github.com/lazyhub/lazyhub/pkg/tasks"
	"github.com/lazyhub/lazyhub/pkg/ui"
)

var (
	configFile string
	quiet      bool
	noCache    bool
	showStats  bool
)

// errCancelled marks an interrupted fetch so main can exit with the
// conventional SIGINT code after deferred cleanup has run.
var errCancelled = errors.New("fetch cancelled")

var rootCmd = &cobra.Command{
	Use:   "lazyhub",
	Short: "A cached, rate-aware GitHub client for the terminal",
	Long: `lazyhub fetches GitHub resources through a persistent response cache
with ETag revalidation, a shared rate budget, and lazy pagination.
Repeated invocations reuse cached responses; conditional requests keep
them current without spending rate limit on unchanged data.

Configuration precedence (highest to lowest):
1. Environment variables (LAZYHUB_*)
2. Configuration file (--config)
3. Default values

The access token is read from LAZYHUB_TOKEN, falling back to GITHUB_TOKEN.

Environment variables:
- LAZYHUB_API_BASE_URL: API base URL (default: https://api.github.com)
- LAZYHUB_CACHE_DIR: Directory for the persistent response cache
- LAZYHUB_PER_PAGE: Page size for list requests (1-100)
- LAZYHUB_MAX_PAGES: Upper bound on pages fetched per listing
- LAZYHUB_RATE_LIMIT_THRESHOLD: Remaining-requests floor before waiting
- LAZYHUB_LOG_LEVEL: Log verbosity ("debug", "info", "warn", "error")

EXAMPLES:
  # List your repositories
  lazyhub repos

  # List open issues, then again from cache
  lazyhub issues golang/go --state open

  # Show a pull request diff
  lazyhub diff cli/cli 1234

  # Comment on an issue
  lazyhub comment golang/go 999 --body "Confirmed on main."`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path (TOML)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "Keep responses in memory only for this run")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "Print session statistics after the command")
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(
		createReposCommand(),
		createIssuesCommand(),
		createPullsCommand(),
		createReviewsCommand(),
		createRunsCommand(),
		createDiffCommand(),
		createCommentCommand(),
		createMergeCommand(),
		createInvalidateCommand(),
		createWhoamiCommand(),
	)
}

// loadConfiguration resolves configuration from file and environment
func loadConfiguration() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFromFile(configFile)
	}
	return config.LoadWithEnvironment()
}

// app wires the cache, governor, client, and scheduler for one invocation
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	store     *httpcache.SQLiteStore
	cache     *httpcache.Cache
	client    *client.Client
	scheduler *tasks.Scheduler
	reporter  *ui.Reporter
	stats     *ui.SessionStats
}

// sessionObserver feeds fetch-path events into the session statistics and
// surfaces rate-budget pauses as progress output.
type sessionObserver struct {
	reporter *ui.Reporter
	stats    *ui.SessionStats
}

func (o *sessionObserver) RequestDispatched() {
	o.stats.RecordRequest()
}

func (o *sessionObserver) CacheHit() {
	o.stats.RecordCacheHit()
}

func (o *sessionObserver) Revalidated() {
	o.stats.RecordRevalidation()
}

func (o *sessionObserver) RateLimitWait(delay time.Duration) {
	o.stats.RecordRateWait()
	o.reporter.RateLimitWait(delay)
}

// newApp builds the full stack from configuration. The persistent store is
// optional; without it the cache lives for this process only.
func newApp(cfg *config.Config) (*app, error) {
	logger := logging.NewLogger("lazyhub", logging.LogLevel(cfg.LogLevel))

	token := os.Getenv("LAZYHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("no access token: set LAZYHUB_TOKEN or GITHUB_TOKEN")
	}

	var store *httpcache.SQLiteStore
	if !noCache {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		var err error
		store, err = httpcache.NewSQLiteStore(cfg.CacheDBPath())
		if err != nil {
			// A broken cache database must not block fetching
			logger.Warn("persistent cache unavailable, continuing in memory", "error", err)
			store = nil
		}
	}

	var cache *httpcache.Cache
	if store != nil {
		cache = httpcache.New(store, logger)
	} else {
		cache = httpcache.New(nil, logger)
	}

	fallback := ratelimit.NewJitter(cfg.BackoffBase, cfg.BackoffMultiplier, cfg.MaxBackoff)
	governor := ratelimit.NewGovernor(cfg.RateLimitThreshold, fallback, cfg.MaxRetryAfter, logger)

	apiClient, err := client.New(cfg, client.NewStaticTokenProvider(token), cache, governor, logger)
	if err != nil {
		return nil, err
	}

	reporter := ui.NewReporter(os.Stderr)
	reporter.SetQuiet(quiet)
	stats := ui.NewSessionStats()
	apiClient.SetObserver(&sessionObserver{reporter: reporter, stats: stats})

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		cache:     cache,
		client:    apiClient,
		scheduler: tasks.NewScheduler(logger),
		reporter:  reporter,
		stats:     stats,
	}, nil
}

// close shuts the scheduler down and closes the persistent store
func (a *app) close() {
	a.scheduler.Shutdown()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing cache store", "error", err)
		}
	}
}

// runFetch runs one named operation as a cancellable task. Interrupt
// signals cancel the task; an in-flight request finishes and its result
// is discarded. render reports how many items it printed.
func runFetch(name string, op func(ctx context.Context, a *app) (any, error), render func(result any) (int, error)) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.reporter.FetchStart(name)
	start := time.Now()
	task := a.scheduler.Submit(ctx, name, func(taskCtx context.Context) (any, error) {
		return op(taskCtx, a)
	})

	// Wait for resolution, not for the signal: a cancelled task still
	// resolves once its operation observes the context.
	if err := task.Wait(context.Background()); err != nil {
		return err
	}

	switch task.Status() {
	case tasks.Cancelled:
		a.reporter.FetchCancelled(name)
		return errCancelled
	case tasks.Failed:
		a.reporter.FetchFailed(name, task.Err().Error())
		return task.Err()
	}

	items, err := render(task.Result())
	if err != nil {
		return err
	}
	a.reporter.FetchDone(name, items, time.Since(start))
	a.stats.RecordFetch(items)

	if showStats {
		a.stats.Finalize()
		a.reporter.FinalSummary(a.stats)
	}
	return nil
}

// exitCode maps a command error to the process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errCancelled):
		return 130
	default:
		return 1
	}
}

func main() {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errCancelled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
