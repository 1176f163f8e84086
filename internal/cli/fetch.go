package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dl-alexandre/gdfetch/internal/api"
	"github.com/dl-alexandre/gdfetch/internal/auth"
	"github.com/dl-alexandre/gdfetch/internal/logging"
	"github.com/dl-alexandre/gdfetch/internal/objectstore"
	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>...",
	Short: "Download files from Google Drive share links",
	Long: `Download one or more files referenced by Google Drive share links.

Each link must look like https://drive.google.com/file/d/<id>[/...].
Files are written to --dl-dir when given, otherwise to
<input-dir>/GoogleDrive/<file name>.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

var (
	fetchDlDir      string
	fetchInputDir   string
	fetchKeyFile    string
	fetchJobs       int
	fetchNoProgress bool
)

func init() {
	fetchCmd.Flags().StringVar(&fetchDlDir, "dl-dir", "", "Write files directly into this directory")
	fetchCmd.Flags().StringVar(&fetchInputDir, "input-dir", "", "Base input directory (default from config)")
	fetchCmd.Flags().StringVar(&fetchKeyFile, "key-file", "", "Service account key file (default from config)")
	fetchCmd.Flags().IntVarP(&fetchJobs, "jobs", "j", 0, "Number of files fetched concurrently (default from config)")
	fetchCmd.Flags().BoolVar(&fetchNoProgress, "no-progress", false, "Disable the progress bar")
	rootCmd.AddCommand(fetchCmd)
}

// fetcher downloads a batch of URLs, one resolver per URL
type fetcher struct {
	inputDir string
	dlDir    string
	jobs     int
	logger   logging.Logger
	// newSources builds the registry for a single URL; onProgress observes its transfer
	newSources func(onProgress func(api.Progress)) *objectstore.Registry
	bar        *progressbar.ProgressBar
}

// fetchOutcome is the result of fetching one URL
type fetchOutcome struct {
	result *types.FetchResult
	err    error
}

func runFetch(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	cfg := GetConfig()
	log := GetLogger()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	out.SetWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())

	keyFile := cfg.KeyFile
	if fetchKeyFile != "" {
		keyFile = fetchKeyFile
	}

	f := &fetcher{
		inputDir: firstNonEmpty(fetchInputDir, cfg.InputDir),
		dlDir:    fetchDlDir,
		jobs:     cfg.Jobs,
		logger:   log,
	}
	if fetchJobs > 0 {
		f.jobs = fetchJobs
	}

	factory := auth.NewServiceFactory(nil, &auth.DriveBuilder{
		MaxRetries:   cfg.MaxRetries,
		RetryDelayMs: cfg.RetryBaseDelay,
		Logger:       log,
	}, log)
	retrier := api.NewRetrier(cfg.ChunkRetries, cfg.GetRetryBaseDelay(), log)

	f.newSources = func(onProgress func(api.Progress)) *objectstore.Registry {
		return objectstore.NewRegistry(objectstore.NewGoogleDrive(objectstore.GoogleDriveOptions{
			KeyFile: keyFile,
			Factory: objectstore.FromAuthFactory(factory),
			Downloader: objectstore.NewDownloader(objectstore.DownloaderOptions{
				ChunkSize:  cfg.ChunkSize,
				NumRetries: cfg.ChunkRetries,
				Retrier:    retrier,
				Logger:     log,
				OnProgress: onProgress,
			}),
			Logger: log,
		}))
	}

	out.Verbose("Fetching %d link(s) with %d job(s) using %s", len(args), f.jobs, keyFile)

	if !flags.Quiet && !fetchNoProgress {
		f.bar = newProgressBar(out.Stderr(), f.jobs)
	}

	return f.report(out, f.run(cmd.Context(), args))
}

func newProgressBar(w io.Writer, jobs int) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetDescription(fmt.Sprintf("fetch(%d jobs)", jobs)),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

// run fetches every URL through a bounded errgroup. A credential failure is
// fatal and cancels the remaining fetches; other failures are recorded per URL.
func (f *fetcher) run(ctx context.Context, urls []string) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.jobs)

	for i, url := range urls {
		g.Go(func() error {
			res, err := f.fetchOne(gctx, url)
			outcomes[i] = fetchOutcome{result: res, err: err}
			if isFatal(err) {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	if f.bar != nil {
		_ = f.bar.Finish()
	}
	return outcomes
}

func (f *fetcher) fetchOne(ctx context.Context, url string) (*types.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var last int64
	registry := f.newSources(func(p api.Progress) {
		if f.bar == nil {
			return
		}
		_ = f.bar.Add64(p.Written - last)
		last = p.Written
	})

	source := registry.Select(url)
	if source == nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnsupportedURL,
			fmt.Sprintf("Not a Google Drive file link: %s", url)).
			WithContext("url", url).
			Build())
	}
	remote := source.ParseRemote(url)

	start := time.Now()
	path, err := source.Download(ctx, url, f.inputDir, f.dlDir)
	if err != nil {
		f.logger.Error("Fetch failed",
			logging.F("url", url),
			logging.F("fileId", remote.FileID),
			logging.F("error", err.Error()),
		)
		return nil, err
	}

	res := &types.FetchResult{
		URL:      url,
		Store:    remote.Store,
		FileID:   remote.FileID,
		Path:     path,
		Duration: time.Since(start),
	}
	if info, err := os.Stat(path); err == nil {
		res.Bytes = info.Size()
	}

	f.logger.Info("Fetched file",
		logging.F("fileId", remote.FileID),
		logging.F("path", path),
		logging.F("size", humanize.IBytes(uint64(res.Bytes))),
		logging.F("duration_ms", res.Duration.Milliseconds()),
	)
	return res, nil
}

// report writes the batch result and returns an exitError for the first
// failure, or for the credential failure that stopped the batch
func (f *fetcher) report(out *OutputWriter, outcomes []fetchOutcome) error {
	var results fetchResults
	var cliErrs []types.CLIError
	exitCode := utils.ExitSuccess

	for _, o := range outcomes {
		if o.err == nil {
			results = append(results, o.result)
			continue
		}
		cliErr := toCLIError(o.err)
		cliErrs = append(cliErrs, cliErr)
		if exitCode == utils.ExitSuccess || isFatal(o.err) {
			exitCode = utils.GetExitCode(cliErr.Code)
		}
	}
	if results == nil {
		results = fetchResults{}
	}

	if err := out.WriteResult("fetch", "", results, cliErrs); err != nil {
		return err
	}
	if exitCode != utils.ExitSuccess {
		return &exitError{code: exitCode}
	}
	return nil
}

func toCLIError(err error) types.CLIError {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	if errors.Is(err, context.Canceled) {
		return utils.NewCLIError(utils.ErrCodeCancelled, err.Error()).Build()
	}
	return utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build()
}

func isFatal(err error) bool {
	var appErr *utils.AppError
	return errors.As(err, &appErr) && appErr.CLIError.Code == utils.ErrCodeAuthInvalid
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
