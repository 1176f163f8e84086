package objectstore

import (
	"context"
	"io"
	"time"

	"github.com/dl-alexandre/gdfetch/internal/api"
	"github.com/dl-alexandre/gdfetch/internal/logging"
	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
)

// chunkStepper advances a transfer by one chunk
type chunkStepper interface {
	NextChunk(ctx context.Context, numRetries int) (api.Progress, bool, error)
}

type mediaFactory func(w io.Writer, req api.MediaRequest, chunkSize int64, opts ...api.MediaOption) chunkStepper

func newMediaDownload(w io.Writer, req api.MediaRequest, chunkSize int64, opts ...api.MediaOption) chunkStepper {
	return api.NewMediaDownload(w, req, chunkSize, opts...)
}

// DownloaderOptions configures a Downloader. Zero values select the defaults.
type DownloaderOptions struct {
	ChunkSize  int64
	NumRetries int
	// Retrier supplies the backoff between chunk attempts
	Retrier    *api.Retrier
	Logger     logging.Logger
	OnProgress func(api.Progress)
}

// Downloader streams media requests into a sink in fixed-size chunks
type Downloader struct {
	chunkSize  int64
	numRetries int
	retrier    *api.Retrier
	logger     logging.Logger
	onProgress func(api.Progress)
	newMedia   mediaFactory
}

// NewDownloader creates a downloader
func NewDownloader(opts DownloaderOptions) *Downloader {
	d := &Downloader{
		chunkSize:  opts.ChunkSize,
		numRetries: opts.NumRetries,
		retrier:    opts.Retrier,
		logger:     opts.Logger,
		onProgress: opts.OnProgress,
		newMedia:   newMediaDownload,
	}
	if d.chunkSize <= 0 {
		d.chunkSize = utils.DownloadChunkSize
	}
	if d.numRetries <= 0 {
		d.numRetries = utils.DownloadChunkRetries
	}
	if d.logger == nil {
		d.logger = logging.NewNoOpLogger()
	}
	if d.retrier == nil {
		d.retrier = api.NewRetrier(d.numRetries, time.Duration(utils.DefaultRetryDelayMs)*time.Millisecond, d.logger)
	}
	return d
}

// ChunkSize returns the configured chunk size
func (d *Downloader) ChunkSize() int64 {
	return d.chunkSize
}

// NumRetries returns the per-chunk retry budget
func (d *Downloader) NumRetries() int {
	return d.numRetries
}

// LoadToFile copies the content behind req into w, one chunk per iteration,
// until the transfer reports done. A chunk that exhausts its retries ends the
// download with that chunk's error; w is left as written.
func (d *Downloader) LoadToFile(ctx context.Context, w io.Writer, req api.MediaRequest) error {
	reqCtx := api.NewRequestContext("", types.RequestTypeDownload)
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		reqCtx.TraceID = traceID
	}
	logger := d.logger.WithTraceID(reqCtx.TraceID)

	media := d.newMedia(w, req, d.chunkSize,
		api.WithRetrier(d.retrier),
		api.WithRequestContext(reqCtx),
	)

	for {
		progress, done, err := media.NextChunk(ctx, d.numRetries)
		if err != nil {
			logger.Error("Chunk download failed",
				logging.F("written", progress.Written),
				logging.F("error", err.Error()),
			)
			return err
		}
		if d.onProgress != nil {
			d.onProgress(progress)
		}
		if done {
			logger.Debug("Download complete", logging.F("bytes", progress.Written))
			return nil
		}
	}
}
