package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/gdfetch/internal/logging"
	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
	"google.golang.org/api/googleapi"
)

var (
	// ErrNoProgress is returned when a chunk reports the transfer unfinished but carries no bytes
	ErrNoProgress = errors.New("media download made no progress")
	// ErrRangeMismatch is returned when the server answers with a range other than the one requested
	ErrRangeMismatch = errors.New("media download received unexpected content range")
)

// MediaRequest fetches a byte range of a remote file's content
type MediaRequest interface {
	FetchRange(ctx context.Context, offset, length int64) (*http.Response, error)
}

type driveMediaRequest struct {
	client *Client
	fileID string
}

// FetchRange issues files.get?alt=media with a Range header
func (r *driveMediaRequest) FetchRange(ctx context.Context, offset, length int64) (*http.Response, error) {
	call := r.client.service.Files.Get(r.fileID).SupportsAllDrives(true).Context(ctx)
	call.Header().Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	if header := r.client.resourceKeyMgr.BuildHeader(r.fileID); header != "" {
		call.Header().Set(ResourceKeyHeader, header)
	}
	return call.Download()
}

// Progress reports how much of a media download has been written.
// Total is -1 until the server reveals the size.
type Progress struct {
	Written int64
	Total   int64
}

// Fraction returns the completed share in [0,1], or 0 when the total is unknown
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		if p.Total == 0 {
			return 1
		}
		return 0
	}
	return float64(p.Written) / float64(p.Total)
}

// MediaOption customizes a MediaDownload
type MediaOption func(*MediaDownload)

// WithRetrier sets the backoff policy used for each chunk
func WithRetrier(r *Retrier) MediaOption {
	return func(m *MediaDownload) {
		m.retrier = r
	}
}

// WithRequestContext sets the trace context used for logging and error classification
func WithRequestContext(reqCtx *types.RequestContext) MediaOption {
	return func(m *MediaDownload) {
		m.reqCtx = reqCtx
	}
}

// MediaDownload writes a remote file to w one ranged chunk at a time.
// It is not safe for concurrent use.
type MediaDownload struct {
	w         io.Writer
	req       MediaRequest
	chunkSize int64
	written   int64
	total     int64
	done      bool
	retrier   *Retrier
	reqCtx    *types.RequestContext
	// stream is a full-content response being consumed chunk by chunk
	stream      io.ReadCloser
	streamTotal int64
}

// NewMediaDownload prepares a chunked download of req into w
func NewMediaDownload(w io.Writer, req MediaRequest, chunkSize int64, opts ...MediaOption) *MediaDownload {
	if chunkSize <= 0 {
		chunkSize = utils.DownloadChunkSize
	}
	m := &MediaDownload{
		w:         w,
		req:       req,
		chunkSize: chunkSize,
		total:     -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.retrier == nil {
		m.retrier = NewRetrier(0, time.Duration(utils.DefaultRetryDelayMs)*time.Millisecond, nil)
	}
	if m.reqCtx == nil {
		m.reqCtx = NewRequestContext("", types.RequestTypeDownload)
	}
	return m
}

// Progress returns the current transfer state
func (m *MediaDownload) Progress() Progress {
	return Progress{Written: m.written, Total: m.total}
}

type chunk struct {
	body  []byte
	total int64
}

// NextChunk fetches and writes the next chunk. Transient failures are retried
// up to numRetries times before the error is returned. done is true once the
// whole file has been written.
func (m *MediaDownload) NextChunk(ctx context.Context, numRetries int) (_ Progress, done bool, err error) {
	if m.done {
		return m.Progress(), true, nil
	}
	defer func() {
		if err != nil || done {
			m.closeStream()
		}
	}()
	if err := ctx.Err(); err != nil {
		return m.Progress(), false, classifyError(err, m.reqCtx, m.retrier.logger)
	}

	offset := m.written
	c, err := ExecuteWithRetry(ctx, m.retrier.WithMaxRetries(numRetries), m.reqCtx, func() (*chunk, error) {
		return m.fetch(ctx, offset)
	})
	if err != nil {
		return m.Progress(), false, err
	}

	if len(c.body) > 0 {
		n, err := m.w.Write(c.body)
		m.written += int64(n)
		if err != nil {
			return m.Progress(), false, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath,
				fmt.Sprintf("Failed to write chunk: %s", err)).
				WithContext("traceId", m.reqCtx.TraceID).
				Build(), err)
		}
	}
	if c.total >= 0 {
		m.total = c.total
	}

	switch {
	case m.total >= 0 && m.written >= m.total:
		m.done = true
	case m.total < 0 && int64(len(c.body)) < m.chunkSize:
		// No size information: a short chunk marks the end of the content
		m.total = m.written
		m.done = true
	case len(c.body) == 0:
		return m.Progress(), false, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError,
			"Server reported an unfinished download but sent no data").
			WithContext("traceId", m.reqCtx.TraceID).
			WithContext("written", m.written).
			WithContext("total", m.total).
			Build(), ErrNoProgress)
	}

	m.retrier.logger.WithTraceID(m.reqCtx.TraceID).Debug("Chunk downloaded",
		logging.F("offset", offset),
		logging.F("bytes", len(c.body)),
		logging.F("written", m.written),
		logging.F("total", m.total),
		logging.F("done", m.done),
	)

	return m.Progress(), m.done, nil
}

// fetch returns the chunk starting at offset, reading at most chunkSize bytes.
// Reading happens inside the retried function so a connection dropped
// mid-body is retried too.
func (m *MediaDownload) fetch(ctx context.Context, offset int64) (*chunk, error) {
	if m.stream != nil {
		return m.readStream(offset)
	}

	resp, err := m.req.FetchRange(ctx, offset, m.chunkSize)
	if err != nil {
		if isEmptyRangeError(err) {
			return &chunk{total: 0}, nil
		}
		return nil, err
	}

	contentRange := resp.Header.Get("Content-Range")
	if contentRange == "" && resp.StatusCode == http.StatusOK {
		// Range ignored: the body is the whole file
		if err := skipBytes(resp.Body, offset); err != nil {
			resp.Body.Close()
			return nil, err
		}
		m.stream = resp.Body
		m.streamTotal = resp.ContentLength
		return m.readStream(offset)
	}
	defer resp.Body.Close()

	total := int64(-1)
	if contentRange != "" {
		start, size, err := parseContentRange(contentRange)
		if err != nil {
			return nil, err
		}
		if start != offset {
			return nil, fmt.Errorf("%w: requested offset %d, got %q", ErrRangeMismatch, offset, contentRange)
		}
		total = size
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, m.chunkSize))
	if err != nil {
		return nil, err
	}
	return &chunk{body: body, total: total}, nil
}

// readStream reads the next chunk from a full-content response. Reaching EOF
// fixes the total; a read failure drops the stream so a retry requests again.
func (m *MediaDownload) readStream(offset int64) (*chunk, error) {
	buf := make([]byte, m.chunkSize)
	n, err := io.ReadFull(m.stream, buf)
	switch {
	case err == nil:
		return &chunk{body: buf[:n], total: m.streamTotal}, nil
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		if m.streamTotal >= 0 && offset+int64(n) < m.streamTotal {
			m.closeStream()
			return nil, io.ErrUnexpectedEOF
		}
		m.closeStream()
		return &chunk{body: buf[:n], total: offset + int64(n)}, nil
	default:
		m.closeStream()
		return nil, err
	}
}

func (m *MediaDownload) closeStream() {
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
}

// skipBytes discards the n bytes already written from a full-content body
func skipBytes(r io.Reader, n int64) error {
	if n == 0 {
		return nil
	}
	skipped, err := io.CopyN(io.Discard, r, n)
	if err == io.EOF {
		return fmt.Errorf("%w: requested offset %d, full content has %d bytes", ErrRangeMismatch, n, skipped)
	}
	return err
}

// parseContentRange parses "bytes start-end/total"; total is -1 when reported as "*"
func parseContentRange(v string) (start, total int64, err error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(v), "bytes ")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", v)
	}
	rng, size, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", v)
	}

	total = -1
	if size != "*" {
		if total, err = strconv.ParseInt(size, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid Content-Range %q: %w", v, err)
		}
	}

	if rng == "*" {
		return 0, total, nil
	}
	first, _, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", v)
	}
	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid Content-Range %q: %w", v, err)
	}
	return start, total, nil
}

// isEmptyRangeError recognizes the 416 Drive returns for a range request on an empty file
func isEmptyRangeError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusRequestedRangeNotSatisfiable {
		return false
	}
	return apiErr.Header != nil && apiErr.Header.Get("Content-Range") == "bytes */0"
}
