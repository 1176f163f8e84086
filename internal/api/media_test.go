package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/dl-alexandre/gdfetch/internal/utils"
	"google.golang.org/api/googleapi"
)

// rangeServer answers ranged requests from an in-memory file
type rangeServer struct {
	data      []byte
	calls     int
	failFirst int
	noRange   bool
	// unknownLength omits Content-Length on full-content responses
	unknownLength bool
}

func (s *rangeServer) FetchRange(_ context.Context, offset, length int64) (*http.Response, error) {
	s.calls++
	if s.failFirst > 0 {
		s.failFirst--
		return nil, &googleapi.Error{Code: 503, Message: "backend error"}
	}

	size := int64(len(s.data))
	if s.noRange {
		length := size
		if s.unknownLength {
			length = -1
		}
		return fullContent(bytes.NewReader(s.data), length), nil
	}
	if offset >= size {
		return nil, &googleapi.Error{
			Code:   http.StatusRequestedRangeNotSatisfiable,
			Header: http.Header{"Content-Range": []string{fmt.Sprintf("bytes */%d", size)}},
		}
	}
	end := offset + length
	if end > size {
		end = size
	}
	return &http.Response{
		StatusCode: http.StatusPartialContent,
		Header: http.Header{
			"Content-Range": []string{fmt.Sprintf("bytes %d-%d/%d", offset, end-1, size)},
		},
		ContentLength: end - offset,
		Body:          io.NopCloser(bytes.NewReader(s.data[offset:end])),
	}, nil
}

func fastRetrier() *Retrier {
	r := NewRetrier(0, time.Millisecond, nil)
	r.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return r
}

func drain(t *testing.T, m *MediaDownload, numRetries int) (int, error) {
	t.Helper()
	for i := 1; i < 100; i++ {
		_, done, err := m.NextChunk(context.Background(), numRetries)
		if err != nil {
			return i, err
		}
		if done {
			return i, nil
		}
	}
	t.Fatal("download did not finish")
	return 0, nil
}

func TestMediaDownload_Chunks(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		chunkSize int64
		wantCalls int
	}{
		{"two and a half chunks", 25, 10, 3},
		{"exact multiple", 20, 10, 2},
		{"single short chunk", 4, 10, 1},
		{"empty file", 0, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte("abcdefghij"), 3)[:tt.size]
			srv := &rangeServer{data: data}
			var out bytes.Buffer

			m := NewMediaDownload(&out, srv, tt.chunkSize, WithRetrier(fastRetrier()))
			calls, err := drain(t, m, 0)
			if err != nil {
				t.Fatalf("NextChunk() error = %v", err)
			}
			if calls != tt.wantCalls {
				t.Errorf("NextChunk calls = %d, want %d", calls, tt.wantCalls)
			}
			if !bytes.Equal(out.Bytes(), data) {
				t.Errorf("output = %q, want %q", out.Bytes(), data)
			}
			p := m.Progress()
			if p.Written != int64(tt.size) || p.Total != int64(tt.size) {
				t.Errorf("Progress = %+v, want written=total=%d", p, tt.size)
			}
		})
	}
}

func TestMediaDownload_DoneIsSticky(t *testing.T) {
	srv := &rangeServer{data: []byte("hello")}
	m := NewMediaDownload(io.Discard, srv, 10)

	if _, err := drain(t, m, 0); err != nil {
		t.Fatalf("download error = %v", err)
	}
	_, done, err := m.NextChunk(context.Background(), 0)
	if err != nil || !done {
		t.Errorf("NextChunk after completion = done %v, err %v", done, err)
	}
	if srv.calls != 1 {
		t.Errorf("server calls = %d, want 1", srv.calls)
	}
}

func TestMediaDownload_RetriesTransientChunk(t *testing.T) {
	srv := &rangeServer{data: []byte("retry me"), failFirst: 2}
	var out bytes.Buffer

	m := NewMediaDownload(&out, srv, 100, WithRetrier(fastRetrier()))
	if _, err := drain(t, m, 2); err != nil {
		t.Fatalf("download error = %v", err)
	}
	if out.String() != "retry me" {
		t.Errorf("output = %q", out.String())
	}
	if srv.calls != 3 {
		t.Errorf("server calls = %d, want 3", srv.calls)
	}
}

func TestMediaDownload_ExhaustedRetriesPropagate(t *testing.T) {
	srv := &rangeServer{data: []byte("never"), failFirst: 10}

	m := NewMediaDownload(io.Discard, srv, 100, WithRetrier(fastRetrier()))
	_, done, err := m.NextChunk(context.Background(), 3)
	if err == nil || done {
		t.Fatalf("NextChunk() = done %v, err %v; want error", done, err)
	}
	if srv.calls != 4 {
		t.Errorf("server calls = %d, want 4", srv.calls)
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 503 {
		t.Errorf("error should unwrap to the 503, got %v", err)
	}
}

// maxWriter records the largest single write it receives
type maxWriter struct {
	bytes.Buffer
	largest int
}

func (w *maxWriter) Write(p []byte) (int, error) {
	if len(p) > w.largest {
		w.largest = len(p)
	}
	return w.Buffer.Write(p)
}

func TestMediaDownload_FullContentIsChunked(t *testing.T) {
	tests := []struct {
		name          string
		size          int
		unknownLength bool
		wantCalls     int
	}{
		{"known length", 95, false, 10},
		{"unknown length", 95, true, 10},
		{"unknown length exact multiple", 90, true, 10},
		{"empty", 0, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte("0123456789"), 10)[:tt.size]
			srv := &rangeServer{data: data, noRange: true, unknownLength: tt.unknownLength}
			out := &maxWriter{}

			m := NewMediaDownload(out, srv, 10, WithRetrier(fastRetrier()))
			calls, err := drain(t, m, 0)
			if err != nil {
				t.Fatalf("download error = %v", err)
			}
			if calls != tt.wantCalls {
				t.Errorf("NextChunk calls = %d, want %d", calls, tt.wantCalls)
			}
			if srv.calls != 1 {
				t.Errorf("server calls = %d, want 1", srv.calls)
			}
			if out.largest > 10 {
				t.Errorf("largest write = %d bytes, want at most 10", out.largest)
			}
			if !bytes.Equal(out.Bytes(), data) {
				t.Errorf("output = %q, want %q", out.Bytes(), data)
			}
			if p := m.Progress(); p.Written != int64(tt.size) || p.Total != int64(tt.size) {
				t.Errorf("Progress = %+v, want written=total=%d", p, tt.size)
			}
		})
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestMediaDownload_FullContentResumesAfterDrop(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwxyz0123")
	req := &scriptedRequest{responses: []*http.Response{
		fullContent(io.MultiReader(bytes.NewReader(data[:15]), errReader{syscall.ECONNRESET}), int64(len(data))),
		fullContent(bytes.NewReader(data), int64(len(data))),
	}}
	var out bytes.Buffer

	m := NewMediaDownload(&out, req, 10, WithRetrier(fastRetrier()))
	if _, err := drain(t, m, 1); err != nil {
		t.Fatalf("download error = %v", err)
	}
	if out.String() != string(data) {
		t.Errorf("output = %q, want %q", out.String(), data)
	}
	if len(req.responses) != 0 {
		t.Errorf("%d responses unused, want 0", len(req.responses))
	}
}

func TestMediaDownload_TruncatedFullContent(t *testing.T) {
	req := &scriptedRequest{responses: []*http.Response{
		fullContent(strings.NewReader("short"), 20),
	}}

	m := NewMediaDownload(io.Discard, req, 10)
	_, _, err := m.NextChunk(context.Background(), 0)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("error = %v, want io.ErrUnexpectedEOF", err)
	}
}

type scriptedRequest struct {
	responses []*http.Response
}

func (s *scriptedRequest) FetchRange(context.Context, int64, int64) (*http.Response, error) {
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func fullContent(body io.Reader, length int64) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{},
		ContentLength: length,
		Body:          io.NopCloser(body),
	}
}

func partial(contentRange, body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusPartialContent,
		Header:     http.Header{"Content-Range": []string{contentRange}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestMediaDownload_NoProgress(t *testing.T) {
	req := &scriptedRequest{responses: []*http.Response{
		partial("bytes 0-3/10", "abcd"),
		partial("bytes 4-3/10", ""),
	}}

	m := NewMediaDownload(io.Discard, req, 4)
	if _, done, err := m.NextChunk(context.Background(), 0); err != nil || done {
		t.Fatalf("first chunk = done %v, err %v", done, err)
	}
	_, _, err := m.NextChunk(context.Background(), 0)
	if !errors.Is(err, ErrNoProgress) {
		t.Errorf("error = %v, want ErrNoProgress", err)
	}
}

func TestMediaDownload_RangeMismatch(t *testing.T) {
	req := &scriptedRequest{responses: []*http.Response{
		partial("bytes 5-9/10", "fghij"),
	}}

	m := NewMediaDownload(io.Discard, req, 5)
	_, _, err := m.NextChunk(context.Background(), 0)
	if !errors.Is(err, ErrRangeMismatch) {
		t.Errorf("error = %v, want ErrRangeMismatch", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestMediaDownload_WriteError(t *testing.T) {
	srv := &rangeServer{data: []byte("data")}

	m := NewMediaDownload(failingWriter{}, srv, 10)
	_, _, err := m.NextChunk(context.Background(), 0)

	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *utils.AppError, got %v", err)
	}
	if appErr.CLIError.Code != utils.ErrCodeInvalidPath {
		t.Errorf("Code = %s, want %s", appErr.CLIError.Code, utils.ErrCodeInvalidPath)
	}
}

func TestMediaDownload_CancelledContext(t *testing.T) {
	srv := &rangeServer{data: []byte("data")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMediaDownload(io.Discard, srv, 10)
	_, _, err := m.NextChunk(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if srv.calls != 0 {
		t.Errorf("server calls = %d, want 0", srv.calls)
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in        string
		wantStart int64
		wantTotal int64
		wantErr   bool
	}{
		{"bytes 0-9/100", 0, 100, false},
		{"bytes 10-19/*", 10, -1, false},
		{"bytes */0", 0, 0, false},
		{"items 0-9/100", 0, 0, true},
		{"bytes 0-9", 0, 0, true},
		{"bytes x-9/100", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			start, total, err := parseContentRange(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseContentRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if start != tt.wantStart || total != tt.wantTotal {
				t.Errorf("parseContentRange(%q) = %d, %d; want %d, %d", tt.in, start, total, tt.wantStart, tt.wantTotal)
			}
		})
	}
}

func TestProgressFraction(t *testing.T) {
	tests := []struct {
		p    Progress
		want float64
	}{
		{Progress{Written: 5, Total: 10}, 0.5},
		{Progress{Written: 0, Total: 0}, 1},
		{Progress{Written: 3, Total: -1}, 0},
	}
	for _, tt := range tests {
		if got := tt.p.Fraction(); got != tt.want {
			t.Errorf("%+v.Fraction() = %v, want %v", tt.p, got, tt.want)
		}
	}
}
