package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputWriter handles CLI output formatting
type OutputWriter struct {
	format  types.OutputFormat
	quiet   bool
	verbose bool
	stdout  io.Writer
	stderr  io.Writer
}

// NewOutputWriter creates a new output writer
func NewOutputWriter(format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		format:  format,
		quiet:   quiet,
		verbose: verbose,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

// SetWriters redirects result and diagnostic output
func (w *OutputWriter) SetWriters(stdout, stderr io.Writer) {
	w.stdout = stdout
	w.stderr = stderr
}

// Stderr returns the diagnostic writer
func (w *OutputWriter) Stderr() io.Writer {
	return w.stderr
}

// WriteSuccess writes a successful result. An empty traceID gets a fresh one.
func (w *OutputWriter) WriteSuccess(command, traceID string, data interface{}) error {
	return w.WriteResult(command, traceID, data, nil)
}

// WriteResult writes data together with any per-item errors
func (w *OutputWriter) WriteResult(command, traceID string, data interface{}, errs []types.CLIError) error {
	if traceID == "" {
		traceID = uuid.New().String()
	}
	if errs == nil {
		errs = []types.CLIError{}
	}
	output := types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       traceID,
		Command:       command,
		Data:          data,
		Errors:        errs,
	}

	if w.format == types.OutputFormatJSON {
		return w.writeJSON(output)
	}
	if err := w.writeTable(data); err != nil {
		return err
	}
	for _, e := range errs {
		fmt.Fprintf(w.stderr, "Error [%s]: %s\n", e.Code, e.Message)
	}
	return nil
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) writeTable(data interface{}) error {
	if renderable, ok := data.(types.TableRenderable); ok {
		return w.renderTable(renderable.AsTableRenderer())
	}
	if renderer, ok := data.(types.TableRenderer); ok {
		return w.renderTable(renderer)
	}
	// Fallback to JSON for unknown types
	return w.writeJSON(types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       uuid.New().String(),
		Command:       "unknown",
		Data:          data,
		Errors:        []types.CLIError{},
	})
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(w.stdout, renderer.EmptyMessage())
		}
		return nil
	}

	table := tablewriter.NewWriter(w.stdout)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
	return nil
}

// Verbose writes to stderr if verbose is enabled
func (w *OutputWriter) Verbose(format string, args ...interface{}) {
	if w.verbose {
		fmt.Fprintf(w.stderr, "[VERBOSE] "+format+"\n", args...)
	}
}

// fetchResults renders fetched files as a table
type fetchResults []*types.FetchResult

func (r fetchResults) Headers() []string {
	return []string{"File ID", "Path", "Size", "Time"}
}

func (r fetchResults) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, res := range r {
		if res == nil {
			continue
		}
		rows = append(rows, []string{
			truncate(res.FileID, 20),
			res.Path,
			humanize.IBytes(uint64(res.Bytes)),
			res.Duration.Round(time.Millisecond).String(),
		})
	}
	return rows
}

func (r fetchResults) EmptyMessage() string {
	return "No files fetched."
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
