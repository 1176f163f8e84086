package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
)

func TestFetchResultsTable(t *testing.T) {
	results := fetchResults{
		{FileID: "1aBcDeFgHiJkLmNoPqRsTuVwXyZ", Path: "input/GoogleDrive/reads.bam", Bytes: 1536, Duration: 1234567 * time.Microsecond},
		nil,
	}

	rows := results.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	want := []string{"1aBcDeFgHiJkLmNoP...", "input/GoogleDrive/reads.bam", "1.5 KiB", "1.235s"}
	for i := range want {
		if rows[0][i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, rows[0][i], want[i])
		}
	}
}

func TestOutputWriter_Table(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputWriter(types.OutputFormatTable, false, false)
	out.SetWriters(&stdout, &stderr)

	results := fetchResults{{FileID: "abc", Path: "/data/abc.txt", Bytes: 10}}
	errs := []types.CLIError{utils.NewCLIError(utils.ErrCodeFileNotFound, "File not found: xyz").Build()}
	if err := out.WriteResult("fetch", "", results, errs); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}

	if !strings.Contains(stdout.String(), "/data/abc.txt") || !strings.Contains(stdout.String(), "10 B") {
		t.Errorf("table output = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Error [FILE_NOT_FOUND]: File not found: xyz") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestOutputWriter_EmptyTable(t *testing.T) {
	var stdout bytes.Buffer
	out := NewOutputWriter(types.OutputFormatTable, false, false)
	out.SetWriters(&stdout, &bytes.Buffer{})

	if err := out.WriteSuccess("fetch", "", fetchResults{}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout.String()) != "No files fetched." {
		t.Errorf("output = %q", stdout.String())
	}
}
