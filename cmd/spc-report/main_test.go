package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcpulse/internal/config"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const goodCSV = "batch,m1,m2,m3\nA,10,11,12\nB,11,12,13\nC,10,12,11\n"

func TestParseFlags(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		name    string
		args    []string
		wantErr string
		check   func(t *testing.T, opts options)
	}{
		{
			name: "defaults",
			args: []string{"-in", "a.csv"},
			check: func(t *testing.T, opts options) {
				assert.Equal(t, []string{"a.csv"}, opts.inputs)
				assert.Nil(t, opts.spec)
				assert.Equal(t, cfg.Analysis.ReportDir, opts.outDir)
				assert.EqualValues(t, "csv", opts.format)
			},
		},
		{
			name: "repeated inputs and positional args",
			args: []string{"-in", "a.csv", "-in", "b.xlsx", "-format", "xlsx", "dir"},
			check: func(t *testing.T, opts options) {
				assert.Equal(t, []string{"a.csv", "b.xlsx", "dir"}, opts.inputs)
				assert.EqualValues(t, "xlsx", opts.format)
			},
		},
		{
			name: "spec limits",
			args: []string{"-lsl", "9", "-usl", "14", "a.csv"},
			check: func(t *testing.T, opts options) {
				require.NotNil(t, opts.spec)
				assert.Equal(t, 9.0, opts.spec.LSL)
				assert.Equal(t, 14.0, opts.spec.USL)
			},
		},
		{name: "single limit", args: []string{"-lsl", "9", "a.csv"}, wantErr: "together"},
		{name: "no inputs", args: nil, wantErr: "no input files"},
		{name: "bad format", args: []string{"-format", "pdf", "a.csv"}, wantErr: "unsupported report format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseFlags(tt.args, cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, opts)
		})
	}
}

func TestRun(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeInput(t, in, "line1.csv", goodCSV)
	writeInput(t, in, "line2.csv", goodCSV)
	writeInput(t, in, "notes.md", "ignored")

	var stdout bytes.Buffer
	err := run(context.Background(),
		[]string{"-out", out, "-lsl", "8", "-usl", "15", "-concurrency", "2", in},
		config.Default(), &stdout, quiet())
	require.NoError(t, err, stdout.String())

	assert.Contains(t, stdout.String(), "line1.csv")
	assert.Contains(t, stdout.String(), "cpk=")
	for _, name := range []string{"line1_summary.csv", "line1_subgroups.csv", "line2_histogram.csv"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
}

func TestRunReportsFailures(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	good := writeInput(t, in, "good.csv", goodCSV)
	wide := writeInput(t, in, "wide.csv", "id,a,b,c,d,e,f,g,h,i,j,k\n1,1,2,3,4,5,6,7,8,9,10,11\n2,1,2,3,4,5,6,7,8,9,10,11\n")

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-out", out, "-format", "json", good, wide},
		config.Default(), &stdout, quiet())

	require.ErrorIs(t, err, errInputsFailed)
	assert.Contains(t, stdout.String(), "FAIL "+wide)
	assert.Contains(t, stdout.String(), "invalid subgroup size")
	assert.FileExists(t, filepath.Join(out, "good.json"))
}

func TestReportName(t *testing.T) {
	assert.Equal(t, "line 1", reportName("/data/line 1.xlsx"))
	assert.Equal(t, "plain", reportName("plain"))
}
