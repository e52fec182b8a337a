// Command spc-report analyses measurement files (CSV or XLSX) and writes an
// X-bar/R and capability report for each of them.
//
//	spc-report -in line1.csv -in line2.xlsx -lsl 495 -usl 505 -format xlsx
//	spc-report -out reports/ data/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"spcpulse/internal/batch"
	"spcpulse/internal/config"
	"spcpulse/internal/exporter"
	"spcpulse/internal/infrastructure"
	"spcpulse/internal/services"
	"spcpulse/internal/spc"
)

// errInputsFailed signals that at least one input could not be analysed
var errInputsFailed = errors.New("some inputs failed")

// stringList collects a repeatable string flag
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// options are the parsed command-line flags
type options struct {
	inputs      []string
	spec        *spc.SpecLimits
	outDir      string
	format      exporter.ReportFormat
	sheet       string
	concurrency int
	binWidth    float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfg.Logging.Format = "text"
	logger := infrastructure.NewLoggerWithWriter(os.Stderr, cfg.Logging)

	// One trace id per invocation ties together the per-file log lines
	ctx = infrastructure.EnsureTraceID(ctx)

	if err := run(ctx, os.Args[1:], cfg, os.Stdout, logger); err != nil {
		if !errors.Is(err, errInputsFailed) {
			logger.Error("spc-report failed", "error", err)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, cfg *config.Config) (options, error) {
	fs := flag.NewFlagSet("spc-report", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var inputs stringList
	fs.Var(&inputs, "in", "input file or directory (repeatable)")
	lsl := fs.Float64("lsl", math.NaN(), "lower specification limit")
	usl := fs.Float64("usl", math.NaN(), "upper specification limit")
	outDir := fs.String("out", cfg.Analysis.ReportDir, "output directory for reports")
	format := fs.String("format", string(exporter.FormatCSV), "report format: csv, xlsx or json")
	sheet := fs.String("sheet", cfg.Analysis.Sheet, "worksheet to read from XLSX inputs (default first sheet)")
	concurrency := fs.Int("concurrency", cfg.Analysis.BatchConcurrency, "number of files analysed in parallel")
	binWidth := fs.Float64("bin-width", cfg.Analysis.HistogramBinWidth, "histogram bin width")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		inputs:      append(inputs, fs.Args()...),
		outDir:      *outDir,
		sheet:       *sheet,
		concurrency: *concurrency,
		binWidth:    *binWidth,
	}
	if len(opts.inputs) == 0 {
		return options{}, errors.New("no input files: use -in or pass paths as arguments")
	}

	f, err := exporter.ParseFormat(*format)
	if err != nil {
		return options{}, err
	}
	opts.format = f

	switch {
	case math.IsNaN(*lsl) && math.IsNaN(*usl):
		if cfg.Analysis.HasDefaultSpec() {
			opts.spec = &spc.SpecLimits{LSL: cfg.Analysis.DefaultLSL, USL: cfg.Analysis.DefaultUSL}
		}
	case math.IsNaN(*lsl) || math.IsNaN(*usl):
		return options{}, errors.New("-lsl and -usl must be given together")
	default:
		opts.spec = &spc.SpecLimits{LSL: *lsl, USL: *usl}
	}

	return opts, nil
}

func run(ctx context.Context, args []string, cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	opts, err := parseFlags(args, cfg)
	if err != nil {
		return err
	}

	paths, err := batch.CollectInputs(opts.inputs)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no supported input files found")
	}

	svc, err := services.NewSPCService(services.SPCServiceOptions{
		HistogramBinWidth: opts.binWidth,
		Sheet:             opts.sheet,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("Analysing inputs", "files", len(paths), "concurrency", opts.concurrency)

	items, err := batch.NewRunner(opts.concurrency, logger).Run(ctx, paths,
		func(ctx context.Context, path string) (*spc.Result, error) {
			return svc.AnalyzeFile(ctx, path, opts.spec)
		})
	if err != nil {
		return err
	}

	exp := exporter.NewReportExporter(opts.outDir, logger)
	failed := 0
	for _, item := range items {
		if item.Err != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL %s: %v\n", item.Path, item.Err)
			continue
		}

		files, err := exp.Export(item.Result, reportName(item.Path), opts.format)
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL %s: %v\n", item.Path, err)
			continue
		}
		fmt.Fprintf(stdout, "OK   %s: %s -> %s\n", item.Path, summarize(item.Result), strings.Join(files, ", "))
	}

	if failed > 0 {
		fmt.Fprintf(stdout, "%d of %d inputs failed\n", failed, len(items))
		return fmt.Errorf("%w: %d of %d", errInputsFailed, failed, len(items))
	}
	return nil
}

// reportName derives the report base name from the input file
func reportName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func summarize(result *spc.Result) string {
	parts := []string{
		"n=" + strconv.Itoa(result.Overview.SubgroupSize),
		"subgroups=" + strconv.Itoa(result.Overview.Subgroups),
		"mean=" + number(result.Limits.GrandMean),
		"rbar=" + number(result.Limits.MeanRange),
	}
	if c := result.Capability; c != nil {
		if c.Undefined {
			parts = append(parts, "cpk=undefined")
		} else {
			parts = append(parts, "cpk="+number(c.Cpk))
		}
	}
	return strings.Join(parts, " ")
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
