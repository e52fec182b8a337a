package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"spcpulse/internal/cache"
	"spcpulse/internal/infrastructure"
	"spcpulse/internal/ingest"
	"spcpulse/internal/spc"
)

// Analysis sources, used as a metric and span attribute
const (
	SourceJSON   = "json"
	SourceUpload = "upload"
	SourceFile   = "file"
)

// SPCServiceOptions configures an SPCService. Every field is optional.
type SPCServiceOptions struct {
	Cache             *cache.ResultCache
	Metrics           *infrastructure.SPCMetrics
	Tracer            trace.Tracer
	DefaultSpec       *spc.SpecLimits
	HistogramBinWidth float64
	Sheet             string
}

// SPCService runs analyses on behalf of the HTTP handlers and the CLI
type SPCService struct {
	analyzer    *spc.Analyzer
	reader      *ingest.Reader
	cache       *cache.ResultCache
	metrics     *infrastructure.SPCMetrics
	tracer      trace.Tracer
	defaultSpec *spc.SpecLimits
	logger      *slog.Logger
}

// NewSPCService creates the service
func NewSPCService(opts SPCServiceOptions, logger *slog.Logger) (*SPCService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	analyzer := spc.NewAnalyzer(logger)
	if opts.HistogramBinWidth != 0 {
		if err := analyzer.SetHistogramBinWidth(opts.HistogramBinWidth); err != nil {
			return nil, fmt.Errorf("configure analyzer: %w", err)
		}
	}

	if opts.DefaultSpec != nil {
		if err := spc.ValidateSpecLimits(*opts.DefaultSpec); err != nil {
			return nil, fmt.Errorf("default spec limits: %w", err)
		}
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(infrastructure.MeterName)
	}

	return &SPCService{
		analyzer:    analyzer,
		reader:      ingest.NewReader(logger, opts.Sheet),
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		tracer:      tracer,
		defaultSpec: opts.DefaultSpec,
		logger:      logger.With(slog.String("service", "spc")),
	}, nil
}

// Analyze computes control limits for table and, when spec limits are given
// or configured as default, capability. A table analysed before is served
// from the cache and only its capability is recomputed.
func (s *SPCService) Analyze(ctx context.Context, source string, table spc.MeasurementTable, spec *spc.SpecLimits) (*spc.Result, error) {
	ctx, span := s.tracer.Start(ctx, "spc.analyze",
		trace.WithAttributes(
			attribute.String("spc.source", source),
			attribute.Int("spc.subgroups", len(table.Subgroups)),
			attribute.Int("spc.subgroup_size", table.SubgroupSize()),
		),
	)
	defer span.End()

	start := time.Now()
	result, hit, err := s.analyze(ctx, table, s.resolveSpec(spec))

	outcome := infrastructure.AnalysisOutcome{
		Source:       source,
		SubgroupSize: table.SubgroupSize(),
		CacheHit:     hit,
		Err:          err,
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		infrastructure.RecordAnalysis(ctx, s.metrics, outcome, time.Since(start))
		return nil, err
	}

	outcome.Observations = result.Overview.Observations
	outcome.Undefined = result.Capability != nil && result.Capability.Undefined
	infrastructure.RecordAnalysis(ctx, s.metrics, outcome, time.Since(start))

	span.SetAttributes(
		attribute.Bool("spc.cache_hit", hit),
		attribute.Bool("spc.partial", result.Partial()),
	)
	return result, nil
}

func (s *SPCService) analyze(ctx context.Context, table spc.MeasurementTable, spec *spc.SpecLimits) (*spc.Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if spec != nil {
		if err := spc.ValidateSpecLimits(*spec); err != nil {
			return nil, false, fmt.Errorf("validate spec limits: %w", err)
		}
	}

	var key string
	if s.cache != nil {
		key = cache.Key(table)
		if cached, ok := s.cache.Get(key); ok {
			s.logger.DebugContext(ctx, "analysis served from cache", slog.String("key", key[:12]))
			result, err := withSpec(cached, spec)
			return result, true, err
		}
	}

	base, err := s.analyzer.Analyze(ctx, table, nil)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		s.cache.Set(key, base)
	}

	result, err := withSpec(base, spec)
	return result, false, err
}

func withSpec(base *spc.Result, spec *spc.SpecLimits) (*spc.Result, error) {
	if spec == nil {
		return base, nil
	}
	return base.WithSpecLimits(*spec)
}

// resolveSpec falls back to the configured default limits
func (s *SPCService) resolveSpec(spec *spc.SpecLimits) *spc.SpecLimits {
	if spec != nil {
		return spec
	}
	if s.defaultSpec != nil {
		out := *s.defaultSpec
		return &out
	}
	return nil
}

// AnalyzeUpload parses an uploaded CSV or XLSX file and analyses it.
// The format is taken from filename's extension.
func (s *SPCService) AnalyzeUpload(ctx context.Context, filename string, src io.Reader, spec *spc.SpecLimits) (*spc.Result, error) {
	format, err := ingest.DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	table, err := s.reader.Read(src, format)
	if err != nil {
		s.logger.WarnContext(ctx, "upload rejected",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	return s.Analyze(ctx, SourceUpload, table, spec)
}

// AnalyzeFile reads and analyses a file from disk
func (s *SPCService) AnalyzeFile(ctx context.Context, path string, spec *spc.SpecLimits) (*spc.Result, error) {
	table, err := s.reader.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.Analyze(ctx, SourceFile, table, spec)
}

// Capability recomputes capability from previously computed control-limit
// values, without the measurement table
func (s *SPCService) Capability(ctx context.Context, n int, grandMean, meanRange float64, spec spc.SpecLimits) (spc.CapabilityResult, error) {
	constants, err := spc.LookupConstants(n)
	if err != nil {
		return spc.CapabilityResult{}, err
	}
	if err := spc.ValidateSpecLimits(spec); err != nil {
		return spc.CapabilityResult{}, fmt.Errorf("validate spec limits: %w", err)
	}

	result := spc.ComputeCapability(spc.CapabilityBasis{
		GrandMean: grandMean,
		MeanRange: meanRange,
		D2:        constants.D2,
	}, spec)

	s.logger.DebugContext(ctx, "capability computed",
		slog.Int("n", n),
		slog.Bool("undefined", result.Undefined),
	)
	return result, nil
}

// Constants returns the whole X-bar/R constant table
func (s *SPCService) Constants() []spc.ChartConstants {
	return spc.SupportedConstants()
}

// ConstantsFor returns the constants for subgroup size n
func (s *SPCService) ConstantsFor(n int) (spc.ChartConstants, error) {
	return spc.LookupConstants(n)
}

// CacheStats reports the result cache counters; ok is false without a cache
func (s *SPCService) CacheStats() (stats cache.Stats, ok bool) {
	if s.cache == nil {
		return cache.Stats{}, false
	}
	return s.cache.Stats(), true
}
