package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SPCMetrics holds the application-specific instruments
type SPCMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Analysis metrics
	AnalysesTotal         metric.Int64Counter
	AnalysisDuration      metric.Float64Histogram
	AnalysisErrors        metric.Int64Counter
	ObservationsProcessed metric.Int64Counter
	CapabilityUndefined   metric.Int64Counter
	CacheHits             metric.Int64Counter
	CacheMisses           metric.Int64Counter

	// System metrics
	SystemErrors metric.Int64Counter
}

// CreateSPCMetrics registers every instrument on meter
func CreateSPCMetrics(meter metric.Meter) (*SPCMetrics, error) {
	m := &SPCMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.HTTPRequestsTotal, "http_requests_total", "Total number of HTTP requests"},
		{&m.AnalysesTotal, "spc_analyses_total", "Total number of SPC analyses"},
		{&m.AnalysisErrors, "spc_analysis_errors_total", "Total number of rejected analyses"},
		{&m.ObservationsProcessed, "spc_observations_processed_total", "Total number of valid measurements analysed"},
		{&m.CapabilityUndefined, "spc_capability_undefined_total", "Total number of analyses with undefined capability"},
		{&m.CacheHits, "spc_cache_hits_total", "Total number of result cache hits"},
		{&m.CacheMisses, "spc_cache_misses_total", "Total number of result cache misses"},
		{&m.SystemErrors, "system_errors_total", "Total number of system errors"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.AnalysisDuration, err = meter.Float64Histogram(
		"spc_analysis_duration_seconds",
		metric.WithDescription("SPC analysis duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// AnalysisOutcome summarises one analysis for RecordAnalysis
type AnalysisOutcome struct {
	Source       string // "json", "upload", "file"
	SubgroupSize int
	Observations int
	Undefined    bool
	CacheHit     bool
	Err          error
}

// RecordAnalysis records the counters and duration of one analysis
func RecordAnalysis(ctx context.Context, m *SPCMetrics, outcome AnalysisOutcome, duration time.Duration) {
	if m == nil {
		return
	}

	status := "success"
	if outcome.Err != nil {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("source", outcome.Source),
		attribute.String("status", status),
	)

	m.AnalysesTotal.Add(ctx, 1, attrs)
	m.AnalysisDuration.Record(ctx, duration.Seconds(), attrs)

	if outcome.Err != nil {
		m.AnalysisErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("source", outcome.Source)))
		return
	}

	sizeAttr := metric.WithAttributes(attribute.Int("subgroup_size", outcome.SubgroupSize))
	m.ObservationsProcessed.Add(ctx, int64(outcome.Observations), sizeAttr)
	if outcome.Undefined {
		m.CapabilityUndefined.Add(ctx, 1, sizeAttr)
	}
	if outcome.CacheHit {
		m.CacheHits.Add(ctx, 1)
	} else {
		m.CacheMisses.Add(ctx, 1)
	}
}

// RecordHTTPRequest records the count and duration of an HTTP request
func RecordHTTPRequest(ctx context.Context, m *SPCMetrics, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
	if status >= 500 {
		m.SystemErrors.Add(ctx, 1)
	}
}
