// Package services implements the application layer between the HTTP
// handlers and the SPC engine.
//
// SPCService owns the cross-cutting concerns of an analysis: file ingestion,
// the result cache, default specification limits, tracing spans and metrics.
// The spc package itself stays pure and knows nothing about any of them.
//
// # Caching
//
// Control limits do not depend on the specification limits, so the cache
// stores the spec-free Result keyed by a digest of the measurement table.
// A request with new limits for an already analysed table only recomputes
// capability:
//
//	result, err := svc.Analyze(ctx, services.SourceJSON, table, &spc.SpecLimits{LSL: 495, USL: 505})
//
// HealthService reports uptime, runtime statistics and cache counters.
package services
