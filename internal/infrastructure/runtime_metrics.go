package infrastructure

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats holds a snapshot of Go runtime statistics
type RuntimeStats struct {
	GoRoutines    int           `json:"goroutines"`
	HeapAlloc     uint64        `json:"heap_alloc_bytes"`
	HeapSys       uint64        `json:"heap_sys_bytes"`
	GCCount       uint32        `json:"gc_count"`
	CPUCount      int           `json:"cpu_count"`
	ProcessUptime time.Duration `json:"-"`
	UptimeSeconds float64       `json:"uptime_seconds"`
}

// RuntimeMetrics publishes runtime gauges and serves snapshots to the
// health endpoint
type RuntimeMetrics struct {
	startTime  time.Time
	goRoutines metric.Int64Gauge
	heapAlloc  metric.Int64Gauge
	uptime     metric.Float64Gauge
}

// NewRuntimeMetrics creates the runtime gauges on meter
func NewRuntimeMetrics(meter metric.Meter) (*RuntimeMetrics, error) {
	goRoutines, err := meter.Int64Gauge(
		"system_goroutines",
		metric.WithDescription("Number of active goroutines"),
	)
	if err != nil {
		return nil, err
	}

	heapAlloc, err := meter.Int64Gauge(
		"system_memory_usage_bytes",
		metric.WithDescription("Heap memory in use"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	uptime, err := meter.Float64Gauge(
		"system_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RuntimeMetrics{
		startTime:  time.Now(),
		goRoutines: goRoutines,
		heapAlloc:  heapAlloc,
		uptime:     uptime,
	}, nil
}

// Collect snapshots the runtime and records the gauges
func (rm *RuntimeMetrics) Collect(ctx context.Context) RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(rm.startTime)
	stats := RuntimeStats{
		GoRoutines:    runtime.NumGoroutine(),
		HeapAlloc:     mem.HeapAlloc,
		HeapSys:       mem.HeapSys,
		GCCount:       mem.NumGC,
		CPUCount:      runtime.NumCPU(),
		ProcessUptime: uptime,
		UptimeSeconds: uptime.Seconds(),
	}

	rm.goRoutines.Record(ctx, int64(stats.GoRoutines))
	rm.heapAlloc.Record(ctx, int64(stats.HeapAlloc))
	rm.uptime.Record(ctx, stats.UptimeSeconds)

	return stats
}
