package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"spcpulse/internal/cache"
	"spcpulse/internal/infrastructure"
)

// HealthService provides health check functionality
type HealthService struct {
	version   string
	spc       *SPCService
	runtime   *infrastructure.RuntimeMetrics
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status        string                       `json:"status"`
	Timestamp     time.Time                    `json:"timestamp"`
	Version       string                       `json:"version"`
	UptimeSeconds float64                      `json:"uptime_seconds"`
	Runtime       *infrastructure.RuntimeStats `json:"runtime,omitempty"`
	Cache         *cache.Stats                 `json:"cache,omitempty"`
}

// NewHealthService creates a health service. spc and rt may be nil.
func NewHealthService(version string, spc *SPCService, rt *infrastructure.RuntimeMetrics, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		spc:       spc,
		runtime:   rt,
		startTime: time.Now(),
		logger:    logger,
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:        "ok",
		Timestamp:     time.Now(),
		Version:       hs.version,
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
	}

	if hs.runtime != nil {
		stats := hs.runtime.Collect(ctx)
		status.Runtime = &stats
	}
	if hs.spc != nil {
		if stats, ok := hs.spc.CacheStats(); ok {
			status.Cache = &stats
		}
	}

	hs.logger.DebugContext(ctx, "health check completed", slog.String("status", status.Status))
	return status
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	return map[string]interface{}{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"start_time": hs.startTime.Format(time.RFC3339),
	}
}
