package config

import "time"

// Application constants
const (
	AppName    = "SPC Pulse"
	AppVersion = "1.0.0"

	// Rate Limiting
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	// Network Timeouts
	DefaultRequestTimeout = 60 * time.Second

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Analysis
	DefaultCacheSize        = 128
	DefaultCacheTTL         = 15 * time.Minute
	DefaultBatchConcurrency = 4
	DefaultMaxUploadBytes   = 10 << 20 // 10MB
	DefaultReportDir        = "reports"

	// API Endpoints
	APIBasePath     = "/api"
	SPCEndpoint     = "/api/spc"
	HealthEndpoint  = "/api/health"
	MetricsEndpoint = "/metrics"
)
