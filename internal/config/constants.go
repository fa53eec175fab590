package config

import "time"

// Default configuration values
const (
	DefaultConfigName  = "hookwatch"
	DefaultHTTPAddr    = ":8000"
	DefaultGRPCAddr    = ":50051"
	DefaultTemplateDir = "templates"
	DefaultDebugDir    = "debug"

	DefaultSimilarityThreshold = 0.8
	DefaultCaptureInterval     = 5 * time.Second

	// Capture breaker: consecutive failures before capture is paused
	DefaultBreakerThreshold = 5
	DefaultBreakerReset     = 30 * time.Second

	DefaultEventBuffer = 64

	// Survivor portrait column on a 1920x1080 HUD
	DefaultRegionX      = 64
	DefaultRegionY      = 420
	DefaultRegionStride = 110
	DefaultRegionSize   = 72
)
