package http

import (
	"context"
	"io"

	"spcpulse/internal/spc"
)

// SPCServiceInterface defines the analysis operations the handlers need
type SPCServiceInterface interface {
	Analyze(ctx context.Context, source string, table spc.MeasurementTable, spec *spc.SpecLimits) (*spc.Result, error)
	AnalyzeUpload(ctx context.Context, filename string, src io.Reader, spec *spc.SpecLimits) (*spc.Result, error)
	Capability(ctx context.Context, n int, grandMean, meanRange float64, spec spc.SpecLimits) (spc.CapabilityResult, error)
	Constants() []spc.ChartConstants
	ConstantsFor(n int) (spc.ChartConstants, error)
}
