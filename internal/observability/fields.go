package observability

import "go.uber.org/zap"

// zap.Field constructors re-exported so call sites outside the logging
// layer do not import zap directly.
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Float64  = zap.Float64
	Duration = zap.Duration
	Error    = zap.Error
)
