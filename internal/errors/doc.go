// Package errors maps application errors onto HTTP responses.
//
// Handlers return plain Go errors; ErrorHandler.HandleError classifies them
// with errors.Is/errors.As and renders an RFC 7807 problem document:
//
//	spc.ErrInvalidSubgroupSize           422 /errors/spc/invalid-subgroup-size
//	spc.ErrEmptyTable, ErrNoMeasurements 422 /errors/spc/insufficient-data
//	spc.ErrInvalidSpecLimits             400 /errors/spc/invalid-spec-limits
//	ingest.ErrUnsupportedFormat          400 /errors/ingest/unsupported-format
//	ingest.ErrMalformedFile, ErrNoData   400 /errors/ingest/unreadable-file
//	*APIError                            its own status code
//	context deadline/cancel              504 /errors/timeout
//	anything else                        500 /errors/internal
//
// Undefined capability is not an error at this layer: the analysis succeeds
// and the response carries the issue.
package errors
