// Package http implements the HTTP handlers of the SPC service.
//
// Handlers are thin: they decode and validate the request, call the service
// layer and render the response with go-chi/render. Every failure is passed
// to the shared ErrorHandler, which produces an RFC 7807 problem document,
// so handlers never pick status codes for domain errors themselves.
//
// # Routes
//
//	POST /api/spc/analyze        JSON table (+ optional spec) -> Result
//	POST /api/spc/upload         multipart CSV/XLSX file (+ lsl/usl) -> Result
//	POST /api/spc/capability     n, grand_mean, mean_range, lsl, usl -> CapabilityResult
//	GET  /api/spc/constants      the X-bar/R constant table
//	GET  /api/spc/constants/{n}  constants for one subgroup size
//	GET  /api/health             status, runtime and cache statistics
//	GET  /api/health/version     build information
//
// A table whose subgroup size has no tabulated constants is answered with
// 422; zero-variation data is a successful 200 whose capability is flagged
// undefined.
package http
