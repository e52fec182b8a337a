package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apierrors "spcpulse/internal/errors"
	mw "spcpulse/internal/middleware"
	"spcpulse/internal/services"
	"spcpulse/internal/spc"
)

// AnalyzeRequest is the body of POST /api/spc/analyze
type AnalyzeRequest struct {
	Subgroups []SubgroupRequest `json:"subgroups" validate:"required,min=1,dive"`
	Spec      *SpecRequest      `json:"spec,omitempty"`
}

// SubgroupRequest is one row of the measurement table. Missing measurements
// are sent as null. The width is checked by the engine, not here, so that an
// unsupported size is reported as such.
type SubgroupRequest struct {
	Label        string            `json:"label"`
	Measurements []spc.Measurement `json:"measurements"`
}

// SpecRequest carries the specification limits
type SpecRequest struct {
	LSL *float64 `json:"lsl" validate:"required"`
	USL *float64 `json:"usl" validate:"required"`
}

// CapabilityRequest is the body of POST /api/spc/capability
type CapabilityRequest struct {
	N         int      `json:"n" validate:"required"`
	GrandMean *float64 `json:"grand_mean" validate:"required"`
	MeanRange *float64 `json:"mean_range" validate:"required,gte=0"`
	LSL       *float64 `json:"lsl" validate:"required"`
	USL       *float64 `json:"usl" validate:"required"`
}

// ConstantsResponse is the body of GET /api/spc/constants
type ConstantsResponse struct {
	MinSubgroupSize int                  `json:"min_subgroup_size"`
	MaxSubgroupSize int                  `json:"max_subgroup_size"`
	Constants       []spc.ChartConstants `json:"constants"`
}

// Table converts the request into the engine's input
func (req AnalyzeRequest) Table() spc.MeasurementTable {
	table := spc.MeasurementTable{Subgroups: make([]spc.Subgroup, len(req.Subgroups))}
	for i, sg := range req.Subgroups {
		label := strings.TrimSpace(sg.Label)
		if label == "" {
			label = strconv.Itoa(i + 1)
		}
		table.Subgroups[i] = spc.Subgroup{Label: label, Measurements: sg.Measurements}
	}
	return table
}

// Limits converts the optional spec block
func (s *SpecRequest) Limits() *spc.SpecLimits {
	if s == nil {
		return nil
	}
	return &spc.SpecLimits{LSL: *s.LSL, USL: *s.USL}
}

// SPCHandler handles the analysis endpoints
type SPCHandler struct {
	service        SPCServiceInterface
	validator      *mw.RequestValidator
	errorHandler   *apierrors.ErrorHandler
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewSPCHandler creates a new SPC handler
func NewSPCHandler(service SPCServiceInterface, errorHandler *apierrors.ErrorHandler, maxUploadBytes int64, logger *slog.Logger) *SPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SPCHandler{
		service:        service,
		validator:      mw.NewRequestValidator(),
		errorHandler:   errorHandler,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "spc_handler")),
	}
}

// Routes returns the SPC routes
func (h *SPCHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.With(mw.ContentTypeValidator("application/json")).Post("/analyze", h.Analyze)
	r.With(mw.ContentTypeValidator("multipart/form-data")).Post("/upload", h.Upload)
	r.With(mw.ContentTypeValidator("application/json")).Post("/capability", h.Capability)

	r.Get("/constants", h.Constants)
	r.Get("/constants/{n}", h.ConstantsFor)

	return r
}

// Analyze handles POST /api/spc/analyze
func (h *SPCHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.Analyze(r.Context(), services.SourceJSON, req.Table(), req.Spec.Limits())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "analysis served",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Int("subgroups", result.Overview.Subgroups),
		slog.Bool("partial", result.Partial()),
	)
	render.JSON(w, r, result)
}

// Upload handles POST /api/spc/upload
func (h *SPCHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	spec, err := formSpec(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "is required"))
		return
	}
	defer file.Close()

	h.logger.InfoContext(r.Context(), "file uploaded",
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
	)

	result, err := h.service.AnalyzeUpload(r.Context(), header.Filename, file, spec)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// formSpec reads the optional lsl/usl form values; both or neither
func formSpec(r *http.Request) (*spc.SpecLimits, error) {
	rawLSL := strings.TrimSpace(r.FormValue("lsl"))
	rawUSL := strings.TrimSpace(r.FormValue("usl"))
	if rawLSL == "" && rawUSL == "" {
		return nil, nil
	}

	var errs []apierrors.ValidationError
	lsl, err := strconv.ParseFloat(rawLSL, 64)
	if err != nil {
		errs = append(errs, apierrors.ValidationError{Field: "lsl", Message: "must be a number"})
	}
	usl, err := strconv.ParseFloat(rawUSL, 64)
	if err != nil {
		errs = append(errs, apierrors.ValidationError{Field: "usl", Message: "must be a number"})
	}
	if len(errs) > 0 {
		return nil, apierrors.NewValidationErrors(errs)
	}
	return &spc.SpecLimits{LSL: lsl, USL: usl}, nil
}

// Capability handles POST /api/spc/capability
func (h *SPCHandler) Capability(w http.ResponseWriter, r *http.Request) {
	var req CapabilityRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.Capability(r.Context(), req.N, *req.GrandMean, *req.MeanRange,
		spc.SpecLimits{LSL: *req.LSL, USL: *req.USL})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// Constants handles GET /api/spc/constants
func (h *SPCHandler) Constants(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ConstantsResponse{
		MinSubgroupSize: spc.MinSubgroupSize,
		MaxSubgroupSize: spc.MaxSubgroupSize,
		Constants:       h.service.Constants(),
	})
}

// ConstantsFor handles GET /api/spc/constants/{n}
func (h *SPCHandler) ConstantsFor(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("n", "must be an integer"))
		return
	}

	constants, err := h.service.ConstantsFor(n)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, constants)
}
