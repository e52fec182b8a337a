package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "spcpulse/internal/errors"
	"spcpulse/internal/services"
	"spcpulse/internal/spc"
)

// MockSPCService is a mock implementation of SPCServiceInterface
type MockSPCService struct {
	mock.Mock
}

func (m *MockSPCService) Analyze(ctx context.Context, source string, table spc.MeasurementTable, spec *spc.SpecLimits) (*spc.Result, error) {
	args := m.Called(source, table, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*spc.Result), args.Error(1)
}

func (m *MockSPCService) AnalyzeUpload(ctx context.Context, filename string, src io.Reader, spec *spc.SpecLimits) (*spc.Result, error) {
	body, _ := io.ReadAll(src)
	args := m.Called(filename, string(body), spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*spc.Result), args.Error(1)
}

func (m *MockSPCService) Capability(ctx context.Context, n int, grandMean, meanRange float64, spec spc.SpecLimits) (spc.CapabilityResult, error) {
	args := m.Called(n, grandMean, meanRange, spec)
	return args.Get(0).(spc.CapabilityResult), args.Error(1)
}

func (m *MockSPCService) Constants() []spc.ChartConstants {
	return m.Called().Get(0).([]spc.ChartConstants)
}

func (m *MockSPCService) ConstantsFor(n int) (spc.ChartConstants, error) {
	args := m.Called(n)
	return args.Get(0).(spc.ChartConstants), args.Error(1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(t *testing.T, svc SPCServiceInterface) http.Handler {
	t.Helper()
	eh := apierrors.NewErrorHandler(quietLogger(), false)
	r := chi.NewRouter()
	r.Mount("/api/spc", NewSPCHandler(svc, eh, 1<<20, quietLogger()).Routes())
	return r
}

func realRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, err := services.NewSPCService(services.SPCServiceOptions{}, quietLogger())
	require.NoError(t, err)
	return newRouter(t, svc)
}

func postJSON(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func TestSPCHandler_Analyze(t *testing.T) {
	h := realRouter(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
		check      func(t *testing.T, body map[string]interface{})
	}{
		{
			name: "control limits and capability",
			body: `{"subgroups":[
				{"label":"S1","measurements":[1,2,3,4,5]},
				{"label":"S2","measurements":[2,3,4,5,6]}],
				"spec":{"lsl":0,"usl":7}}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				limits := body["limits"].(map[string]interface{})
				assert.InDelta(t, 3.5, limits["grand_mean"], 1e-9)
				assert.InDelta(t, 4.0, limits["mean_range"], 1e-9)
				capability := body["capability"].(map[string]interface{})
				assert.Equal(t, false, capability["undefined"])
			},
		},
		{
			name: "missing values as null",
			body: `{"subgroups":[
				{"measurements":[1,null,3]},
				{"measurements":[2,3,4]}]}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				overview := body["overview"].(map[string]interface{})
				assert.Equal(t, float64(1), overview["missing"])
				assert.NotContains(t, body, "capability")
			},
		},
		{
			name: "subgroup size eleven",
			body: `{"subgroups":[
				{"measurements":[1,2,3,4,5,6,7,8,9,10,11]},
				{"measurements":[1,2,3,4,5,6,7,8,9,10,11]}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   apierrors.TypeInvalidSubgroupSize,
		},
		{
			name: "zero variation",
			body: `{"subgroups":[
				{"measurements":[5,5,5]},
				{"measurements":[5,5,5]}],
				"spec":{"lsl":4,"usl":6}}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				capability := body["capability"].(map[string]interface{})
				assert.Equal(t, true, capability["undefined"])
				assert.Nil(t, capability["cpk"])
				assert.NotEmpty(t, body["issues"])
			},
		},
		{
			name: "inverted spec limits",
			body: `{"subgroups":[{"measurements":[1,2]},{"measurements":[2,3]}],
				"spec":{"lsl":7,"usl":1}}`,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeInvalidSpecLimits,
		},
		{
			name:       "incomplete spec",
			body:       `{"subgroups":[{"measurements":[1,2]}],"spec":{"lsl":1}}`,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
		{
			name:       "no subgroups",
			body:       `{"subgroups":[]}`,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
		{
			name:       "all missing",
			body:       `{"subgroups":[{"measurements":[null,null]},{"measurements":["x",null]}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   apierrors.TypeInsufficientData,
		},
		{
			name:       "malformed json",
			body:       `{"subgroups":`,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := postJSON(t, h, "/api/spc/analyze", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, body["type"])
			}
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestSPCHandler_AnalyzeRejectsWrongContentType(t *testing.T) {
	h := realRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/spc/analyze", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestSPCHandler_Upload(t *testing.T) {
	csv := "batch,m1,m2,m3\nA,10,11,12\nB,11,12,13\n"

	t.Run("passes file and spec to the service", func(t *testing.T) {
		svc := new(MockSPCService)
		spec := &spc.SpecLimits{LSL: 9, USL: 14}
		svc.On("AnalyzeUpload", "line.csv", csv, spec).Return(&spc.Result{Overview: spc.Overview{Subgroups: 2}}, nil)

		body, contentType := multipartBody(t, "line.csv", csv, map[string]string{"lsl": "9", "usl": "14"})
		req := httptest.NewRequest(http.MethodPost, "/api/spc/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		newRouter(t, svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("end to end", func(t *testing.T) {
		body, contentType := multipartBody(t, "line.csv", csv, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/spc/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		realRouter(t).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.InDelta(t, 11.5, result["limits"].(map[string]interface{})["grand_mean"], 1e-9)
	})

	tests := []struct {
		name       string
		filename   string
		content    string
		fields     map[string]string
		wantStatus int
		wantType   string
	}{
		{"unsupported format", "line.pdf", csv, nil, http.StatusBadRequest, apierrors.TypeUnsupportedFormat},
		{"missing file", "", "", nil, http.StatusBadRequest, apierrors.TypeValidation},
		{"only one limit", "line.csv", csv, map[string]string{"lsl": "9"}, http.StatusBadRequest, apierrors.TypeValidation},
		{"header only", "line.csv", "batch,m1,m2\n", nil, http.StatusBadRequest, apierrors.TypeUnreadableFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.filename, tt.content, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/spc/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			realRouter(t).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			var problem map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.wantType, problem["type"])
		})
	}
}

func TestSPCHandler_Capability(t *testing.T) {
	h := realRouter(t)

	rec, body := postJSON(t, h, "/api/spc/capability",
		`{"n":5,"grand_mean":3.5,"mean_range":4,"lsl":0,"usl":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sigma := 4 / 2.326
	assert.InDelta(t, 7/(6*sigma), body["cp"], 1e-9)

	rec, body = postJSON(t, h, "/api/spc/capability",
		`{"n":12,"grand_mean":3.5,"mean_range":4,"lsl":0,"usl":7}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, apierrors.TypeInvalidSubgroupSize, body["type"])

	rec, _ = postJSON(t, h, "/api/spc/capability", `{"n":5,"grand_mean":3.5,"mean_range":-1,"lsl":0,"usl":7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = postJSON(t, h, "/api/spc/capability", `{"n":5,"grand_mean":3.5,"mean_range":0,"lsl":0,"usl":7}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["undefined"])
}

func TestSPCHandler_Constants(t *testing.T) {
	h := realRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/spc/constants", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var table ConstantsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Len(t, table.Constants, 9)
	assert.Equal(t, 10, table.MaxSubgroupSize)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/spc/constants/4", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var c spc.ChartConstants
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, 0.729, c.A2)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/spc/constants/11", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/spc/constants/five", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
