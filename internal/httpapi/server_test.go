package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modeld/fleet/internal/modelfleet"
	"github.com/modeld/fleet/internal/pipeline"
	"github.com/modeld/fleet/pkg/types"
)

type mockService struct {
	models    []string
	pipelines []string
	status    types.StatusResponse
	ready     bool
	inferResp types.InferResponse
	inferErr  error
	lastReq   types.InferRequest
	opID      string
	opErr     error
}

func (m *mockService) ListModels() []string    { return m.models }
func (m *mockService) PipelineNames() []string { return m.pipelines }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool             { return m.ready }
func (m *mockService) Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error) {
	m.lastReq = req
	return m.inferResp, m.inferErr
}
func (m *mockService) TriggerReconcile(ctx context.Context) (string, error) {
	return m.opID, m.opErr
}

func doJSON(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestModelsEndpoint(t *testing.T) {
	svc := &mockService{models: []string{"detector", "classifier"}}
	mux := NewMux(svc)

	rec := doJSON(t, mux, http.MethodGet, "/models", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out["models"]) != 2 {
		t.Fatalf("models = %v, want 2 entries", out["models"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{BudgetUnits: 4, UsedUnits: 2}}
	mux := NewMux(svc)

	rec := doJSON(t, mux, http.MethodGet, "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out types.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.BudgetUnits != 4 || out.UsedUnits != 2 {
		t.Fatalf("unexpected status body: %+v", out)
	}
}

func TestHealthzAlwaysOK(t *testing.T) {
	mux := NewMux(&mockService{})
	rec := doJSON(t, mux, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyzReflectsService(t *testing.T) {
	svc := &mockService{ready: false}
	mux := NewMux(svc)
	rec := doJSON(t, mux, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	svc.ready = true
	rec = doJSON(t, mux, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestInferRequiresModelOrPipeline(t *testing.T) {
	mux := NewMux(&mockService{})
	rec := doJSON(t, mux, http.MethodPost, "/infer", types.InferRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestInferRejectsMissingContentType(t *testing.T) {
	mux := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodPost, "/infer", bytes.NewBufferString(`{"model":"x"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestInferSuccess(t *testing.T) {
	svc := &mockService{inferResp: types.InferResponse{Outputs: map[string][]byte{"y": []byte("z")}}}
	mux := NewMux(svc)

	rec := doJSON(t, mux, http.MethodPost, "/infer", types.InferRequest{Model: "detector"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if svc.lastReq.Model != "detector" {
		t.Fatalf("service saw model %q", svc.lastReq.Model)
	}
}

func TestPipelinesRouteForcesPipelineName(t *testing.T) {
	svc := &mockService{inferResp: types.InferResponse{Outputs: map[string][]byte{}}}
	mux := NewMux(svc)

	rec := doJSON(t, mux, http.MethodPost, "/pipelines/detect-and-classify", types.InferRequest{Model: "ignored"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if svc.lastReq.Pipeline != "detect-and-classify" {
		t.Fatalf("pipeline = %q, want detect-and-classify", svc.lastReq.Pipeline)
	}
}

func TestInferErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"model missing", modelfleet.ErrModelNameMissing(""), http.StatusNotFound},
		{"too busy", modelfleet.ErrTooBusy("detector", 1), http.StatusTooManyRequests},
		{"path invalid", modelfleet.ErrPathInvalid("/nope"), http.StatusBadRequest},
		{"device unavailable", modelfleet.ErrDeviceUnavailable("detector", "GPU.99"), http.StatusBadRequest},
		{"pipeline missing", pipeline.ErrDefinitionNameMissing(""), http.StatusNotFound},
		{"cycle found", pipeline.ErrCycleFound("p", "a", "b"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockService{inferErr: tc.err}
			mux := NewMux(svc)
			rec := doJSON(t, mux, http.MethodPost, "/infer", types.InferRequest{Model: "detector"})
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestReconcileEndpointReturnsOpID(t *testing.T) {
	svc := &mockService{opID: "op-123"}
	mux := NewMux(svc)

	rec := doJSON(t, mux, http.MethodPost, "/reconcile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["op_id"] != "op-123" {
		t.Fatalf("op_id = %q, want op-123", out["op_id"])
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	mux := NewMux(&mockService{})
	rec := doJSON(t, mux, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty metrics body")
	}
}
