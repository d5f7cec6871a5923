package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modeld/fleet/pkg/types"
)

// NewMux builds the HTTP transport surface over a Service: /models,
// /status, /infer, /pipelines/{name}, /healthz, /readyz, /metrics.
// Adapted from the teacher's chi-based NewMux, generalized from a
// single NDJSON-streaming /infer endpoint to a JSON request/response
// pair that dispatches between a bare model and a named pipeline.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"models": svc.ListModels()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Post("/reconcile", func(w http.ResponseWriter, r *http.Request) {
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		opID, err := svc.TriggerReconcile(joinedCtx)
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"op_id": opID})
	})

	r.Post("/infer", handleInfer(svc, ""))
	r.Post("/pipelines/{name}", func(w http.ResponseWriter, r *http.Request) {
		handleInfer(svc, chi.URLParam(r, "name"))(w, r)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// handleInfer builds the POST body handler for both /infer (pipeline
// left unset in the decoded body) and /pipelines/{name} (pipelineName
// forces req.Pipeline regardless of what the body says).
func handleInfer(svc Service, pipelineName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !isJSONContentType(ct) {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.InferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if pipelineName != "" {
			req.Pipeline = pipelineName
		}
		if req.Pipeline == "" && req.Model == "" {
			writeJSONError(w, http.StatusBadRequest, "model or pipeline is required")
			return
		}

		target := req.Model
		if req.Pipeline != "" {
			target = req.Pipeline
		}
		logInferStart(r, target)
		start := time.Now()

		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		resp, err := svc.Infer(joinedCtx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusForError(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("nireq_queue_full")
			}
			writeJSONError(w, status, err.Error())
			logInferEnd(r, status, start, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		logInferEnd(r, http.StatusOK, start, nil)
	}
}

func isJSONContentType(ct string) bool {
	for i := 0; i < len(ct); i++ {
		if ct[i] == ';' {
			ct = ct[:i]
			break
		}
	}
	return ct == "application/json" || len(ct) >= 16 && ct[:16] == "application/json"
}
