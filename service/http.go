package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/pagecap/capture"
	"github.com/hazyhaar/pagecap/kit"
	"github.com/hazyhaar/pagecap/store"
)

// Routes builds the HTTP API. When an auth hash is configured, the
// /api routes require Basic Auth.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestContext)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if s.cfg.AuthHash != "" {
			r.Use(basicAuth(s.cfg.AuthHash))
		}

		r.Post("/capture", s.handleCapture)

		r.Get("/captures", func(w http.ResponseWriter, r *http.Request) {
			limit := queryInt(r, "limit", 50)
			resp, err := s.historyEP(r.Context(), &HistoryRequest{Limit: limit})
			if err != nil {
				writeError(w, 500, err)
				return
			}
			records := resp.([]store.Capture)
			if records == nil {
				records = []store.Capture{}
			}
			writeJSON(w, 200, records)
		})

		r.Get("/captures/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
			if err != nil {
				writeError(w, 400, err)
				return
			}
			rec, err := s.Get(r.Context(), id)
			if err != nil {
				writeError(w, 404, err)
				return
			}
			writeJSON(w, 200, rec)
		})
	})

	return r
}

func (s *Service) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}

	result, err := s.captureEP(r.Context(), &req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, result)
}

// requestContext enriches the request context with kit values so logs
// across the capture pipeline correlate on one request ID.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		reqID := newRequestID()
		ctx = kit.WithRequestID(ctx, reqID)
		ctx = kit.WithTraceID(ctx, reqID)
		ctx = kit.WithTransport(ctx, "http")

		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusFor maps service and capture errors to HTTP status codes
// without leaking raw transport errors: the capture taxonomy is all a
// caller sees.
func statusFor(err error) int {
	var mErr *capture.MeasurementError
	var tErr *capture.TileError
	var gErr *capture.GeometryError
	var wErr *capture.WidthError
	switch {
	case errors.Is(err, ErrDisabled):
		return 403
	case errors.Is(err, capture.ErrCancelled):
		return 499
	case errors.As(err, &mErr), errors.As(err, &tErr),
		errors.As(err, &gErr), errors.As(err, &wErr):
		return 502
	}
	return 400
}

func basicAuth(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, password, ok := r.BasicAuth()
			if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="pagecap"`)
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
