package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/bidfetch/internal/config"
	"github.com/kalambet/bidfetch/internal/jobs"
	"github.com/kalambet/bidfetch/internal/scrape"
	"github.com/kalambet/bidfetch/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// maxIdentifiers caps the PO numbers accepted by one scrape request.
const maxIdentifiers = 100

// JobQueue abstracts the job manager for the API layer.
type JobQueue interface {
	Submit(kind scrape.Kind, params scrape.Params) (string, error)
	Status(id string) (jobs.Snapshot, error)
	List() []jobs.Snapshot
}

// ProfileEditor reads and updates the portal account.
type ProfileEditor interface {
	Get() (config.Profile, error)
	Update(username, password string) error
}

type AppDeps struct {
	Store   *storage.Store
	Jobs    JobQueue
	Profile ProfileEditor
	Token   string
	Logger  *slog.Logger
	Now     func() time.Time // optional; defaults to time.Now
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/scrape/fetch", handleSubmitOrders(deps, scrape.KindFetch))
		r.Post("/scrape/download", handleSubmitOrders(deps, scrape.KindDownload))
		r.Post("/messages/fetch", handleSubmitMessages(deps))
		r.Get("/jobs", handleListJobs(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))

		r.Get("/orders", handleListOrders(deps))
		r.Get("/orders/search", handleSearchOrders(deps))
		r.Get("/orders/{po}", handleGetOrder(deps))
		r.Get("/orders/{po}/qc-report", handleQCReport(deps))
		r.Delete("/orders/{po}", handleDeleteOrder(deps))
		r.Delete("/orders", handleDeleteAllOrders(deps))

		r.Get("/messages", handleListMessages(deps))
		r.Get("/messages/{id}", handleGetMessage(deps))
		r.Delete("/messages/{id}", handleDeleteMessage(deps))
		r.Delete("/messages", handleDeleteAllMessages(deps))

		r.Get("/items", handleListItems(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Put("/profile", handlePutProfile(deps))
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
