package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/bidfetch/internal/extract"
	"github.com/kalambet/bidfetch/internal/jobs"
	"github.com/kalambet/bidfetch/internal/scrape"
)

type OrdersRequest struct {
	PONumbers []string `json:"po_numbers"`
}

type MessagesRequest struct {
	Date string `json:"date"`
}

// cleanIdentifiers trims entries and drops blanks and repeats, keeping order.
func cleanIdentifiers(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func handleSubmitOrders(deps AppDeps, kind scrape.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req OrdersRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		ids := cleanIdentifiers(req.PONumbers)
		if len(ids) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "po_numbers is required and must not be empty")
			return
		}
		if len(ids) > maxIdentifiers {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at most %d po_numbers per request, got %d", maxIdentifiers, len(ids))
			return
		}

		id, err := deps.Jobs.Submit(kind, scrape.Params{PONumbers: ids})
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "failed to submit job: %v", err)
			return
		}
		deps.Logger.Info("job submitted", "job_id", id, "kind", string(kind), "po_numbers", len(ids))
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
	}
}

func handleSubmitMessages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req MessagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		date := strings.TrimSpace(req.Date)
		if date == "" {
			date = extract.DateToken(deps.Now())
		}

		id, err := deps.Jobs.Submit(scrape.KindMessages, scrape.Params{Date: date})
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "failed to submit job: %v", err)
			return
		}
		deps.Logger.Info("job submitted", "job_id", id, "kind", string(scrape.KindMessages), "date", date)
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
	}
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Jobs.List())
	}
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Jobs.Status(chi.URLParam(r, "id"))
		if errors.Is(err, jobs.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
