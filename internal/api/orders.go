package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/bidfetch/internal/report"
	"github.com/kalambet/bidfetch/internal/storage"
)

// OrderDetail is a PO header with its line items and download history.
type OrderDetail struct {
	storage.POHeader
	Items     []storage.LineItem        `json:"items"`
	Downloads []storage.DownloadHistory `json:"downloads"`
}

// LoadOrderDetail gathers everything stored for poNumber.
func LoadOrderDetail(store *storage.Store, poNumber string) (OrderDetail, error) {
	h, err := store.GetPOHeader(poNumber)
	if err != nil {
		return OrderDetail{}, err
	}
	items, err := store.GetLineItems(poNumber)
	if err != nil {
		return OrderDetail{}, err
	}
	downloads, err := store.GetDownloadHistory(poNumber)
	if err != nil {
		return OrderDetail{}, err
	}
	if items == nil {
		items = []storage.LineItem{}
	}
	if downloads == nil {
		downloads = []storage.DownloadHistory{}
	}
	return OrderDetail{POHeader: h, Items: items, Downloads: downloads}, nil
}

func handleListOrders(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		offset := parseIntParam(r, "offset", 0, 0)

		orders, err := deps.Store.ListPOHeaders(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list orders: %v", err)
			return
		}
		total, err := deps.Store.CountPOHeaders()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count orders: %v", err)
			return
		}
		if orders == nil {
			orders = []storage.POHeader{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "total": total})
	}
}

func handleSearchOrders(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 50, 500)

		orders, err := deps.Store.SearchPOHeaders(q, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to search orders: %v", err)
			return
		}
		if orders == nil {
			orders = []storage.POHeader{}
		}
		writeJSON(w, http.StatusOK, orders)
	}
}

func handleGetOrder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		po := chi.URLParam(r, "po")

		detail, err := LoadOrderDetail(deps.Store, po)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "order %s not found", po)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get order: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func handleDeleteOrder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		po := chi.URLParam(r, "po")

		err := deps.Store.DeletePO(po)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "order %s not found", po)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete order: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleDeleteAllOrders(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Store.DeleteAllPOs()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete orders: %v", err)
			return
		}
		deps.Logger.Info("orders deleted", "count", n)
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "deleted": n})
	}
}

func handleQCReport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		po := chi.URLParam(r, "po")

		if _, err := deps.Store.GetPOHeader(po); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "order %s not found", po)
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get order: %v", err)
			return
		}
		items, err := deps.Store.GetLineItems(po)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get line items: %v", err)
			return
		}

		f, err := report.QCWorkbook(po, items)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build qc report: %v", err)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", report.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+report.QCFileName(po, deps.Now())+`"`)
		if err := f.Write(w); err != nil {
			deps.Logger.Warn("writing qc report", "po_number", po, "error", err)
		}
	}
}
