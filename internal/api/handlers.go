package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/apply"
	"github.com/sells-group/activity-cli/internal/export"
	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	maxExportRows   = 10000
	maxBodyBytes    = 1 << 20
)

// Service is the pipeline surface the handlers call.
type Service interface {
	Preview(ctx context.Context, block string) model.ParseResult
	Apply(ctx context.Context, block string) ([]string, error)
}

// Handler serves the HTTP endpoints.
type Handler struct {
	svc   Service
	store store.Store
}

// NewHandler creates a Handler.
func NewHandler(svc Service, st store.Store) *Handler {
	return &Handler{svc: svc, store: st}
}

type pasteRequest struct {
	Paste string `json:"paste"`
}

type applyResponse struct {
	Created []string `json:"created"`
}

type applyErrorResponse struct {
	Error   string   `json:"error"`
	Applied []string `json:"applied"`
}

type listResponse struct {
	Activities []model.ActivityRecord `json:"activities"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	paste, ok := readPaste(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Preview(r.Context(), paste))
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	paste, ok := readPaste(w, r)
	if !ok {
		return
	}

	ids, err := h.svc.Apply(r.Context(), paste)
	if err != nil {
		resp := applyErrorResponse{Error: err.Error(), Applied: []string{}}
		var applyErr *apply.Error
		if errors.As(err, &applyErr) && applyErr.Applied != nil {
			resp.Applied = applyErr.Applied
		}
		zap.L().Error("api: apply failed",
			zap.Int("applied", len(resp.Applied)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, applyResponse{Created: ids})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := parseFilter(r)

	page := positiveInt(q.Get("page"), 1)
	pageSize := min(positiveInt(q.Get("page_size"), defaultPageSize), maxPageSize)
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	recs, err := h.store.ListActivities(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list activities", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list activities")
		return
	}
	if recs == nil {
		recs = []model.ActivityRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Activities: recs, Page: page, PageSize: pageSize})
}

func (h *Handler) exportActivities(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatXLSX
	}
	if format != export.FormatXLSX && format != export.FormatCSV {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
		return
	}

	filter := parseFilter(r)
	filter.Limit = maxExportRows
	recs, err := h.store.ListActivities(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: export activities", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list activities")
		return
	}
	names, err := staffNames(r.Context(), h.store)
	if err != nil {
		zap.L().Error("api: export staff names", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list staff")
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", "attachment; filename=activities."+format)
	if err := export.Write(w, format, recs, names); err != nil {
		zap.L().Error("api: write export", zap.String("format", format), zap.Error(err))
	}
}

// staffNames maps staff IDs to display names.
func staffNames(ctx context.Context, st store.Store) (map[string]string, error) {
	staff, err := st.ListStaff(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(staff))
	for _, s := range staff {
		names[s.ID] = s.Name
	}
	return names, nil
}

// readPaste accepts a JSON body {"paste": ...} or a form field named paste.
func readPaste(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var paste string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		paste = r.FormValue("paste")
	} else {
		var req pasteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return "", false
		}
		paste = req.Paste
	}

	if strings.TrimSpace(paste) == "" {
		writeError(w, http.StatusBadRequest, "paste is required")
		return "", false
	}
	return paste, true
}

// parseFilter reads the shared list filters. Malformed dates are ignored.
func parseFilter(r *http.Request) store.ActivityFilter {
	q := r.URL.Query()
	f := store.ActivityFilter{
		StaffID: q.Get("staff_id"),
		Status:  q.Get("status"),
	}
	if d, err := model.ParseDate(q.Get("date_from")); err == nil {
		f.DateFrom = &d
	}
	if d, err := model.ParseDate(q.Get("date_to")); err == nil {
		f.DateTo = &d
	}
	return f
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
