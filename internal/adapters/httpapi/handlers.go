package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"alienrisk/internal/blob"
	"alienrisk/internal/core"
	"alienrisk/pkg/domain"

	"github.com/go-chi/chi/v5"
)

var errNotRemoved = errors.New("snapshot still present after delete")

var filterParams = []string{"category", "level", "source", "from", "to"}

type createRequest struct {
	domain.FormData
	Source   string `json:"source,omitempty"`
	RemoteID string `json:"remoteId,omitempty"`
}

type deleteManyRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	values := make(map[string]string, len(filterParams))
	for _, name := range filterParams {
		if v := query.Get(name); v != "" {
			values[name] = v
		}
	}
	criteria, err := core.ParseCriteria(values)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	snapshots := h.store.List(r.Context())
	if q := strings.TrimSpace(query.Get("q")); q != "" {
		snapshots = core.Search(snapshots, q)
	}
	snapshots = core.Filter(snapshots, criteria)
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots, "count": len(snapshots)})
}

func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := h.store.Get(r.Context(), id)
	if !ok {
		h.writeFailure(w, domain.ErrNotFound{ID: id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
}

func (h *Handler) createSnapshot(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.FormData.Validate(); err != nil {
		h.writeFailure(w, err)
		return
	}
	var source domain.Source
	if req.Source != "" {
		parsed, err := domain.ParseSource(req.Source)
		if err != nil {
			h.writeFailure(w, &domain.ValidationError{Field: "source", Reason: err.Error()})
			return
		}
		source = parsed
	}
	var remote *domain.RemoteRecord
	if req.RemoteID != "" {
		remote = &domain.RemoteRecord{ID: req.RemoteID}
	}
	snap, err := h.store.Create(r.Context(), req.FormData, source, remote)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/snapshots/"+snap.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"snapshot": snap})
}

func (h *Handler) updateSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch domain.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := domain.ValidatePatch(patch); err != nil {
		h.writeFailure(w, err)
		return
	}
	snap, found, err := h.store.Update(r.Context(), id, patch)
	switch {
	case err != nil:
		h.writeFailure(w, err)
	case !found:
		h.writeFailure(w, domain.ErrNotFound{ID: id})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
	}
}

func (h *Handler) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.store.Delete(r.Context(), id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	// Delete folds storage failures into false; tell them apart from an absent id.
	_, found, err := h.store.Lookup(r.Context(), id)
	switch {
	case err != nil:
		h.writeFailure(w, err)
	case found:
		h.writeFailure(w, &domain.PersistenceError{Op: "delete", Key: h.store.Key(), Err: errNotRemoved})
	default:
		h.writeFailure(w, domain.ErrNotFound{ID: id})
	}
}

func (h *Handler) deleteSnapshots(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.IDs) == 0 {
		h.writeFailure(w, &domain.ValidationError{Field: "ids", Reason: "is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": h.store.DeleteMany(r.Context(), req.IDs)})
}

func (h *Handler) clearSnapshots(w http.ResponseWriter, r *http.Request) {
	h.store.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats(r.Context()))
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Export(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, core.ExportFileName(h.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) importDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	writeImportResult(w, h.store.Import(r.Context(), doc))
}

func (h *Handler) listArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.archive.List(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}

func (h *Handler) pushArchive(w http.ResponseWriter, r *http.Request) {
	info, err := h.archive.Push(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"archive": info})
}

func (h *Handler) pullArchive(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key query parameter is required")
		return
	}
	result, err := h.archive.Pull(r.Context(), key)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeImportResult(w, result)
}

func (h *Handler) archiveURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key query parameter is required")
		return
	}
	u, err := h.archive.URL(r.Context(), key)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "url": u})
}

func writeImportResult(w http.ResponseWriter, result core.ImportResult) {
	status := http.StatusOK
	if !result.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// writeFailure maps an error to its HTTP status.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	var notFound domain.ErrNotFound
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound), errors.Is(err, blob.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, blob.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, blob.ErrUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, domain.ErrPersistence):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
