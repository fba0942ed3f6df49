package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type submitQRsRequest struct {
	QRs []string `json:"qrs"`
}

// QRHandler handles raw QR ingestion and corrections.
type QRHandler struct {
	deps Dependencies
}

// NewQRHandler creates a new QR handler.
func NewQRHandler(deps Dependencies) *QRHandler {
	return &QRHandler{deps: deps}
}

// HandleSubmit handles POST /qrs. The response lists accepted ids, the
// number of duplicates, and the payloads that were not QR codes at all.
func (h *QRHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitQRsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if len(req.QRs) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", wrapBadRequest(errors.New("missing qrs")))
		return
	}
	res, err := h.deps.SubmitQRs(r.Context(), req.QRs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if len(res.Accepted) > 0 {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// HandleGet handles GET /qrs/{id}.
func (h *QRHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	qr, err := h.deps.RawQR(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qr)
}

// HandleBlocklist handles POST /qrs/{id}/blocklist.
func (h *QRHandler) HandleBlocklist(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Blocklist(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleOverride handles PUT /qrs/{id}/override with a JSON object of field
// name to replacement value.
func (h *QRHandler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.SetOverride(r.Context(), chi.URLParam(r, "id"), fields); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
