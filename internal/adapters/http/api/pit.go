package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/scout/internal/domain/model"
)

type pitAckResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// PitHandler handles pit and superscout submissions and reads.
type PitHandler struct {
	deps Dependencies
}

// NewPitHandler creates a new pit handler.
func NewPitHandler(deps Dependencies) *PitHandler {
	return &PitHandler{deps: deps}
}

// HandleSubmit handles POST /pit/{kind}. Submissions are queued unless the
// sync query parameter is true, in which case the consolidated document is
// returned.
func (h *PitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	kind := model.PitKind(chi.URLParam(r, "kind"))
	var data map[string]any
	if err := decodeBody(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		rec, err := h.deps.ConsolidatePit(r.Context(), kind, data)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	id, err := h.deps.SubmitPit(r.Context(), kind, data)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, pitAckResponse{Status: "accepted", ID: id})
}

// HandleGet handles GET /pit/{kind}/{team}.
func (h *PitHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.GetPit(r.Context(), model.PitKind(chi.URLParam(r, "kind")), chi.URLParam(r, "team"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleSuperscout handles POST /superscout/{collection}.
func (h *PitHandler) HandleSuperscout(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := decodeBody(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rec, err := h.deps.SubmitSuperscout(r.Context(), chi.URLParam(r, "collection"), data)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleSuperscoutTeam handles GET /superscout/teams/{team}.
func (h *PitHandler) HandleSuperscoutTeam(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.SuperscoutTeam(r.Context(), chi.URLParam(r, "team"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
