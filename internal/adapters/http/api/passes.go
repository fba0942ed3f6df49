package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/scout/internal/domain/audit"
	"github.com/okian/scout/internal/domain/model"
)

type auditResponse struct {
	Warnings []audit.Warning `json:"warnings"`
}

type timsResponse struct {
	Records []model.Record `json:"records"`
}

// PassHandler handles decompression passes and their outputs.
type PassHandler struct {
	deps Dependencies
}

// NewPassHandler creates a new pass handler.
func NewPassHandler(deps Dependencies) *PassHandler {
	return &PassHandler{deps: deps}
}

// HandleRunPass handles POST /passes by running one pass synchronously.
func (h *PassHandler) HandleRunPass(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.RunPass(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAudit handles GET /audit.
func (h *PassHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.deps.Audit(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if warnings == nil {
		warnings = []audit.Warning{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Warnings: warnings})
}

// HandleTIMs handles GET /tims/{kind}?match=N&team=T where kind is
// objective or subjective.
func (h *PassHandler) HandleTIMs(w http.ResponseWriter, r *http.Request) {
	kind, err := parseTIMKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	match := 0
	if v := r.URL.Query().Get("match"); v != "" {
		match, err = strconv.Atoi(v)
		if err != nil || match <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", wrapBadRequest(fmt.Errorf("invalid match %q", v)))
			return
		}
	}
	recs, err := h.deps.TIMs(r.Context(), kind, match, r.URL.Query().Get("team"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	writeJSON(w, http.StatusOK, timsResponse{Records: recs})
}

func parseTIMKind(s string) (model.Kind, error) {
	switch s {
	case model.KindObjective.String():
		return model.KindObjective, nil
	case model.KindSubjective.String():
		return model.KindSubjective, nil
	default:
		return model.KindUnknown, wrapBadRequest(fmt.Errorf("unknown tim kind %q", s))
	}
}
