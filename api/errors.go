package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/attendance-engine/generic"
)

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details any               `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// errorStatus maps an engine error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, generic.ErrValidation), errors.Is(err, generic.ErrInvalidPeriod):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, generic.ErrIncompleteData):
		return http.StatusUnprocessableEntity, "incomplete_data"
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrDuplicateOpenRequest):
		return http.StatusConflict, "duplicate_open_request"
	case errors.Is(err, generic.ErrDuplicateEntry):
		return http.StatusConflict, "duplicate_entry"
	case errors.Is(err, generic.ErrEntrySuperseded):
		return http.StatusConflict, "entry_superseded"
	case errors.Is(err, generic.ErrAlreadyFinalized):
		return http.StatusConflict, "already_finalized"
	case errors.Is(err, generic.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, generic.ErrClockEventExists):
		return http.StatusConflict, "clock_event_exists"
	case errors.Is(err, generic.ErrExceedsCandidate):
		return http.StatusBadRequest, "exceeds_candidate"
	case errors.Is(err, generic.ErrInvalidApproval):
		return http.StatusBadRequest, "invalid_approval"
	case errors.Is(err, generic.ErrNoCandidateMinutes):
		return http.StatusBadRequest, "no_candidate_minutes"
	case errors.Is(err, generic.ErrNotApprover):
		return http.StatusForbidden, "not_approver"
	case errors.Is(err, generic.ErrNotOwner):
		return http.StatusForbidden, "not_owner"
	}
	return http.StatusInternalServerError, "internal"
}

// writeEngineError renders err with the status errorStatus picks. Internal
// errors are logged and their details withheld.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, ErrorResponse{Error: "internal error", Code: code})
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var ve *generic.ValidationError
	if errors.As(err, &ve) {
		resp.Error = "validation failed"
		resp.Fields = ve.ToMap()
	}
	var ex *generic.ExceedsCandidateError
	if errors.As(err, &ex) {
		resp.Details = map[string]int{"requested": ex.Requested, "candidate": ex.Candidate}
	}
	var dup *generic.DuplicateRequestError
	if errors.As(err, &dup) {
		resp.Details = map[string]string{"existing_id": string(dup.ExistingID), "status": dup.Status.String()}
	}
	writeJSON(w, status, resp)
}
