package verification

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/verimed/scribe-verify/internal/gateway"
	"github.com/verimed/scribe-verify/pkg/logger"
	"github.com/verimed/scribe-verify/pkg/types"
)

// Handlers handles HTTP requests for the verification service
type Handlers struct {
	service *Service
	logger  *logger.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(service *Service, log *logger.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/verify", h.Verify).Methods("POST")
	router.HandleFunc("/verifications/{runID}", h.GetRun).Methods("GET")
	router.HandleFunc("/verifications", h.ListRuns).Methods("GET")
	router.HandleFunc("/protocols", h.GetProtocols).Methods("GET")
}

// Verify handles a verification request for one AI-generated note
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	if user, ok := gateway.UserFromContext(r.Context()); ok {
		req.RequestedBy = user.UserID
	}

	run, err := h.service.Verify(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err, "Verification failed")
		return
	}

	h.writeJSON(w, http.StatusOK, run)
}

// GetRun handles retrieval of a persisted verification run
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	runID := vars["runID"]

	run, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to retrieve verification run")
		return
	}

	h.writeJSON(w, http.StatusOK, run)
}

// ListRuns handles retrieval of a patient's verification run history
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	patientID := query.Get("patient_id")
	if patientID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "patient_id query parameter is required")
		return
	}

	filters := &types.VerificationRunFilters{}
	if visitID := query.Get("visit_id"); visitID != "" {
		filters.VisitID = visitID
	}
	if safe := query.Get("safe_to_file"); safe != "" {
		value, err := strconv.ParseBool(safe)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_error", "safe_to_file must be true or false")
			return
		}
		filters.SafeToFile = &value
	}
	if limit := query.Get("limit"); limit != "" {
		value, err := strconv.Atoi(limit)
		if err != nil || value < 1 {
			h.writeError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
			return
		}
		filters.Limit = value
	}
	if offset := query.Get("offset"); offset != "" {
		value, err := strconv.Atoi(offset)
		if err != nil || value < 0 {
			h.writeError(w, http.StatusBadRequest, "validation_error", "offset must be a non-negative integer")
			return
		}
		filters.Offset = value
	}

	runs, err := h.service.ListRuns(r.Context(), patientID, filters)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to list verification runs")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetProtocols reports the active protocol configuration
func (h *Handlers) GetProtocols(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Protocols())
}

// writeServiceError maps typed service errors onto HTTP status codes
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, logMessage string) {
	var verifyErr *types.VerifyError
	if errors.As(err, &verifyErr) {
		switch verifyErr.Type {
		case types.ErrorTypeValidation:
			h.writeError(w, http.StatusBadRequest, verifyErr.Code, verifyErr.Message)
			return
		case types.ErrorTypeNotFound:
			h.writeError(w, http.StatusNotFound, verifyErr.Code, verifyErr.Message)
			return
		}
	}

	h.logger.WithContext(r.Context()).WithError(err).Error(logMessage)
	h.writeError(w, http.StatusInternalServerError, types.ErrCodeInternalError, logMessage)
}

// writeJSON writes JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes error response
func (h *Handlers) writeError(w http.ResponseWriter, status int, code, message string) {
	errorResponse := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	h.writeJSON(w, status, errorResponse)
}
