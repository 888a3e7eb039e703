package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"clinicbook/internal/metrics"
	"clinicbook/internal/model"
	"clinicbook/internal/settings"
)

// handleClinicSettings serves the clinic policy singleton.
// GET /api/clinic-settings
// PUT /api/clinic-settings
func (s *HTTPServer) handleClinicSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		metrics.IncHTTP("get_clinic_settings")
		current, err := s.settings.Get(r.Context())
		if err != nil {
			s.log.Error().Err(err).Msg("failed to load clinic settings")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, current)

	case http.MethodPut:
		metrics.IncHTTP("update_clinic_settings")
		var next model.ClinicSettings
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&next); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.settings.Update(r.Context(), &next); err != nil {
			if errors.Is(err, settings.ErrInvalidSettings) {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			s.log.Error().Err(err).Msg("failed to save clinic settings")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, &next)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
