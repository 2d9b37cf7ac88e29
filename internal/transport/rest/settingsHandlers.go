package rest

import (
	"encoding/json"
	"net/http"

	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

func (c *Controller) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := c.settingsService.GetSettings(r.Context(), UserIDFromCtx(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

func (c *Controller) updateSettings(w http.ResponseWriter, r *http.Request) {
	var settings map[string]string
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	if err := c.settingsService.UpdateSettings(r.Context(), UserIDFromCtx(r.Context()), settings); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := c.settingsService.GetPreferences(r.Context(), UserIDFromCtx(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, prefs)
}

func (c *Controller) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs model.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	// The watchlist travels as a serialized JSON array of codes.
	if prefs.Watchlist != "" {
		var codes []string
		if err := json.Unmarshal([]byte(prefs.Watchlist), &codes); err != nil {
			respondError(w, r, service.ErrValidation)
			return
		}
	}

	if err := c.settingsService.UpdatePreferences(r.Context(), UserIDFromCtx(r.Context()), prefs); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
