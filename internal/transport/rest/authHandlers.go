package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tiangangQiu/FundVal-Live/config"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// authHandlers needs the session cookie parameters from config, so the
// controller keeps a reference set by the router.
func (c *Controller) withSessionConfig(cfg *config.Config) {
	c.sessionCfg = cfg
}

func (c *Controller) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	userID, err := c.authService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"id": userID})
}

func (c *Controller) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	sid, user, err := c.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.sessionCfg.Session.CookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(c.sessionCfg.Session.Expiration),
	})

	respondJSON(w, http.StatusOK, user)
}

func (c *Controller) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(c.sessionCfg.Session.CookieName); err == nil {
		if err := c.authService.Logout(r.Context(), cookie.Value); err != nil {
			respondError(w, r, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.sessionCfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
