package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

const defaultHistoryLimit = 60

func (c *Controller) searchFunds(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("q")
	if key == "" {
		respondError(w, r, service.ErrValidation)
		return
	}

	results, err := c.fundService.SearchFunds(r.Context(), key)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, results)
}

func (c *Controller) getFund(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	valuation, err := c.fundService.GetValuation(r.Context(), code)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, valuation)
}

func (c *Controller) getWatchlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Codes []string `json:"codes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	entries, err := c.fundService.GetWatchlist(r.Context(), req.Codes)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

func (c *Controller) getFundHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, r, service.ErrValidation)
			return
		}
		limit = parsed
	}

	points, err := c.fundService.GetHistory(r.Context(), code, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, points)
}

func (c *Controller) getFundIntraday(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	date := r.URL.Query().Get("date")

	series, err := c.fundService.GetIntraday(r.Context(), code, date)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, series)
}

func (c *Controller) getCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := c.fundService.GetCategories(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, categories)
}

func (c *Controller) subscribeFund(w http.ResponseWriter, r *http.Request) {
	var sub model.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}
	sub.Code = chi.URLParam(r, "code")

	subID, err := c.alertService.Subscribe(r.Context(), sub)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"id": subID})
}

func (c *Controller) getSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := c.alertService.GetSubscriptions(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, subs)
}

func (c *Controller) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	if err = c.alertService.Unsubscribe(r.Context(), subID); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
