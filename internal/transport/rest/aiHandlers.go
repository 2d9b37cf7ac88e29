package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

func (c *Controller) analyzeFund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		PromptID int64  `json:"prompt_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		respondError(w, r, service.ErrValidation)
		return
	}

	analysis, err := c.aiService.AnalyzeFund(r.Context(), req.Code, req.PromptID, UserIDFromCtx(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, analysis)
}

func (c *Controller) getPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := c.aiService.GetPrompts(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, prompts)
}

type promptRequest struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	IsDefault    bool   `json:"is_default"`
}

func (c *Controller) createPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	promptID, err := c.aiService.CreatePrompt(r.Context(), req.Name, req.SystemPrompt, req.UserPrompt, req.IsDefault)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"id": promptID})
}

func (c *Controller) updatePrompt(w http.ResponseWriter, r *http.Request) {
	promptID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	var req promptRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	if err = c.aiService.UpdatePrompt(r.Context(), promptID, req.Name, req.SystemPrompt, req.UserPrompt, req.IsDefault); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) deletePrompt(w http.ResponseWriter, r *http.Request) {
	promptID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	if err = c.aiService.DeletePrompt(r.Context(), promptID); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) getAnalysisHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, r, service.ErrValidation)
			return
		}
		limit = parsed
	}

	history, err := c.aiService.GetAnalysisHistory(r.Context(), r.URL.Query().Get("code"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (c *Controller) deleteAnalysisHistory(w http.ResponseWriter, r *http.Request) {
	historyID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	if err = c.aiService.DeleteAnalysisHistory(r.Context(), historyID); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
